package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/logger/config"
)

// тела длиннее обрезаются в логе
const maxLoggedBody = 1024

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// создаём новую конфигурацию логера
	zapcfg := zap.NewProductionConfig()
	// устанавливаем уровень
	zapcfg.Level = lvl
	// создаём логер на основе конфигурации
	return zapcfg.Build()
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}

// RequestLogMdlw пишет в лог запрос и ответ с их телами.
func RequestLogMdlw(zaplog *zap.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())

			// тело читается целиком и подменяется копией для обработчика
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			zaplog.Info("http request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.String("body", truncate(bodyBytes)),
			)

			wl := newResponseWriterLogger(w)
			started := time.Now()
			h.ServeHTTP(wl, r)

			zaplog.Info("http response",
				zap.String("request_id", requestID),
				zap.Int("code", wl.statusCode),
				zap.Int("length", wl.length),
				zap.Duration("duration", time.Since(started)),
				zap.String("body", truncate(wl.body)),
			)
		})
	}
}

// responseWriterLogger запоминает код ответа и начало тела
type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
	body       []byte
}

func newResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{ResponseWriter: w, statusCode: http.StatusOK}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (int, error) {
	if rest := maxLoggedBody + 1 - len(wl.body); rest > 0 {
		wl.body = append(wl.body, b[:min(rest, len(b))]...)
	}
	n, err := wl.ResponseWriter.Write(b)
	wl.length += n
	return n, err
}
