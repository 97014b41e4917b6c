// Package handler is the REST surface of the settlement service.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/cashback/internal/auth"
	"github.com/iurnickita/cashback/internal/gzip"
	"github.com/iurnickita/cashback/internal/handler/config"
	"github.com/iurnickita/cashback/internal/logger"
	"github.com/iurnickita/cashback/internal/metrics"
	"github.com/iurnickita/cashback/internal/service"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
	PartnerKeyHeader     = "X-Partner-Key"

	defaultShutdownTimeout = 10 * time.Second
	// через сколько секунд клиенту стоит повторить запрос
	retryAfter = 1
)

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, cfg.PartnerKey, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zaplog.Info("server started", zap.String("address", cfg.ServerAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zaplog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type handler struct {
	auth       auth.Auth
	service    service.Service
	partnerKey string
	validate   *validator.Validate
	zaplog     *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, partnerKey string, zaplog *zap.Logger) *handler {
	return &handler{
		auth:       auth,
		service:    service,
		partnerKey: partnerKey,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		zaplog:     zaplog,
	}
}

func (h *handler) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(logger.RequestLogMdlw(h.zaplog))

	r.Get("/health", h.Health)
	// promhttp сжимает ответ сам, gzip только для /api
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(gzip.GzipMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Post("/orders/calculate", h.PostCalculate)
			r.Post("/orders/confirm", h.PostConfirm)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}/status", h.GetOrderStatus)
			r.Post("/orders/{id}/cancel", h.PostCancel)

			r.Get("/wallet", h.GetWallet)
			r.Get("/wallet/transactions", h.GetTransactions)
			r.Post("/wallet/topup", h.PostTopUp)

			r.Post("/payments/qr", h.PostQRPayment)
		})

		if h.partnerKey != "" {
			r.Route("/partner", func(r chi.Router) {
				r.Use(h.partnerMiddleware)

				r.Post("/orders/{id}/events", h.PostOrderEvent)
				r.Post("/bonus", h.PostBonus)
			})
		}
	})

	return r
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *handler) partnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(PartnerKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.partnerKey)) != 1 {
			http.Error(w, "partner key is invalid", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON читает тело запроса и проверяет теги validate.
func (h *handler) decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

// idempotencyKey: заголовок важнее поля тела
func idempotencyKey(r *http.Request, bodyKey string) string {
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		return key
	}
	return bodyKey
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

func (h *handler) writeResult(w http.ResponseWriter, replayed bool, v any) {
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	h.writeJSON(w, http.StatusOK, v)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, service.ErrConflictInProgress):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, err.Error(), http.StatusConflict)
	case service.Retryable(err):
		// подробности сбоя хранилища клиенту не отдаем
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "service temporarily unavailable, retry with the same idempotency key", http.StatusServiceUnavailable)
	default:
		h.zaplog.Error("unhandled error",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
