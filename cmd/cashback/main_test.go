package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/cashback/internal/token"
	tokenConfig "github.com/iurnickita/cashback/internal/token/config"
)

func TestLoadConfigFlags(t *testing.T) {
	t.Setenv("RUN_ADDRESS", "env:8080")
	t.Setenv("LOG_LEVEL", "")

	serveCmd, _, err := newRootCmd().Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serveCmd.ParseFlags([]string{"--log-level", "debug", "-r", "localhost:6379"}))

	cfg, err := loadConfig(serveCmd)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Catalog.RedisAddr)
	// флаг не задан - остается значение окружения
	assert.Equal(t, "env:8080", cfg.Handler.ServerAddr)
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "cli-secret")

	var out bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "u1"})
	require.NoError(t, rootCmd.Execute())

	tokens, err := token.NewToken(tokenConfig.Config{SecretKey: "cli-secret"})
	require.NoError(t, err)
	userCode, err := tokens.GetUserCode(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "u1", userCode)
}
