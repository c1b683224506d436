package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestWithContext(t *testing.T) {
	logger, err := NewForEnvironment("development")
	require.NoError(t, err)

	ctx := context.Background()
	ctxWithLogger := WithContext(ctx, logger)

	retrievedLogger := FromContext(ctxWithLogger)
	assert.NotNil(t, retrievedLogger)
}

func TestFromContext_NotFound(t *testing.T) {
	ctx := context.Background()
	logger := FromContext(ctx)

	// Should return a no-op logger
	assert.NotNil(t, logger)
}

func TestWithRequestID(t *testing.T) {
	logger, err := NewForEnvironment("development")
	require.NoError(t, err)

	ctx := context.Background()
	requestID := "req-123"

	newCtx, newLogger := WithRequestID(ctx, logger, requestID)

	assert.NotNil(t, newCtx)
	assert.NotNil(t, newLogger)
	assert.Equal(t, requestID, GetRequestID(newCtx))
}

func TestWithUserID(t *testing.T) {
	logger, err := NewForEnvironment("development")
	require.NoError(t, err)

	ctx := context.Background()
	userID := "user-789"

	newCtx, newLogger := WithUserID(ctx, logger, userID)

	assert.NotNil(t, newCtx)
	assert.NotNil(t, newLogger)
	assert.Equal(t, userID, GetUserID(newCtx))
}

func TestWithAccountID(t *testing.T) {
	logger, err := NewForEnvironment("development")
	require.NoError(t, err)

	ctx := context.Background()
	accountID := "8d5f3c1e-0000-4000-8000-0123456789ab"

	newCtx, newLogger := WithAccountID(ctx, logger, accountID)

	assert.NotNil(t, newCtx)
	assert.NotNil(t, newLogger)
	assert.Equal(t, accountID, GetAccountID(newCtx))
}

func TestGetRequestID_NotFound(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
}

func TestGetUserID_NotFound(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
}

func TestGetAccountID_NotFound(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetAccountID(ctx))
}

func TestEnrichedLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "msg", LevelKey: "level"}),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	)
	logger := zap.New(core)

	ctx := context.Background()
	ctx, logger = WithRequestID(ctx, logger, "req-abc")
	_, logger = WithAccountID(ctx, logger, "acc-def")

	logger.Info("enriched entry")

	out := buf.String()
	assert.Contains(t, out, "req-abc")
	assert.Contains(t, out, "acc-def")
	assert.Contains(t, out, "enriched entry")
}

func TestContextValuesAreIndependent(t *testing.T) {
	logger := zap.NewNop()

	base := context.Background()
	withReq, _ := WithRequestID(base, logger, "req-1")
	withAcc, _ := WithAccountID(base, logger, "acc-1")

	assert.Equal(t, "req-1", GetRequestID(withReq))
	assert.Empty(t, GetAccountID(withReq))

	assert.Equal(t, "acc-1", GetAccountID(withAcc))
	assert.Empty(t, GetRequestID(withAcc))
}
