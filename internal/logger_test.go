package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangalink/config"
	"pangalink/entity"
)

func TestLoggerStoresWarnings(t *testing.T) {
	store := NewMemoryStore(30)
	logger := NewLogger("payments", true, store)

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("save payment", errors.New("timeout"))

	require.Len(t, store.logs, 2)
	warning := store.logs[0].(*entity.LogMessage)
	assert.Equal(t, "warning", warning.Level)
	assert.Equal(t, "payments", warning.Category)
	assert.Equal(t, "warn line", warning.Text)
	failure := store.logs[1].(*entity.LogMessage)
	assert.Equal(t, "error", failure.Level)
	assert.Equal(t, "save payment: timeout", failure.Text)
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background())
	id := GetRequestID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetRequestID(WithRequestID(ctx)))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRedisCounterDisabled(t *testing.T) {
	conf := &config.Config{}
	counter, err := NewRedisCounter(conf)
	assert.NoError(t, err)
	assert.Nil(t, counter)
}
