package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ReleaseWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("release", &buf)

	log.With("component", "scheduler").Info(context.Background(), "tick done", "expired", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tick done", entry["msg"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, float64(3), entry["expired"])
}

func TestNew_ReleaseSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("release", &buf)

	log.Debug(context.Background(), "noisy")
	assert.Zero(t, buf.Len())
}

func TestNew_DebugWritesText(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("debug", &buf)

	log.Warn(context.Background(), "slow query", "ms", 120)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "ms=120")
}

func TestDiscard(t *testing.T) {
	var l Logger = Discard()
	assert.NotPanics(t, func() {
		l.Error(context.Background(), "ignored", "err", "x")
	})
}
