package logging

import (
	"bytes"
	"context"
	log "log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, log.LevelDebug, ParseLevel("debug"))
	require.Equal(t, log.LevelWarn, ParseLevel(" WARN "))
	require.Equal(t, log.LevelInfo, ParseLevel("verbose"))
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "user", "tg:1")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "tg:1")
}

func TestWithEventAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := log.New(log.NewTextHandler(&buf, nil))

	ctx, l := WithEvent(context.Background(), base, "user", "tg:1")
	require.Same(t, l, From(ctx))

	From(ctx).Info("handled")
	require.Contains(t, buf.String(), "request_id=")
	require.Contains(t, buf.String(), "user=tg:1")
}

func TestFromWithoutEventFallsBackToDefault(t *testing.T) {
	require.Same(t, log.Default(), From(context.Background()))
}
