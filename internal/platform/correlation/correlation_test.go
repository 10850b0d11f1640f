package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_LengthAndUniqueness(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		require.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestWithID_Roundtrip(t *testing.T) {
	ctx := WithID(context.Background(), "abc12345")
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestForEvent_SetsIDAndEvent(t *testing.T) {
	ctx := ForEvent(context.Background(), "member_join")

	_, ok := ID(ctx)
	assert.True(t, ok)
	ev, ok := Event(ctx)
	assert.True(t, ok)
	assert.Equal(t, "member_join", ev)
}

func TestHandler_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx := WithID(context.Background(), "deadbeef")
	ctx = context.WithValue(ctx, eventKey{}, "command")
	logger.InfoContext(ctx, "handled")

	assert.Contains(t, buf.String(), "correlation_id=deadbeef")
	assert.Contains(t, buf.String(), "event=command")
}

func TestHandler_NoAttributesWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("plain")

	assert.NotContains(t, buf.String(), "correlation_id")
	assert.NotContains(t, buf.String(), "event=")
}

func TestHandler_WithAttrsKeepsInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).With("component", "scheduler")

	logger.InfoContext(WithID(context.Background(), "cafe0001"), "armed")

	assert.Contains(t, buf.String(), "component=scheduler")
	assert.Contains(t, buf.String(), "correlation_id=cafe0001")
}
