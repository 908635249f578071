package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textOutput(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanout_DeliversToEveryOutput(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(newFanout(textOutput(&a, slog.LevelInfo), nil, textOutput(&b, slog.LevelInfo)))

	logger.Info("cut submitted", "segment", "s1")

	assert.Contains(t, a.String(), "segment=s1")
	assert.Contains(t, b.String(), "segment=s1")
}

func TestFanout_EnabledIfAnyOutputIs(t *testing.T) {
	ctx := context.Background()
	info := textOutput(&bytes.Buffer{}, slog.LevelInfo)
	debug := textOutput(&bytes.Buffer{}, slog.LevelDebug)

	assert.False(t, newFanout(info).Enabled(ctx, slog.LevelDebug))
	assert.True(t, newFanout(info, debug).Enabled(ctx, slog.LevelDebug))
	assert.False(t, newFanout().Enabled(ctx, slog.LevelError))
}

func TestFanout_SkipsOutputsBelowLevel(t *testing.T) {
	var info, debug bytes.Buffer
	logger := slog.New(newFanout(textOutput(&info, slog.LevelInfo), textOutput(&debug, slog.LevelDebug)))

	logger.Debug("poll tick")

	assert.Empty(t, info.String())
	assert.Contains(t, debug.String(), "poll tick")
}

func TestFanout_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(textOutput(&buf, slog.LevelInfo))

	assert.Equal(t, slog.Handler(f), f.WithGroup(""))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "engine")})).
		WithGroup("pane").
		Info("route loaded", "key", "s1")

	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "pane.key=s1")
}

type failingOutput struct{ slog.Handler }

func (failingOutput) Enabled(context.Context, slog.Level) bool { return true }

func (failingOutput) Handle(context.Context, slog.Record) error {
	return errors.New("graylog unreachable")
}

func TestFanout_JoinsFailures(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(failingOutput{}, textOutput(&buf, slog.LevelInfo))

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "still delivered", 0)
	err := f.Handle(context.Background(), r)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "graylog unreachable")
	assert.Contains(t, buf.String(), "still delivered")
}

func TestDynamic_EvaluatesPerRecord(t *testing.T) {
	var buf bytes.Buffer
	clients := 0
	h := withDynamic(textOutput(&buf, slog.LevelInfo), func() []slog.Attr {
		clients++
		return []slog.Attr{slog.Int("clients", clients)}
	})

	logger := slog.New(h).With("static", "1").WithGroup("g")
	logger.Debug("dropped")
	logger.Info("first", "k", "v")
	logger.Info("second")

	out := buf.String()
	assert.Equal(t, 2, clients)
	assert.Contains(t, out, "static=1")
	assert.Contains(t, out, "g.k=v")
	assert.Contains(t, out, "g.clients=1")
	assert.Contains(t, out, "g.clients=2")
}

func TestDynamic_NilProviderPassesThrough(t *testing.T) {
	inner := textOutput(&bytes.Buffer{}, slog.LevelInfo)
	assert.Equal(t, inner, withDynamic(inner, nil))
}
