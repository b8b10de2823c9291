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
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// captureStdout swaps the package stdout writer for a buffer and returns a
// function that restores it and returns what was captured.
func captureStdout(t *testing.T) func() string {
	t.Helper()

	var buf bytes.Buffer
	orig := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = orig })

	return func() string {
		osStdout = orig
		return buf.String()
	}
}

func TestSetup_Destination(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		stdout := captureStdout(t)
		var file bytes.Buffer
		m := NewSlogManager()
		m.Setup(Options{File: &file, Level: "info"})
		m.Logger().Info("room created")

		assert.Contains(t, file.String(), "room created")
		assert.Empty(t, stdout())
	})

	t.Run("stdout", func(t *testing.T) {
		stdout := captureStdout(t)
		m := NewSlogManager()
		m.Setup(Options{Level: "info"})
		m.Logger().Info("room created")

		assert.Contains(t, stdout(), "room created")
	})

	t.Run("re-setup moves to the new file", func(t *testing.T) {
		var boot, full bytes.Buffer
		m := NewSlogManager()
		m.Setup(Options{File: &boot, Level: "info"})
		m.Logger().Info("loading config")
		m.Setup(Options{File: &full, Level: "info"})
		m.Logger().Info("day advanced")

		assert.Contains(t, boot.String(), "loading config")
		assert.NotContains(t, boot.String(), "day advanced")
		assert.Contains(t, full.String(), "day advanced")
	})
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(Options{File: &buf, Level: tt.level})

			m.Logger().Debug("part installed")
			m.Logger().Info("race finished")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("part installed")))
			assert.Contains(t, buf.String(), "race finished")
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"Info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestWriteLog(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "debug"})

	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR", "TRACE"} {
		m.WriteLog("gorm:Init", "migrated "+level, level)
	}

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=\"migrated DEBUG\" function=gorm:Init")
	assert.Contains(t, out, "level=WARN msg=\"migrated WARN\"")
	assert.Contains(t, out, "level=ERROR msg=\"migrated ERROR\"")
	// unknown levels log at info
	assert.Contains(t, out, "level=INFO msg=\"migrated TRACE\"")
}

func TestLogger_BeforeSetup(t *testing.T) {
	assert.Equal(t, slog.Default(), NewSlogManager().Logger())

	var m *SlogManager
	assert.Equal(t, slog.Default(), m.Logger())
	m.WriteLog("fn", "ignored", "info")
	NewSlogManager().WriteLog("fn", "ignored", "info")
}

func TestFlush(t *testing.T) {
	require.NoError(t, NewSlogManager().Flush(context.Background()))

	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "info", Provider: sdklog.NewLoggerProvider()})
	m.Logger().Info("race finished")

	assert.Contains(t, buf.String(), "race finished")
	require.NoError(t, m.Flush(context.Background()))
}

func TestSetup_GraylogAndRoomCount(t *testing.T) {
	var file, gelf bytes.Buffer
	rooms := 3
	m := NewSlogManager()
	m.Setup(Options{
		File:    &file,
		Level:   "info",
		Graylog: &gelf,
		Context: func() []slog.Attr { return []slog.Attr{slog.Int("rooms", rooms)} },
	})

	m.Logger().Info("tick")
	rooms = 4
	m.Logger().Info("tock")

	assert.Contains(t, file.String(), "msg=tick rooms=3")
	assert.Contains(t, file.String(), "msg=tock rooms=4")
	assert.Contains(t, gelf.String(), `"msg":"tick"`)
	assert.Contains(t, gelf.String(), `"rooms":3`)
}

func TestContextWith(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "info"})

	ctx := ContextWith(context.Background(), slog.String("requestId", "req-1"))
	ctx = ContextWith(ctx, slog.String("room", "r1"))
	assert.Equal(t, ctx, ContextWith(ctx))

	m.Logger().InfoContext(ctx, "player joined", "username", "bob")
	m.Logger().Info("no request")

	out := buf.String()
	assert.Contains(t, out, `msg="player joined" username=bob requestId=req-1 room=r1`)
	assert.Contains(t, out, "msg=\"no request\"\n")
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), nil)

	assert.Equal(t, h, h.WithGroup(""))
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "ticker")}).WithGroup("room"))
	logger.Info("rollover", "day", 4)

	assert.Contains(t, buf.String(), "component=ticker")
	assert.Contains(t, buf.String(), "room.day=4")
}

func TestFanout(t *testing.T) {
	var info, debug bytes.Buffer
	f := newFanout(
		nil,
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	require.Len(t, f, 2)
	assert.True(t, f.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newFanout().Enabled(context.Background(), slog.LevelError))

	logger := slog.New(f.WithAttrs([]slog.Attr{slog.String("room", "r1")}))
	logger.Debug("entry replaced")
	logger.Info("race finished")

	assert.NotContains(t, info.String(), "entry replaced")
	assert.Contains(t, info.String(), `msg="race finished" room=r1`)
	assert.Contains(t, debug.String(), `msg="entry replaced" room=r1`)

	assert.Equal(t, f, f.WithGroup(""))
	slog.New(f.WithGroup("player")).Info("paid", "money", 3500)
	assert.Contains(t, info.String(), "player.money=3500")
}

// brokenSink fails every record, like a Graylog socket that went away.
type brokenSink struct{ slog.Handler }

func (brokenSink) Enabled(context.Context, slog.Level) bool { return true }

func (brokenSink) Handle(context.Context, slog.Record) error {
	return errors.New("connection refused")
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	var file bytes.Buffer
	f := newFanout(brokenSink{}, slog.NewTextHandler(&file, nil))

	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "day advanced", 0)
	err := f.Handle(context.Background(), r)
	require.ErrorContains(t, err, "connection refused")
	assert.Contains(t, file.String(), "day advanced")
}
