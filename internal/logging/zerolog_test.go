package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerolog_SharesSinkAndLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "warn"})

	zl := Zerolog(m)
	assert.Equal(t, zerolog.WarnLevel, zl.GetLevel())

	zl.Info().Msg("hidden")
	zl.Warn().Str("host", "db").Msg("fallback")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "fallback")
	assert.Contains(t, buf.String(), "host=db")
}

func TestZerolog_Unconfigured(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, Zerolog(nil).GetLevel())
	assert.Equal(t, zerolog.Disabled, Zerolog(NewSlogManager()).GetLevel())
}

func TestHubLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewHubLoggerTo(&buf)

	l.Debug("debug msg", "key1", "value1")
	l.Info("info msg", "count", 42)
	l.Error("error msg", "err", "boom", "dangling")

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"key1":"value1"`)
	assert.Contains(t, out, `"count":42`)
	assert.Contains(t, out, `"level":"error"`)
	assert.NotContains(t, out, "dangling")
}

func TestToFields_SkipsNonStringKeys(t *testing.T) {
	fields := toFields([]any{1, "a", "b", 2})
	assert.Equal(t, map[string]any{"b": 2}, fields)
}
