package log

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	fn()
	return buf.String()
}

func TestCslLogger_DefaultFloorSuppressesDebug(t *testing.T) {
	l, err := NewCslLogger()
	require.NoError(t, err)

	out := captureOutput(t, func() {
		l.Debug(context.Background(), "should not appear")
		l.Info(context.Background(), "should appear")
	})

	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestCslLogger_UnrecognizedLevelFallsBackToInfo(t *testing.T) {
	l, err := NewCslLoggerAtLevel("not-a-real-level")
	require.NoError(t, err)

	out := captureOutput(t, func() {
		l.Debug(context.Background(), "debug line")
		l.Warn(context.Background(), "warn line")
	})

	assert.NotContains(t, out, "debug line")
	assert.Contains(t, out, "warn line")
}

func TestCslLogger_SetLevelReconfiguresAtRuntime(t *testing.T) {
	l, err := NewCslLoggerAtLevel("error")
	require.NoError(t, err)

	out := captureOutput(t, func() {
		l.Warn(context.Background(), "muted before reload")
	})
	assert.Empty(t, strings.TrimSpace(out))

	l.SetLevel("debug")

	out = captureOutput(t, func() {
		l.Warn(context.Background(), "visible after reload")
	})
	assert.Contains(t, out, "visible after reload")
}
