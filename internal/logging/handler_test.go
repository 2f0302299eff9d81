package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerPlainLine(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, nil))
	log.Info("Session open", "remote", "9998887")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, padding))
	assert.Contains(t, line, " INF Session open remote=9998887\n")
	assert.NotContains(t, line, "\033[")
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, &Options{Level: slog.LevelWarn}))
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WRN shown")
}

func TestHandlerBlocksAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, nil)).With("peer", "5551234").WithGroup("conn")
	log.Debug("not enabled")
	log.Error("Relay frame", "id", "dc_1", "payload", "line one\nline two")

	out := buf.String()
	assert.Contains(t, out, "ERR Relay frame peer=5551234 conn.id=dc_1\n")
	assert.Contains(t, out, "  | line one\n")
	assert.Contains(t, out, "  | line two\n")
	assert.NotContains(t, out, "not enabled")
}

func TestHandlerColor(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, &Options{Color: true}))
	log.Warn("Broker connection lost")
	assert.Contains(t, buf.String(), ansiYellow+"WRN"+ansiReset)
}
