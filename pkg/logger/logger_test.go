package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("estate", Config{Level: "debug", Format: "json", Output: &buf})

	log.Named("fetch").WithField("operation", "latest").Debug("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fetch", entry["component"])
	assert.Equal(t, "latest", entry["operation"])
	assert.Equal(t, "started", entry["msg"])
}

func TestNew_LevelFallback(t *testing.T) {
	var buf bytes.Buffer
	log := New("estate", Config{Level: "chatty", Output: &buf})

	log.Debug("hidden")
	assert.Empty(t, buf.String())
	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := NewDefault("x")
	assert.Same(t, l, OrDiscard(l))
}
