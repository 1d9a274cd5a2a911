package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogrusLogger_Fields(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogrus()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	l.WithField("pool", "render-buffers").Warn("release of nil entry ignored")

	out := buf.String()
	assert.Contains(t, out, `"pool":"render-buffers"`)
	assert.Contains(t, out, "release of nil entry ignored")
	assert.Contains(t, out, `"level":"warning"`)
}

func TestLogrusLogger_ErrorCarriesCause(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogrus()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	l.Error("cleanup task failed", errors.New("disk full"))

	assert.Contains(t, buf.String(), "disk full")
}

func TestLogrusLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogrus()
	l.SetOutput(&buf)
	l.SetLevel(logrus.WarnLevel)

	l.Debug("invisible")
	l.Info("also invisible")
	assert.Empty(t, buf.String())

	l.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNopLogger(t *testing.T) {
	n := NewNop()

	// Must be safe with zero configuration, including chained fields.
	n.Debug("x")
	n.Error("x", errors.New("boom"))
	assert.Equal(t, n, n.WithField("k", "v"))
	assert.Equal(t, n, n.WithFields(map[string]interface{}{"k": "v"}))
}
