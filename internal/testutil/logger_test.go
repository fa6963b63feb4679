package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureLogger(t *testing.T) {
	logger, buf := NewCaptureLogger()
	logger.Debug("preview opened", "panel", "abc")

	assert.True(t, buf.Contains("preview opened"))
	assert.True(t, buf.Contains("panel=abc"))
	assert.False(t, buf.Contains("preview disposed"))
}

func TestTestLogger_DropsAfterCleanup(t *testing.T) {
	var w *testWriter
	t.Run("inner", func(t *testing.T) {
		w = &testWriter{t: t}
		t.Cleanup(w.stop)
		_, _ = w.Write([]byte("during\n"))
	})

	n, err := w.Write([]byte("after\n"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
}
