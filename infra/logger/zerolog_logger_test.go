package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZerologLogger_TagsServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newZerologLogger(&buf, "dispatch")
	l.Infof("order %s assigned", "o1")

	out := buf.String()
	assert.Contains(t, out, `"service":"dispatchd"`)
	assert.Contains(t, out, `"component":"dispatch"`)
	assert.Contains(t, out, "order o1 assigned")
}

func TestZerologLogger_DebugHiddenAtDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newZerologLogger(&buf, "dispatch")
	l.Debugf("hidden %d", 1)
	l.Debugw("hidden", map[string]any{"k": 1})
	assert.Empty(t, buf.String())
}

func TestZerologLogger_LevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	l := newZerologLogger(&buf, "dispatch")
	l.Debugw("claim", map[string]any{"rider": "r1"})
	assert.Contains(t, buf.String(), `"rider":"r1"`)
}
