package logging

import (
	"bytes"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, charmlog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, charmlog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, charmlog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, charmlog.InfoLevel, ParseLevel("bogus"))
}

func TestNew_RespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", JSON: true, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "step", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"step":2`)
}
