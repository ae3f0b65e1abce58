package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"trace":    "trace",
		"DEBUG":    "debug",
		"info":     "info",
		"warning":  "warn",
		"error":    "error",
		"critical": "crit",
	}
	for in, want := range cases {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, LevelString(lvl))
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false)))

	DisableModule(JITModule)
	Debug(JITModule, "hidden")
	assert.Empty(t, buf.String())

	EnableModules("jit, gc")
	defer DisableModule(JITModule)
	defer DisableModule(GCModule)
	Debug(JITModule, "compiled", "fn", "fib")
	Trace(GCModule, "collect")
	out := buf.String()
	assert.True(t, strings.Contains(out, "compiled"))
	assert.True(t, strings.Contains(out, "module=jit"))
	assert.True(t, strings.Contains(out, "TRACE"))

	// Info is never filtered by module.
	buf.Reset()
	Info(VMModule, "run finished", "exit", 0)
	assert.Contains(t, buf.String(), "run finished")
}
