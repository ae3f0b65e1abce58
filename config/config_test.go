package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/bpvm/jit"
	"github.com/colorfulnotion/bpvm/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bpvm.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())

	vc := cfg.VMConfig()
	assert.Equal(t, vm.DefaultMaxFrames, vc.MaxFrames)
	assert.Equal(t, vm.DispatchTable, vc.Dispatch)

	jc := cfg.JITConfig()
	assert.True(t, jc.Enabled)
	assert.Equal(t, jit.DefaultThreshold, jc.Threshold)
}

func TestLoadPartial(t *testing.T) {
	path := writeFile(t, `
[vm]
dispatch = "switch"
max_frames = 64

[jit]
threshold = 10

[log]
level = "debug"
modules = "vm,jit"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	vc := cfg.VMConfig()
	assert.Equal(t, vm.DispatchSwitch, vc.Dispatch)
	assert.Equal(t, 64, vc.MaxFrames)
	// untouched keys keep their defaults
	assert.Equal(t, vm.DefaultMaxHandlers, vc.MaxHandlers)
	assert.Equal(t, 10, cfg.JITConfig().Threshold)
	assert.True(t, cfg.JIT.Enabled)
	assert.Equal(t, "vm,jit", cfg.Log.Modules)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"dispatch":  "[vm]\ndispatch = \"threaded\"\n",
		"threshold": "[jit]\nthreshold = 0\n",
		"frames":    "[vm]\nmax_frames = -1\n",
		"level":     "[log]\nlevel = \"loud\"\n",
		"syntax":    "[vm\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.JIT.Enabled = false
	cfg.VM.Dispatch = "switch"

	var buf bytes.Buffer
	require.NoError(t, cfg.Write(&buf))
	assert.Contains(t, buf.String(), "[jit]")

	got, err := Load(writeFile(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
