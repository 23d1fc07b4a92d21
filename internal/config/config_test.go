package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.kdl"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.ProxyFunctions)
	assert.Equal(t, "usec", cfg.CostFormat)
	assert.Empty(t, cfg.FastPathBinary)
}

func TestLoad_ParsesProxyFunctionsAndFormat(t *testing.T) {
	content := `
proxy-functions {
    - "call_user_func"
    - "call_user_func_array"
}
cost-format "percent"
fast-path "/usr/local/bin/cgprof-native"
`
	path := filepath.Join(t.TempDir(), ".cgprof.kdl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	_, ok := cfg.ProxyFunctions["call_user_func"]
	assert.True(t, ok)
	_, ok = cfg.ProxyFunctions["call_user_func_array"]
	assert.True(t, ok)
	assert.Equal(t, "percent", cfg.CostFormat)
	assert.Equal(t, "/usr/local/bin/cgprof-native", cfg.FastPathBinary)
}

func TestValidate_RejectsUnknownFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CostFormat = "nanoseconds"
	require.Error(t, cfg.Validate())
}

func TestValidate_AcceptsKnownFormats(t *testing.T) {
	for _, f := range []string{"percent", "msec", "usec"} {
		cfg := DefaultConfig()
		cfg.CostFormat = f
		require.NoError(t, cfg.Validate())
	}
}
