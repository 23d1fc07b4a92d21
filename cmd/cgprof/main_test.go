package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyFunctionsCSV_SortedDeterministic(t *testing.T) {
	set := map[string]struct{}{
		"call_user_func_array": {},
		"call_user_func":       {},
	}
	assert.Equal(t, "call_user_func,call_user_func_array", proxyFunctionsCSV(set))
	assert.Equal(t, "", proxyFunctionsCSV(nil))
}

func TestRunFastPath_SucceedsOnZeroExit(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.idx")
	ok := runFastPath("true", dir, out, "")
	assert.True(t, ok)
}

func TestRunFastPath_FailsOnNonZeroExit(t *testing.T) {
	ok := runFastPath("false", "in", "out", "")
	assert.False(t, ok)
}

func TestRunFastPath_FailsWhenBinaryMissing(t *testing.T) {
	ok := runFastPath("/no/such/cgprof-native-binary", "in", "out", "")
	assert.False(t, ok)
}

func TestIndexPathFor_DefaultsAlongsideTrace(t *testing.T) {
	assert.Equal(t, "/traces/a.callgrind.idx", indexPathFor("/traces/a.callgrind", ""))
}

func TestIndexPathFor_UsesOutDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "a.callgrind.idx"), indexPathFor("/traces/a.callgrind", "/out"))
}

func TestIsStale_TrueWhenIndexMissing(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "trace.callgrind")
	require.NoError(t, os.WriteFile(in, []byte("fl=a\n"), 0o644))

	stale, err := isStale(in, filepath.Join(dir, "missing.idx"))
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestIsStale_FalseAfterRecordingMatchingFingerprint(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "trace.callgrind")
	out := filepath.Join(dir, "trace.idx")
	require.NoError(t, os.WriteFile(in, []byte("fl=a\n"), 0o644))
	require.NoError(t, os.WriteFile(out, []byte("index"), 0o644))

	require.NoError(t, recordFingerprint(in, out))

	stale, err := isStale(in, out)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestIsStale_TrueAfterInputChanges(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "trace.callgrind")
	out := filepath.Join(dir, "trace.idx")
	require.NoError(t, os.WriteFile(in, []byte("fl=a\n"), 0o644))
	require.NoError(t, os.WriteFile(out, []byte("index"), 0o644))
	require.NoError(t, recordFingerprint(in, out))

	require.NoError(t, os.WriteFile(in, []byte("fl=b\n"), 0o644))

	stale, err := isStale(in, out)
	require.NoError(t, err)
	assert.True(t, stale)
}
