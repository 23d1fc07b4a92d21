package digest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintOf_Deterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.callgrind")
	require.NoError(t, os.WriteFile(path, []byte("fl=a.php\nfn=f\n1 1\n"), 0o644))

	a, err := FingerprintOf(path)
	require.NoError(t, err)
	b, err := FingerprintOf(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprintOf_DiffersOnContent(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.callgrind")
	p2 := filepath.Join(dir, "b.callgrind")
	require.NoError(t, os.WriteFile(p1, []byte("fl=a.php\nfn=f\n1 1\n"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte("fl=a.php\nfn=f\n1 2\n"), 0o644))

	a, err := FingerprintOf(p1)
	require.NoError(t, err)
	b, err := FingerprintOf(p2)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
