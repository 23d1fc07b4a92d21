// Package digest computes a staleness fingerprint for a Callgrind trace
// file. It is a convenience outside the core's required semantics (spec
// §3 "Lifecycle" / §9): neither the Preprocessor nor the Reader consults
// it, a caller uses it to decide whether re-preprocessing is worthwhile.
package digest

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
)

// FingerprintOf streams path through xxhash64 and returns the digest.
func FingerprintOf(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, cgerrors.NewIoOpenError(path, err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, cgerrors.NewIoReadError(path, "digest", err)
	}
	return h.Sum64(), nil
}
