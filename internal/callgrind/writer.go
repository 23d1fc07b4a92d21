package callgrind

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
)

// Version is the on-disk binary index format version this package reads
// and writes.
const Version uint32 = 7

const wordSize = 4

// writeIndex serializes table and headers into the layout described in
// the binary index format and atomically publishes it at outputPath: the
// file is built under a temporary name in the same directory and renamed
// into place only on success, so a failure never leaves a partial index
// at outputPath.
func writeIndex(outputPath string, table *functionTable, headers []string) error {
	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, ".cgprof-index-*.tmp")
	if err != nil {
		return cgerrors.NewIoOpenError(outputPath, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if err := encodeIndex(tmp, table, headers); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return cgerrors.NewIoWriteError(outputPath, "close", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return cgerrors.NewIoWriteError(outputPath, "rename", err)
	}
	return nil
}

func encodeIndex(f *os.File, table *functionTable, headers []string) error {
	w := bufio.NewWriter(f)

	n := table.count()

	// Placeholder header: version, headersPos (patched later), functionCount.
	if err := writeWord(w, Version); err != nil {
		return err
	}
	if err := writeWord(w, 0); err != nil {
		return err
	}
	if err := writeWord(w, uint32(n)); err != nil {
		return err
	}

	// Reserve the function-offset table.
	for i := 0; i < n; i++ {
		if err := writeWord(w, 0); err != nil {
			return err
		}
	}

	offsets := make([]uint32, n)
	pos := uint32(12 + 4*n)

	for i := 0; i < n; i++ {
		offsets[i] = pos
		written, err := writeRecord(w, table.record(uint32(i)))
		if err != nil {
			return err
		}
		pos += written
	}

	if err := w.Flush(); err != nil {
		return cgerrors.NewIoWriteError(f.Name(), "flush", err)
	}

	headersPos := pos
	for _, h := range headers {
		if _, err := f.WriteString(h); err != nil {
			return cgerrors.NewIoWriteError(f.Name(), "write", err)
		}
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return cgerrors.NewIoWriteError(f.Name(), "write", err)
		}
	}

	// Patch headersPos at offset 4.
	if err := patchWord(f, 4, headersPos); err != nil {
		return err
	}
	// Patch the offset table starting at offset 12.
	buf := make([]byte, 4*n)
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(buf[4*i:], off)
	}
	if _, err := f.WriteAt(buf, 12); err != nil {
		return cgerrors.NewIoWriteError(f.Name(), "patch offset table", err)
	}
	return nil
}

// writeRecord emits one per-function record and returns its byte length.
func writeRecord(w *bufio.Writer, rec *functionRecord) (uint32, error) {
	selfCost, err := narrow(rec.summedSelfCost, "summedSelfCost", rec.name)
	if err != nil {
		return 0, err
	}
	inclCost, err := narrow(rec.summedInclusiveCost, "summedInclusiveCost", rec.name)
	if err != nil {
		return 0, err
	}

	m := len(rec.calledFrom)
	k := len(rec.subCalls)

	words := []uint32{rec.line, selfCost, inclCost, rec.invocationCount, uint32(m), uint32(k)}
	for _, word := range words {
		if err := writeWord(w, word); err != nil {
			return 0, err
		}
	}

	for _, key := range rec.calledFromOrder {
		stats := rec.calledFrom[key]
		cost, err := narrow(stats.summedCallCost, "calledFrom.summedCallCost", rec.name)
		if err != nil {
			return 0, err
		}
		for _, word := range []uint32{key.index, key.line, stats.callCount, cost} {
			if err := writeWord(w, word); err != nil {
				return 0, err
			}
		}
	}
	for _, key := range rec.subCallsOrder {
		stats := rec.subCalls[key]
		cost, err := narrow(stats.summedCallCost, "subCalls.summedCallCost", rec.name)
		if err != nil {
			return 0, err
		}
		for _, word := range []uint32{key.index, key.line, stats.callCount, cost} {
			if err := writeWord(w, word); err != nil {
				return 0, err
			}
		}
	}

	if _, err := w.WriteString(rec.filename); err != nil {
		return 0, cgerrors.NewIoWriteError("", "write filename", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return 0, cgerrors.NewIoWriteError("", "write filename", err)
	}
	if _, err := w.WriteString(rec.name); err != nil {
		return 0, cgerrors.NewIoWriteError("", "write function name", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return 0, cgerrors.NewIoWriteError("", "write function name", err)
	}

	size := uint32(6*wordSize) + uint32(4*wordSize*(m+k)) + uint32(len(rec.filename)+1) + uint32(len(rec.name)+1)
	return size, nil
}

func narrow(v uint64, field, fn string) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, cgerrors.NewIoWriteError("", "write", fmt.Errorf("%s for %q overflows 32 bits: %d", field, fn, v))
	}
	return uint32(v), nil
}

func writeWord(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return cgerrors.NewIoWriteError("", "write", err)
	}
	return nil
}

func patchWord(f *os.File, offset int64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := f.WriteAt(buf[:], offset); err != nil {
		return cgerrors.NewIoWriteError(f.Name(), "patch", err)
	}
	return nil
}
