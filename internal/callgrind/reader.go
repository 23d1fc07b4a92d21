package callgrind

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strconv"
	"strings"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
)

// FunctionInfo is the per-function metadata returned by Reader.FunctionInfo.
type FunctionInfo struct {
	File                 string
	Line                 uint32
	FunctionName         string
	SummedSelfCost       string
	SummedSelfCostRaw    uint64
	SummedInclusiveCost  string
	InvocationCount      uint32
	CalledFromInfoCount  uint32
	SubCallInfoCount     uint32
}

// EdgeInfo is one caller or callee edge as returned by CalledFromInfo and
// SubCallInfo.
type EdgeInfo struct {
	FunctionNr     uint32
	Line           uint32
	CallCount      uint32
	SummedCallCost string
}

// Reader opens a binary index and answers per-function queries against
// it via seek-based random access, without ever rescanning the source
// trace. A Reader owns its file handle exclusively for its lifetime;
// Close releases it. A Reader is not safe for concurrent use — open
// independent Readers on independent file handles for parallelism.
type Reader struct {
	f              *os.File
	path           string
	headersPos     uint32
	functionOffset []uint32
	defaultFormat  CostFormat

	headersLoaded bool
	headerValues  map[string]string
	runs          int
	summary       uint64
}

// Open constructs a Reader over the binary index at path, validating its
// version. defaultFormat is used by FunctionInfo/CalledFromInfo/
// SubCallInfo unless overridden per call.
func Open(path string, defaultFormat CostFormat) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cgerrors.NewIoOpenError(path, err)
	}

	r := &Reader{f: f, path: path, defaultFormat: defaultFormat}

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, cgerrors.NewIoReadError(path, "read header", err)
	}
	version := binary.LittleEndian.Uint32(header[0:4])
	if version != Version {
		f.Close()
		return nil, &cgerrors.VersionMismatchError{Found: version, Expected: Version}
	}
	r.headersPos = binary.LittleEndian.Uint32(header[4:8])
	count := binary.LittleEndian.Uint32(header[8:12])

	offsetBytes := make([]byte, 4*count)
	if _, err := io.ReadFull(f, offsetBytes); err != nil {
		f.Close()
		return nil, cgerrors.NewIoReadError(path, "read offset table", err)
	}
	r.functionOffset = make([]uint32, count)
	for i := range r.functionOffset {
		r.functionOffset[i] = binary.LittleEndian.Uint32(offsetBytes[4*i:])
	}

	return r, nil
}

// Close releases the Reader's file handle. It is safe to call more than
// once.
func (r *Reader) Close() error {
	return r.f.Close()
}

// FunctionCount returns the number of functions recorded in the index.
func (r *Reader) FunctionCount() uint32 {
	return uint32(len(r.functionOffset))
}

func (r *Reader) offsetFor(i uint32) (uint32, error) {
	if i >= uint32(len(r.functionOffset)) {
		return 0, cgerrors.NewOutOfRangeError("function", i, uint32(len(r.functionOffset)))
	}
	return r.functionOffset[i], nil
}

func (r *Reader) readWordsAt(offset int64, n int) ([]uint32, error) {
	buf := make([]byte, 4*n)
	if _, err := r.f.ReadAt(buf, offset); err != nil {
		return nil, cgerrors.NewIoReadError(r.path, "read", err)
	}
	words := make([]uint32, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return words, nil
}

func (r *Reader) readLineStringAt(offset int64) (string, int64, error) {
	if _, err := r.f.Seek(offset, io.SeekStart); err != nil {
		return "", 0, cgerrors.NewIoReadError(r.path, "seek", err)
	}
	br := bufio.NewReader(r.f)
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", 0, cgerrors.NewIoReadError(r.path, "read string", err)
	}
	consumed := int64(len(line))
	return strings.TrimSuffix(line, "\n"), offset + consumed, nil
}

// FunctionInfo returns metadata for function i, formatting costs with
// the Reader's default format.
func (r *Reader) FunctionInfo(i uint32) (FunctionInfo, error) {
	return r.FunctionInfoWithFormat(i, r.defaultFormat)
}

// FunctionInfoWithFormat is FunctionInfo with a per-call format override.
func (r *Reader) FunctionInfoWithFormat(i uint32, format CostFormat) (FunctionInfo, error) {
	off, err := r.offsetFor(i)
	if err != nil {
		return FunctionInfo{}, err
	}

	words, err := r.readWordsAt(int64(off), 6)
	if err != nil {
		return FunctionInfo{}, err
	}
	line, selfCost, inclCost, invocations, m, k := words[0], words[1], words[2], words[3], words[4], words[5]

	summary, err := r.summaryTotal()
	if err != nil {
		return FunctionInfo{}, err
	}

	stringsOffset := int64(off) + int64(6*wordSize) + int64(4*wordSize*(int(m)+int(k)))
	filename, next, err := r.readLineStringAt(stringsOffset)
	if err != nil {
		return FunctionInfo{}, err
	}
	funcName, _, err := r.readLineStringAt(next)
	if err != nil {
		return FunctionInfo{}, err
	}

	return FunctionInfo{
		File:                filename,
		Line:                line,
		FunctionName:        funcName,
		SummedSelfCost:      formatCost(uint64(selfCost), format, summary),
		SummedSelfCostRaw:   uint64(selfCost),
		SummedInclusiveCost: formatCost(uint64(inclCost), format, summary),
		InvocationCount:     invocations,
		CalledFromInfoCount: m,
		SubCallInfoCount:    k,
	}, nil
}

// CalledFromInfo returns caller-edge j (0 <= j < M) for function i.
func (r *Reader) CalledFromInfo(i, j uint32) (EdgeInfo, error) {
	return r.CalledFromInfoWithFormat(i, j, r.defaultFormat)
}

func (r *Reader) CalledFromInfoWithFormat(i, j uint32, format CostFormat) (EdgeInfo, error) {
	off, err := r.offsetFor(i)
	if err != nil {
		return EdgeInfo{}, err
	}
	header, err := r.readWordsAt(int64(off), 6)
	if err != nil {
		return EdgeInfo{}, err
	}
	m := header[4]
	if j >= m {
		return EdgeInfo{}, cgerrors.NewOutOfRangeError("calledFrom", j, m)
	}

	edgeOffset := int64(off) + int64(wordSize)*int64(6+4*j)
	return r.readEdge(edgeOffset, format)
}

// SubCallInfo returns sub-call edge j (0 <= j < K) for function i.
func (r *Reader) SubCallInfo(i, j uint32) (EdgeInfo, error) {
	return r.SubCallInfoWithFormat(i, j, r.defaultFormat)
}

func (r *Reader) SubCallInfoWithFormat(i, j uint32, format CostFormat) (EdgeInfo, error) {
	off, err := r.offsetFor(i)
	if err != nil {
		return EdgeInfo{}, err
	}
	header, err := r.readWordsAt(int64(off), 6)
	if err != nil {
		return EdgeInfo{}, err
	}
	m, k := header[4], header[5]
	if j >= k {
		return EdgeInfo{}, cgerrors.NewOutOfRangeError("subCall", j, k)
	}

	edgeOffset := int64(off) + int64(wordSize)*int64(6+4*int(m)+4*int(j))
	return r.readEdge(edgeOffset, format)
}

func (r *Reader) readEdge(offset int64, format CostFormat) (EdgeInfo, error) {
	words, err := r.readWordsAt(offset, 4)
	if err != nil {
		return EdgeInfo{}, err
	}
	summary, err := r.summaryTotal()
	if err != nil {
		return EdgeInfo{}, err
	}
	return EdgeInfo{
		FunctionNr:     words[0],
		Line:           words[1],
		CallCount:      words[2],
		SummedCallCost: formatCost(uint64(words[3]), format, summary),
	}, nil
}

// GetHeader returns the value of a header key. On first call this scans
// the headers block once and caches the result; subsequent calls serve
// from the cache. Unknown keys return "".
func (r *Reader) GetHeader(name string) (string, error) {
	if err := r.ensureHeaders(); err != nil {
		return "", err
	}
	switch name {
	case "runs":
		return strconv.Itoa(r.runs), nil
	case "summary":
		return strconv.FormatUint(r.summary, 10), nil
	}
	return r.headerValues[name], nil
}

func (r *Reader) summaryTotal() (uint64, error) {
	if err := r.ensureHeaders(); err != nil {
		return 0, err
	}
	return r.summary, nil
}

func (r *Reader) ensureHeaders() error {
	if r.headersLoaded {
		return nil
	}
	r.headerValues = map[string]string{"cmd": "", "creator": ""}
	r.runs = 0
	r.summary = 0

	if _, err := r.f.Seek(int64(r.headersPos), io.SeekStart); err != nil {
		return cgerrors.NewIoReadError(r.path, "seek", err)
	}
	scanner := bufio.NewScanner(r.f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if key == "summary" {
			r.runs++
			r.summary += firstFieldAsUint(value)
			continue
		}
		r.headerValues[key] = value
	}
	if err := scanner.Err(); err != nil {
		return cgerrors.NewIoReadError(r.path, "scan headers", err)
	}
	r.headersLoaded = true
	return nil
}

// firstFieldAsUint parses the leading whitespace-delimited field of a
// summary value as a time cost, ignoring any trailing fields (e.g. a
// memory component).
func firstFieldAsUint(value string) uint64 {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
