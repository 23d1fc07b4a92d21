package callgrind

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
	"github.com/haltmark/cgprof/internal/debug"
)

// entryPoint is the literal function name Callgrind uses for the trace
// root, inside whose block the summary header is emitted.
const entryPoint = "{main}"

// Preprocessor streams a Callgrind text file, aggregates per-function
// statistics and call edges, resolves proxy-function indirection, and
// writes the binary index. It is single-use: construct one per input
// file (see package docs on concurrency).
type Preprocessor struct {
	proxyFunctions map[string]struct{}

	table      *functionTable
	fileRes    *nameResolver
	funcRes    *nameResolver
	proxyQueue map[uint32][]proxyEntry
	headers    []string

	currentCaller uint32
	haveCaller    bool
	lineNo        int
}

// NewPreprocessor builds a Preprocessor configured with the given set of
// proxy function names. A nil or empty set disables proxy substitution
// entirely.
func NewPreprocessor(proxyFunctions map[string]struct{}) *Preprocessor {
	if proxyFunctions == nil {
		proxyFunctions = map[string]struct{}{}
	}
	return &Preprocessor{
		proxyFunctions: proxyFunctions,
		table:          newFunctionTable(),
		fileRes:        newNameResolver(),
		funcRes:        newNameResolver(),
		proxyQueue:     make(map[uint32][]proxyEntry),
	}
}

func (p *Preprocessor) isProxy(name string) bool {
	_, ok := p.proxyFunctions[name]
	return ok
}

// Run parses inputPath and writes the resulting binary index to
// outputPath. The write is all-or-nothing: a temporary file is written
// and renamed into place, so a failure mid-run never leaves a partial
// index at outputPath.
func (p *Preprocessor) Run(inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return cgerrors.NewIoOpenError(inputPath, err)
	}
	defer in.Close()

	debug.Log("preprocess", "starting %s -> %s", inputPath, outputPath)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		p.lineNo++
		return scanner.Text(), true
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		if err := p.dispatch(line, next); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return cgerrors.NewIoReadError(inputPath, "scan", err)
	}

	debug.Log("preprocess", "parsed %d functions, %d header lines", p.table.count(), len(p.headers))

	return writeIndex(outputPath, p.table, p.headers)
}

func (p *Preprocessor) dispatch(line string, next func() (string, bool)) error {
	switch {
	case strings.HasPrefix(line, "fl="):
		return p.handleFl(line, next)
	case strings.HasPrefix(line, "cfn="):
		return p.handleCfn(line, next)
	default:
		if strings.Contains(line, ": ") {
			p.headers = append(p.headers, line)
		}
		return nil
	}
}

func (p *Preprocessor) handleFl(flLine string, next func() (string, bool)) error {
	filename := p.fileRes.resolveFile(strings.TrimPrefix(flLine, "fl="))

	fnLine, ok := next()
	if !ok {
		return cgerrors.NewMalformedInputError(p.lineNo, "fl= not followed by fn=")
	}
	if !strings.HasPrefix(fnLine, "fn=") {
		return cgerrors.NewMalformedInputError(p.lineNo, "fl= not followed by fn=")
	}
	name := p.funcRes.resolveFunc(strings.TrimPrefix(fnLine, "fn="))
	idx := p.table.indexFor(name)
	p.currentCaller = idx
	p.haveCaller = true

	if name == entryPoint {
		// Callgrind places the trace's summary header directly after
		// fn={main}, followed by one more line before the cost line
		// (typically a zero-cost warmup entry); both are positional,
		// not prefix-dispatched, since they fall inside the {main}
		// block itself.
		summaryLine, ok := next()
		if !ok {
			return cgerrors.NewMalformedInputError(p.lineNo, "{main} block missing summary header")
		}
		p.headers = append(p.headers, summaryLine)
		if _, ok := next(); !ok { // discarded line
			return cgerrors.NewMalformedInputError(p.lineNo, "{main} block truncated after summary header")
		}
	}

	costLine, ok := next()
	if !ok {
		return cgerrors.NewMalformedInputError(p.lineNo, "fn= not followed by a cost line")
	}
	lnr, cost, err := parseCostLine(costLine)
	if err != nil {
		return cgerrors.NewMalformedInputError(p.lineNo, err.Error())
	}

	rec := p.table.record(idx)
	if rec.invocationCount == 0 {
		rec.filename = filename
		rec.line = lnr
		rec.invocationCount = 1
		rec.summedSelfCost = cost
		rec.summedInclusiveCost = cost
	} else {
		rec.invocationCount++
		rec.summedSelfCost += cost
		rec.summedInclusiveCost += cost
	}
	return nil
}

func (p *Preprocessor) handleCfn(cfnLine string, next func() (string, bool)) error {
	if !p.haveCaller {
		return cgerrors.NewMalformedInputError(p.lineNo, "cfn= with no open fl=/fn= block")
	}
	calleeName := p.funcRes.resolveFunc(strings.TrimPrefix(cfnLine, "cfn="))

	if _, ok := next(); !ok { // calls= line, discarded
		return cgerrors.NewMalformedInputError(p.lineNo, "cfn= not followed by a calls= line")
	}
	costLine, ok := next()
	if !ok {
		return cgerrors.NewMalformedInputError(p.lineNo, "cfn= not followed by a cost line")
	}
	lnr, cost, err := parseCostLine(costLine)
	if err != nil {
		return cgerrors.NewMalformedInputError(p.lineNo, err.Error())
	}

	callerIndex := p.currentCaller
	calleeIndex := p.table.indexFor(calleeName)

	callerName := p.table.record(callerIndex).name
	if p.isProxy(callerName) {
		p.proxyQueue[callerIndex] = append(p.proxyQueue[callerIndex], proxyEntry{
			calleeIndex: calleeIndex,
			line:        lnr,
			cost:        cost,
		})
		return nil
	}

	if p.isProxy(calleeName) {
		q := p.proxyQueue[calleeIndex]
		if len(q) == 0 {
			return cgerrors.NewMalformedInputError(p.lineNo, fmt.Sprintf("proxy %q called with no pending redirection", calleeName))
		}
		entry := q[0]
		p.proxyQueue[calleeIndex] = q[1:]
		// Only the callee and cost are substituted; the call site line
		// stays the one at which the caller invoked the proxy (the
		// proxy is transparent, but attribution belongs to the site
		// the caller actually wrote).
		calleeIndex = entry.calleeIndex
		cost = entry.cost
	}

	caller := p.table.record(callerIndex)
	callee := p.table.record(calleeIndex)

	caller.summedInclusiveCost += cost
	upsertEdge(callee.calledFrom, &callee.calledFromOrder, edgeKey{index: callerIndex, line: lnr}, cost)
	upsertEdge(caller.subCalls, &caller.subCallsOrder, edgeKey{index: calleeIndex, line: lnr}, cost)
	return nil
}

// parseCostLine parses a "<line> <cost>" pair. Only the first two
// whitespace-delimited fields are consulted even if more are present,
// mirroring Callgrind's own tolerance for trailing per-event columns.
func parseCostLine(line string) (lnr uint32, cost uint64, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("malformed cost line %q", line)
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cost line %q: %w", line, err)
	}
	c, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed cost line %q: %w", line, err)
	}
	return uint32(n), c, nil
}
