package callgrind

// edgeKey pairs a function index with a source line. It is the composite
// key used for both calledFrom and subCalls edge maps — a stable,
// bijective alternative to the concatenated-decimal-string key the
// original dump format effectively used.
type edgeKey struct {
	index uint32
	line  uint32
}

// edgeStats is the value half of an edge: how many times the edge fired
// and the summed cost attributed to it.
type edgeStats struct {
	callCount      uint32
	summedCallCost uint64
}

// functionRecord is the in-memory aggregate for one function across the
// whole trace. Costs are accumulated in 64 bits internally even though
// the on-disk word is 32 bits (see writer.go) so that overflow is
// detectable rather than silently wrapping.
type functionRecord struct {
	name                string
	filename            string
	line                uint32
	invocationCount     uint32
	summedSelfCost      uint64
	summedInclusiveCost uint64

	calledFrom      map[edgeKey]*edgeStats
	calledFromOrder []edgeKey
	subCalls        map[edgeKey]*edgeStats
	subCallsOrder   []edgeKey
}

func newFunctionRecord(name string) *functionRecord {
	return &functionRecord{
		name:       name,
		calledFrom: make(map[edgeKey]*edgeStats),
		subCalls:   make(map[edgeKey]*edgeStats),
	}
}

// proxyEntry is one pending redirection captured when a configured proxy
// function invokes its real target.
type proxyEntry struct {
	calleeIndex uint32
	line        uint32
	cost        uint64
}

// functionTable assigns dense, first-observation-ordered indices to
// function names, independent of whether the name was first seen as a
// caller, a callee, or neither.
type functionTable struct {
	indexOf map[string]uint32
	records []*functionRecord
}

func newFunctionTable() *functionTable {
	return &functionTable{indexOf: make(map[string]uint32)}
}

// indexFor returns the dense index for name, allocating one in
// first-observation order if this is the first time name has been seen.
func (t *functionTable) indexFor(name string) uint32 {
	if idx, ok := t.indexOf[name]; ok {
		return idx
	}
	idx := uint32(len(t.records))
	t.indexOf[name] = idx
	t.records = append(t.records, newFunctionRecord(name))
	return idx
}

func (t *functionTable) record(idx uint32) *functionRecord {
	return t.records[idx]
}

func (t *functionTable) count() int {
	return len(t.records)
}

// upsertEdge increments the edge at key in m, creating a zeroed entry
// and appending key to *order (first-observation order, so on-disk
// layout is deterministic) the first time key is seen.
func upsertEdge(m map[edgeKey]*edgeStats, order *[]edgeKey, key edgeKey, cost uint64) {
	e, ok := m[key]
	if !ok {
		e = &edgeStats{}
		m[key] = e
		*order = append(*order, key)
	}
	e.callCount++
	e.summedCallCost += cost
}
