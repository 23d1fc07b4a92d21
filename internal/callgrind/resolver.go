package callgrind

import (
	"regexp"
	"strings"
)

// compressionRef anchors a Callgrind name-compression reference at the
// start of a string: "(N) name" (define) or "(N)" (reference). Anything
// else is a literal and falls through untouched.
var compressionRef = regexp.MustCompile(`^\((\d+)\)\s*(.*)$`)

// nameResolver decodes Callgrind's "(N) name" / "(N)" symbol-table
// references. It owns two disjoint numeric->string tables — one for
// file-name contexts (after fl=), one for function-name contexts (after
// fn=/cfn=) — scoped to a single Preprocessor run. No process-global
// state is kept here; a caller that needs two independent parses
// constructs two resolvers.
type nameResolver struct {
	fileTable map[string]string
	funcTable map[string]string
}

func newNameResolver() *nameResolver {
	return &nameResolver{
		fileTable: make(map[string]string),
		funcTable: make(map[string]string),
	}
}

// resolveFile resolves a file-name context token against the file table.
func (r *nameResolver) resolveFile(raw string) string {
	return resolve(r.fileTable, raw)
}

// resolveFunc resolves a function-name context token against the
// function table.
func (r *nameResolver) resolveFunc(raw string) string {
	return resolve(r.funcTable, raw)
}

// resolve implements the three-shape rule against one table:
//  1. "(N) name"  — define: bind N to the trimmed name, return it.
//  2. "(N)"       — reference: return the bound string for N, or the raw
//     input unchanged if N was never bound.
//  3. anything else — return the input unchanged.
func resolve(table map[string]string, raw string) string {
	m := compressionRef.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	token, name := m[1], strings.TrimSpace(m[2])
	if name != "" {
		table[token] = name
		return name
	}
	if bound, ok := table[token]; ok {
		return bound
	}
	return raw
}
