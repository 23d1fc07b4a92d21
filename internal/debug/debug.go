// Package debug provides an opt-in, mutex-guarded trace logger used by
// the Preprocessor and Reader. It is silent unless explicitly enabled,
// either at build time or via CGPROF_DEBUG.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug can be overridden at build time:
//
//	go build -ldflags "-X github.com/haltmark/cgprof/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput sets a custom writer for debug output. Pass nil to disable
// debug output entirely regardless of IsEnabled.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// IsEnabled reports whether debug tracing is active.
func IsEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("CGPROF_DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// Log writes a component-tagged debug line when tracing is enabled.
func Log(component, format string, args ...interface{}) {
	if !IsEnabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}
