// Package registry holds the process-wide table of functions a worker
// exposes to the supervisor, replacing the link-time distributed-slice
// trick the original implementation relied on: Go has no equivalent, so
// every exported function registers itself explicitly from an init()
// function instead (spec.md §9's documented substitute).
package registry

import (
	"sort"
	"sync"

	"github.com/zapsplice/zap/wire"
)

// Export pairs one function's wire-visible metadata with the adapter that
// invokes it.
type Export struct {
	Meta    wire.ExportMetadata
	Adapter Adapter
}

var (
	mu      sync.RWMutex
	exports = map[string]*Export{}
)

// Register adds fn under meta.Name. A duplicate name is a programmer
// mistake caught at process startup, not a runtime condition callers
// should handle — Register panics with *DuplicateExport, the same way
// broker.New panics on a missing required handler.
func Register(meta wire.ExportMetadata, adapter Adapter) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := exports[meta.Name]; exists {
		panic(&DuplicateExport{Name: meta.Name})
	}
	exports[meta.Name] = &Export{Meta: meta, Adapter: adapter}
}

// Lookup returns the export registered under name, if any.
func Lookup(name string) (*Export, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := exports[name]
	return e, ok
}

// List returns the metadata for every registered export, sorted by name so
// wire.ListExportsResult is deterministic across calls (useful for the
// dispatcher's export-list cache and for tests).
func List() []wire.ExportMetadata {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]wire.ExportMetadata, 0, len(exports))
	for _, e := range exports {
		out = append(out, e.Meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Count() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(exports)
}

// reset clears the table; used only by tests that register throwaway
// functions and don't want them leaking into other test cases sharing the
// process-wide table.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	exports = map[string]*Export{}
}
