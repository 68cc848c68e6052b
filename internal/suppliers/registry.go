package suppliers

import (
	"sort"
	"strings"
	"sync"

	"chemsource/searchservice/internal/domain"
)

// Factory builds one adapter instance for one search.
type Factory func(cfg Config) (Supplier, error)

// Entry is one registered supplier: its static metadata plus the
// factory the orchestrator calls per search.
type Entry struct {
	Name string
	Info domain.SupplierInfo
	New  Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Entry)
)

// Register adds a supplier to the registry. Adapters call it from
// their init functions; importing an adapter package is what makes the
// supplier available. Duplicate or incomplete entries panic.
func Register(entry Entry) {
	name := strings.ToLower(strings.TrimSpace(entry.Name))
	if name == "" || entry.New == nil {
		panic("suppliers: incomplete registry entry")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("suppliers: duplicate registration of " + name)
	}
	entry.Name = name
	if entry.Info.Name == "" {
		entry.Info.Name = name
	}
	if entry.Info.Label == "" {
		entry.Info.Label = name
	}
	registry[name] = entry
}

// All returns every registered supplier sorted by name.
func All() []Entry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	entries := make([]Entry, 0, len(registry))
	for _, entry := range registry {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Lookup finds one supplier by name, case-insensitively.
func Lookup(name string) (Entry, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	entry, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return entry, ok
}
