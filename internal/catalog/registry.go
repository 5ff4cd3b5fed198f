package catalog

import (
	"fmt"
	"sort"
	"sync"
)

var (
	mu       sync.RWMutex
	registry = make(map[Kind]Definition)
)

// Register adds a kind definition to the global registry.
// It panics on a duplicate key, a missing identity field, or an unknown
// table name, since registration happens at init time and a bad definition
// is a programming error.
func Register(def Definition) {
	if def.Key == "" {
		panic("catalog: definition has empty key")
	}
	if def.Table == "" {
		panic(fmt.Sprintf("catalog: kind %q has no table", def.Key))
	}
	if def.IdentityField() == "" {
		panic(fmt.Sprintf("catalog: kind %q has no identity field", def.Key))
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("catalog: kind %q registered twice", def.Key))
	}
	registry[def.Key] = def
}

// Get returns the definition for a kind.
func Get(kind Kind) (Definition, bool) {
	mu.RLock()
	defer mu.RUnlock()
	def, ok := registry[kind]
	return def, ok
}

// All returns every registered definition, ordered by key for determinism.
func All() []Definition {
	mu.RLock()
	defer mu.RUnlock()

	defs := make([]Definition, 0, len(registry))
	for _, def := range registry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs
}

// Kinds returns the registered kind keys, sorted.
func Kinds() []Kind {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count returns the number of registered kinds.
func Count() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(registry)
}

// Clear removes all registered kinds. Intended for tests.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[Kind]Definition)
}
