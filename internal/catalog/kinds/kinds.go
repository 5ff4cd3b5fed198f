// Package kinds registers the managed record kinds with the catalog registry.
// Import this package for its side effects to activate all kinds.
package kinds

// Each kind file uses init() to register its definition.
