// Package memstore keeps every store in process memory. It backs tests and
// STORE_BACKEND=memory runs of a single instance; records are copied through
// JSON so callers never share state with the store.
package memstore
