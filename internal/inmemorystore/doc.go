// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface.
//
// # Concurrency Model
//
// The store keeps the whole node collection in an immutable snapshot behind
// an atomic pointer. Readers load the current snapshot without locking.
// Writers are serialized by a mutex; each write copies the collection,
// applies the change and publishes the new snapshot in one atomic store.
//
// This trades O(n) work per update for readers that never see a partially
// applied update, which suits pipelines of tens of nodes where the engine
// is the only writer.
package inmemorystore
