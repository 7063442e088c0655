// Package cache implements the on-disk pair store: every logical resource is a
// content file at StoragePath/<subPath> plus a sibling version marker whose
// name comes from a naming.Strategy. The store keeps the two halves intact:
// a pair with only one half present is treated as absent and the surviving
// half is removed the next time it is observed. Writes go through a temp file
// + rename per half, and the two halves are read/written concurrently.
// Callers that need to serialise a multi-step sequence on one resource (the
// engine's update protocol) use KeyLocks; the store itself does not lock.
package cache
