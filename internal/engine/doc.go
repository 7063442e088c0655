// Package engine owns the cache update protocol. An Engine is initialised
// once with a root directory, a version naming strategy and a Downloader; it
// then answers "is this resource up to date" by comparing the local version
// marker with the remote one, and refreshes stale resources with the fixed
// sequence check → download → delete → re-read remote version → write.
//
// Every operation on a resource holds that resource's lock for its whole
// duration, so concurrent callers on the same sub path never interleave.
// Different resources share nothing but the root directory and Downloader.
package engine
