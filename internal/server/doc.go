// Package server hosts the Fiber admin service, its request middleware chain,
// and the resource registry that maps configured resource names onto the
// local/remote sub paths understood by the cache engine.
// Route handlers live in the routes subpackage and receive their dependencies
// explicitly, so keep exports narrow.
package server
