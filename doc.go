// Package ringcache is an in-memory key-value server.
//
// It holds two kinds of values — plain byte strings and sorted sets
// ordered by (score, member) — each with an optional millisecond-resolution
// expiration. A single goroutine serves every connection through a
// poll()-driven event loop; mutations are appended to an on-disk log that
// is replayed on startup and can be compacted in place with bgrewriteaof.
//
// The server binary lives in cmd/ringcached. See internal/server for the
// event loop and command dispatch, pkg/store for the value table,
// pkg/protocol for the wire format, and pkg/aof for the persistence log.
package ringcache
