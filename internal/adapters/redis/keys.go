// Package redis provides Redis-backed adapters for the cutline job system:
// a job record store, the async job queue and a shared sliding-window limiter.
package redis

import "strings"

const defaultKeyPrefix = "cutline"

// keyspace builds namespaced keys under a common prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) key(parts ...string) string {
	return k.prefix + ":" + strings.Join(parts, ":")
}
