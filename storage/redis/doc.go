// Package redis provides a redis-backed query expansion cache that several
// pipeline processes can share.
package redis
