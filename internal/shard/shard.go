// Package shard maps hash codes onto a fixed number of slots.
package shard

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// HashCode returns a stable, non-negative hash code for key.
func HashCode(key string) int {
	h, _ := blake2b.New(8, nil)
	_, _ = h.Write([]byte(key))
	v := binary.BigEndian.Uint64(h.Sum(nil))
	return int(v >> 1)
}

// ForHash returns |hashCode| mod count. count <= 0 always yields 0.
func ForHash(hashCode int, count int) int {
	if count <= 0 {
		return 0
	}
	i := hashCode % count
	if i < 0 {
		i = -i
	}
	return i
}

type Sharder interface {
	ShardFor(hashCode int) int
}

type modulo int

func (m modulo) ShardFor(hashCode int) int { return ForHash(hashCode, int(m)) }

// Modulo distributes hash codes over count slots.
func Modulo(count int) Sharder { return modulo(count) }
