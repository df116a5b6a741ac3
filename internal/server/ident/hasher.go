// Package ident assigns stable 64-bit identifiers to domain entities.
//
// Identifiers are persisted, so the hash must produce the same value for
// the same input across process restarts and builds. FNV-1a satisfies
// that; hash/maphash and map iteration tricks do not.
package ident

import (
	"encoding/binary"
	"hash/fnv"
)

// Hasher maps stable keys to 64-bit identifiers.
type Hasher interface {
	// HashEmail derives an account id from an email address.
	HashEmail(email string) uint64

	// HashPost derives a post id from its title, description and image set.
	HashPost(title, description string, images []uint64) uint64

	// HashBytes derives a content hash from a raw blob.
	HashBytes(b []byte) uint64
}

// FNV implements Hasher with 64-bit FNV-1a.
type FNV struct{}

func NewFNV() FNV { return FNV{} }

func (FNV) HashEmail(email string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(email))
	return h.Sum64()
}

func (FNV) HashPost(title, description string, images []uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	var buf [8]byte
	for _, img := range images {
		binary.BigEndian.PutUint64(buf[:], img)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func (FNV) HashBytes(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}
