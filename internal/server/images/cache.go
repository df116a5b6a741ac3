// Package images holds the reference-counted upload cache backing post
// attachments. Entries carry metadata only; the pixel data itself lives
// in the blob store and is addressed by the entry hash.
package images

import (
	"bytes"
	"context"
	"image"
	"sync"
	"time"

	// registered decoders for upload validation
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/ident"
)

const (
	// maxUploadSize caps a single upload at 50 MB.
	maxUploadSize = 50 << 20
	// maxUnblocked bounds how many entries may sit in the cache without
	// a post referencing them before the oldest one is evicted.
	maxUnblocked = 64
)

// Entry is the metadata record for one cached image.
type Entry struct {
	Hash     uint64    `json:"hash"`
	Uploader uint64    `json:"uploader"`
	Blocked  bool      `json:"blocked"`
	PushedAt time.Time `json:"pushed_at"`
}

// Gateway persists entry metadata. A nil Gateway disables persistence.
type Gateway interface {
	SaveImage(ctx context.Context, e *Entry) error
	DeleteImage(ctx context.Context, hash uint64) error
}

// BlobStore holds the raw image bytes keyed by entry hash.
type BlobStore interface {
	Put(ctx context.Context, hash uint64, data []byte) error
	Get(ctx context.Context, hash uint64) ([]byte, error)
	Delete(ctx context.Context, hash uint64) error
}

type slot struct {
	mu    sync.RWMutex
	entry Entry
}

// Cache is the image manager. The collection lock guards the slice and
// the index; each slot additionally has its own lock for field access.
type Cache struct {
	mu    sync.RWMutex
	slots []*slot
	index map[uint64]int

	hasher  ident.Hasher
	blobs   BlobStore
	gateway Gateway
	logger  logging.Logger
	now     func() time.Time
}

// NewCache builds a Cache hydrated with existing entries.
func NewCache(hasher ident.Hasher, blobs BlobStore, gateway Gateway, logger logging.Logger, existing []Entry) *Cache {
	c := &Cache{
		hasher:  hasher,
		blobs:   blobs,
		gateway: gateway,
		logger:  logger.With("component", "images"),
		now:     time.Now,
	}
	for i := range existing {
		c.slots = append(c.slots, &slot{entry: existing[i]})
	}
	c.rebuildIndex()
	return c
}

// SetClock overrides the cache's time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

func (c *Cache) rebuildIndex() {
	c.index = make(map[uint64]int, len(c.slots))
	for i, s := range c.slots {
		c.index[s.entry.Hash] = i
	}
}

func (c *Cache) lookup(hash uint64) (*slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[hash]
	if !ok {
		return nil, false
	}
	return c.slots[i], true
}

func (c *Cache) save(ctx context.Context, e *Entry) {
	if c.gateway == nil {
		return
	}
	if err := c.gateway.SaveImage(ctx, e); err != nil {
		c.logger.Error(ctx, "image save failed", "hash", e.Hash, "err", err)
	}
}

// Push ingests an upload: validates size and format, stores the bytes,
// and registers an unblocked entry. Re-pushing identical bytes is a
// no-op returning the same hash. When the unblocked population reaches
// the bound, the single oldest unblocked entry is evicted together with
// its backing blob before the new entry is admitted.
func (c *Cache) Push(ctx context.Context, data []byte, uploader uint64) (uint64, error) {
	if len(data) > maxUploadSize {
		return 0, common.ErrImageTooLarge
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return 0, common.ErrImageDecode
	}

	hash := c.hasher.HashBytes(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[hash]; ok {
		return hash, nil
	}

	if victim := c.evictionVictim(); victim != nil {
		c.evict(ctx, victim)
	}

	if err := c.blobs.Put(ctx, hash, data); err != nil {
		return 0, err
	}
	s := &slot{entry: Entry{Hash: hash, Uploader: uploader, PushedAt: c.now()}}
	c.slots = append(c.slots, s)
	c.index[hash] = len(c.slots) - 1
	c.save(ctx, &s.entry)

	c.logger.Info(ctx, "image pushed", "hash", hash, "uploader", uploader, "size", len(data))
	return hash, nil
}

// evictionVictim returns the oldest unblocked slot when the unblocked
// population has reached the bound, nil otherwise. Callers must hold
// the collection write lock.
func (c *Cache) evictionVictim() *slot {
	var victim *slot
	unblocked := 0
	for _, s := range c.slots {
		s.mu.RLock()
		if !s.entry.Blocked {
			unblocked++
			if victim == nil || s.entry.PushedAt.Before(victim.entry.PushedAt) {
				victim = s
			}
		}
		s.mu.RUnlock()
	}
	if unblocked < maxUnblocked {
		return nil
	}
	return victim
}

// evict removes a slot and its backing blob. Callers must hold the
// collection write lock.
func (c *Cache) evict(ctx context.Context, victim *slot) {
	i := c.index[victim.entry.Hash]
	c.slots = append(c.slots[:i], c.slots[i+1:]...)
	c.rebuildIndex()

	if err := c.blobs.Delete(ctx, victim.entry.Hash); err != nil {
		c.logger.Error(ctx, "blob delete failed", "hash", victim.entry.Hash, "err", err)
	}
	if c.gateway != nil {
		if err := c.gateway.DeleteImage(ctx, victim.entry.Hash); err != nil {
			c.logger.Error(ctx, "image delete failed", "hash", victim.entry.Hash, "err", err)
		}
	}
	c.logger.Info(ctx, "image evicted", "hash", victim.entry.Hash)
}

// Get returns the raw bytes of a cached image.
func (c *Cache) Get(ctx context.Context, hash uint64) ([]byte, error) {
	if _, ok := c.lookup(hash); !ok {
		return nil, common.ErrImageNotFound
	}
	return c.blobs.Get(ctx, hash)
}

// Contains reports whether every given hash is present.
func (c *Cache) Contains(hashes ...uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range hashes {
		if _, ok := c.index[h]; !ok {
			return false
		}
	}
	return true
}

// Info returns the metadata record for a cached image.
func (c *Cache) Info(hash uint64) (Entry, error) {
	s, ok := c.lookup(hash)
	if !ok {
		return Entry{}, common.ErrImageNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry, nil
}

// SetBlocked marks or unmarks an entry as referenced by a post. Blocked
// entries are exempt from eviction.
func (c *Cache) SetBlocked(ctx context.Context, hash uint64, blocked bool) error {
	s, ok := c.lookup(hash)
	if !ok {
		return common.ErrImageNotFound
	}
	s.mu.Lock()
	s.entry.Blocked = blocked
	e := s.entry
	s.mu.Unlock()

	c.save(ctx, &e)
	return nil
}

// Snapshot returns a copy of every entry. Used for the shutdown dump.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.slots))
	for _, s := range c.slots {
		s.mu.RLock()
		out = append(out, s.entry)
		s.mu.RUnlock()
	}
	return out
}

// UnblockedCount reports how many entries are currently unreferenced.
func (c *Cache) UnblockedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.slots {
		s.mu.RLock()
		if !s.entry.Blocked {
			n++
		}
		s.mu.RUnlock()
	}
	return n
}
