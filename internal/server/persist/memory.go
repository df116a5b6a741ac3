package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/images"
	"github.com/subit-dev/posterd/internal/server/posts"
)

// Memory keeps entity documents in maps. It backs tests and the
// database-free development mode; contents do not survive a restart.
type Memory struct {
	mu       sync.RWMutex
	accounts map[uint64]accounts.Account
	posts    map[uint64]posts.Post
	images   map[uint64]images.Entry
}

func NewMemory() *Memory {
	return &Memory{
		accounts: map[uint64]accounts.Account{},
		posts:    map[uint64]posts.Post{},
		images:   map[uint64]images.Entry{},
	}
}

func (m *Memory) SaveAccount(ctx context.Context, a *accounts.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) DeleteAccount(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *Memory) SavePost(ctx context.Context, p *posts.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = *p
	return nil
}

func (m *Memory) DeletePost(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}

func (m *Memory) SaveImage(ctx context.Context, e *images.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[e.Hash] = *e
	return nil
}

func (m *Memory) DeleteImage(ctx context.Context, hash uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, hash)
	return nil
}

func (m *Memory) LoadAccounts(ctx context.Context) ([]accounts.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]accounts.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LoadPosts(ctx context.Context) ([]posts.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]posts.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LoadImages(ctx context.Context) ([]images.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]images.Entry, 0, len(m.images))
	for _, e := range m.images {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

func (m *Memory) SaveSnapshot(ctx context.Context, accs []accounts.Account, ps []posts.Post, imgs []images.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range accs {
		m.accounts[accs[i].ID] = accs[i]
	}
	for i := range ps {
		m.posts[ps[i].ID] = ps[i]
	}
	for i := range imgs {
		m.images[imgs[i].Hash] = imgs[i]
	}
	return nil
}
