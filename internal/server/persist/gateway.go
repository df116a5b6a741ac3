// Package persist is the persistence gateway: each store hands it
// entities after successful mutations and receives a full re-hydration
// at startup. Entities are stored as JSON documents keyed by their
// 64-bit id.
package persist

import (
	"context"

	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/images"
	"github.com/subit-dev/posterd/internal/server/posts"
)

// Gateway is the aggregate persistence surface. It satisfies the
// per-store gateway interfaces (accounts.Gateway, posts.Gateway,
// images.Gateway) plus the load side used at startup.
type Gateway interface {
	SaveAccount(ctx context.Context, a *accounts.Account) error
	DeleteAccount(ctx context.Context, id uint64) error

	SavePost(ctx context.Context, p *posts.Post) error
	DeletePost(ctx context.Context, id uint64) error

	SaveImage(ctx context.Context, e *images.Entry) error
	DeleteImage(ctx context.Context, hash uint64) error

	LoadAccounts(ctx context.Context) ([]accounts.Account, error)
	LoadPosts(ctx context.Context) ([]posts.Post, error)
	LoadImages(ctx context.Context) ([]images.Entry, error)

	// SaveSnapshot writes a full dump of all three collections at
	// once. Called on graceful shutdown.
	SaveSnapshot(ctx context.Context, accs []accounts.Account, ps []posts.Post, imgs []images.Entry) error
}
