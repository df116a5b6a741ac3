package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/subit-dev/posterd/internal/dbx"
	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/images"
	"github.com/subit-dev/posterd/internal/server/migrations"
	"github.com/subit-dev/posterd/internal/server/posts"
)

// Postgres stores every entity as a JSONB document in a table per
// entity kind. Unsigned 64-bit ids are bit-cast to BIGINT.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the pool and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return p, nil
}

// RunMigrations sets up goose with the embedded migrations and runs
// them against the pool.
func (p *Postgres) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, p.db, ".")
}

func (p *Postgres) Close() error { return p.db.Close() }

func upsert(ctx context.Context, q dbx.DBTX, table string, id uint64, entity any) error {
	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, doc) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, table)
	if _, err := q.ExecContext(ctx, query, int64(id), doc); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func remove(ctx context.Context, q dbx.DBTX, table string, id uint64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	if _, err := q.ExecContext(ctx, query, int64(id)); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func loadDocs(ctx context.Context, q dbx.DBTX, table string, each func(doc []byte) error) error {
	query := fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, table)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return err
		}
		if err := each(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *Postgres) SaveAccount(ctx context.Context, a *accounts.Account) error {
	return upsert(ctx, p.db, "accounts", a.ID, a)
}

func (p *Postgres) DeleteAccount(ctx context.Context, id uint64) error {
	return remove(ctx, p.db, "accounts", id)
}

func (p *Postgres) SavePost(ctx context.Context, post *posts.Post) error {
	return upsert(ctx, p.db, "posts", post.ID, post)
}

func (p *Postgres) DeletePost(ctx context.Context, id uint64) error {
	return remove(ctx, p.db, "posts", id)
}

func (p *Postgres) SaveImage(ctx context.Context, e *images.Entry) error {
	return upsert(ctx, p.db, "images", e.Hash, e)
}

func (p *Postgres) DeleteImage(ctx context.Context, hash uint64) error {
	return remove(ctx, p.db, "images", hash)
}

func (p *Postgres) LoadAccounts(ctx context.Context) ([]accounts.Account, error) {
	var out []accounts.Account
	err := loadDocs(ctx, p.db, "accounts", func(doc []byte) error {
		var a accounts.Account
		if err := json.Unmarshal(doc, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func (p *Postgres) LoadPosts(ctx context.Context) ([]posts.Post, error) {
	var out []posts.Post
	err := loadDocs(ctx, p.db, "posts", func(doc []byte) error {
		var post posts.Post
		if err := json.Unmarshal(doc, &post); err != nil {
			return err
		}
		out = append(out, post)
		return nil
	})
	return out, err
}

func (p *Postgres) LoadImages(ctx context.Context) ([]images.Entry, error) {
	var out []images.Entry
	err := loadDocs(ctx, p.db, "images", func(doc []byte) error {
		var e images.Entry
		if err := json.Unmarshal(doc, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// SaveSnapshot writes a full dump of all three collections in one
// transaction. Used on graceful shutdown so a final consistent state
// lands even if some per-mutation saves were lost.
func (p *Postgres) SaveSnapshot(ctx context.Context, accs []accounts.Account, ps []posts.Post, imgs []images.Entry) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for i := range accs {
			if err := upsert(ctx, tx, "accounts", accs[i].ID, &accs[i]); err != nil {
				return err
			}
		}
		for i := range ps {
			if err := upsert(ctx, tx, "posts", ps[i].ID, &ps[i]); err != nil {
				return err
			}
		}
		for i := range imgs {
			if err := upsert(ctx, tx, "images", imgs[i].Hash, &imgs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
