// Package authz implements the stateless permission gate consumed by the
// HTTP layer: claimed account id + token against the account store.
package authz

import (
	"context"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/server/accounts"
)

// Gate validates authentication header pairs. Validation is deliberately
// not read-only: every call triggers a lazy expiry sweep of the claimed
// account.
type Gate struct {
	accounts *accounts.Store
}

func New(accounts *accounts.Store) *Gate {
	return &Gate{accounts: accounts}
}

// Validate checks that the claimed account exists, is verified, holds a
// usable token, and satisfies every required permission under the
// hierarchical containment rule. It returns false (with nil error) when
// the token or a permission check fails; sentinel errors cover missing
// and unverified accounts.
func (g *Gate) Validate(ctx context.Context, accountID uint64, token string, required ...accounts.Permission) (bool, error) {
	g.accounts.Refresh(ctx, accountID)

	usable, err := g.accounts.TokenUsable(accountID, token)
	if err != nil {
		// ErrAccountNotFound or ErrUserUnverified
		return false, err
	}
	if !usable {
		return false, nil
	}

	perms, err := g.accounts.Permissions(accountID)
	if err != nil {
		return false, err
	}
	return perms.ContainsAll(required...), nil
}

// Require is Validate collapsed to a single error: a failed check comes
// back as ErrPermissionDenied.
func (g *Gate) Require(ctx context.Context, accountID uint64, token string, required ...accounts.Permission) error {
	ok, err := g.Validate(ctx, accountID, token, required...)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrPermissionDenied
	}
	return nil
}
