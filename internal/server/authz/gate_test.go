package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/ident"
)

type fakeNotifier struct{ lastCode uint32 }

func (f *fakeNotifier) SendVerification(ctx context.Context, email string, code uint32, purpose string) error {
	f.lastCode = code
	return nil
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Gate, *accounts.Store, uint64, string, *testClock) {
	t.Helper()
	n := &fakeNotifier{}
	clock := &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := accounts.NewStore(accounts.Options{
		AllowedEmailDomains:    []string{"org.edu"},
		SecretKey:              []byte("authz-test-secret"),
		DefaultTokenExpireDays: 5,
	}, ident.NewFNV(), n, nil, logging.NewDiscard(), nil)
	s.SetClock(clock.Now)

	ctx := context.Background()
	id, err := s.Create(ctx, "member@org.edu")
	require.NoError(t, err)
	_, err = s.Activate(ctx, "member@org.edu", n.lastCode, accounts.Activation{
		Name: "Member", Password: "secret", SchoolID: 1, Phone: 100,
	})
	require.NoError(t, err)
	token, err := s.Login(ctx, id, "secret")
	require.NoError(t, err)

	return New(s), s, id, token, clock
}

func TestValidate_OK(t *testing.T) {
	g, _, id, token, _ := setup(t)

	ok, err := g.Validate(context.Background(), id, token, accounts.PermissionView, accounts.PermissionPost)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidate_MissingPermission(t *testing.T) {
	g, _, id, token, _ := setup(t)

	ok, err := g.Validate(context.Background(), id, token, accounts.PermissionApprove)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_UnknownAccount(t *testing.T) {
	g, _, _, token, _ := setup(t)

	_, err := g.Validate(context.Background(), 42, token)
	assert.True(t, errors.Is(err, common.ErrAccountNotFound))
}

func TestValidate_BadToken(t *testing.T) {
	g, _, id, _, _ := setup(t)

	ok, err := g.Validate(context.Background(), id, "not-a-token", accounts.PermissionView)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate_ExpiredTokenSweptByRefresh(t *testing.T) {
	g, _, id, token, clock := setup(t)

	clock.Advance(6 * 24 * time.Hour)

	ok, err := g.Validate(context.Background(), id, token, accounts.PermissionView)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequire_CollapsesToPermissionDenied(t *testing.T) {
	g, _, id, token, _ := setup(t)

	err := g.Require(context.Background(), id, token, accounts.PermissionOp)
	assert.True(t, errors.Is(err, common.ErrPermissionDenied))

	err = g.Require(context.Background(), id, token, accounts.PermissionView)
	assert.NoError(t, err)
}
