package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/ident"
)

// --- fakes ---

type fakeNotifier struct {
	mu       sync.Mutex
	lastCode uint32
	lastTo   string
	fail     bool
}

func (f *fakeNotifier) SendVerification(_ context.Context, email string, code uint32, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assertError{}
	}
	f.lastTo = email
	f.lastCode = code
	return nil
}

type assertError struct{}

func (assertError) Error() string { return "smtp down" }

type fakeGateway struct {
	mu      sync.Mutex
	saves   int
	deletes []uint64
}

func (f *fakeGateway) SaveAccount(context.Context, *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func (f *fakeGateway) DeleteAccount(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *fakeNotifier, *fakeGateway, *testClock) {
	t.Helper()
	n := &fakeNotifier{}
	g := &fakeGateway{}
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(Options{
		AllowedEmailDomains:    []string{"org.edu"},
		SecretKey:              testSecret,
		DefaultTokenExpireDays: 5,
	}, ident.NewFNV(), n, g, logging.NewDiscard(), nil)
	s.SetClock(clock.Now)
	return s, n, g, clock
}

func signUp(t *testing.T, s *Store, n *fakeNotifier, email, password string) uint64 {
	t.Helper()
	_, err := s.Create(context.Background(), email)
	require.NoError(t, err)
	id, err := s.Activate(context.Background(), email, n.lastCode, Activation{
		Name: "Test User", SchoolID: 2522001, Phone: 13800000000, Password: password,
	})
	require.NoError(t, err)
	return id
}

// --- tests ---

func TestCreate_DomainNotAllowed(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	_, err := s.Create(context.Background(), "user@elsewhere.com")
	assert.ErrorIs(t, err, common.ErrEmailDomainNotAllowed)
}

func TestCreate_Conflict(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	_, err := s.Create(context.Background(), "user@org.edu")
	require.NoError(t, err)

	_, err = s.Create(context.Background(), "user@org.edu")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCreate_MailFailure(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	n.fail = true

	_, err := s.Create(context.Background(), "user@org.edu")
	assert.ErrorIs(t, err, common.ErrMailSend)

	// a failed send must not leave a half-created account behind
	n.fail = false
	_, err = s.Create(context.Background(), "user@org.edu")
	assert.NoError(t, err)
}

func TestActivate_WrongCode(t *testing.T) {
	s, n, _, _ := newTestStore(t)

	_, err := s.Create(context.Background(), "user@org.edu")
	require.NoError(t, err)

	wrong := n.lastCode + 1
	if wrong > 999999 {
		wrong = 100000
	}
	_, err = s.Activate(context.Background(), "user@org.edu", wrong, Activation{Password: "pw"})
	assert.ErrorIs(t, err, common.ErrVerificationCodeMismatch)
}

func TestActivate_AlreadyRegistered(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	signUp(t, s, n, "user@org.edu", "pw")

	_, err := s.Activate(context.Background(), "user@org.edu", n.lastCode, Activation{Password: "pw"})
	assert.ErrorIs(t, err, common.ErrUserAlreadyRegistered)
}

func TestActivate_ExpiredSignupIsRemoved(t *testing.T) {
	s, n, _, clock := newTestStore(t)

	_, err := s.Create(context.Background(), "user@org.edu")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = s.Activate(context.Background(), "user@org.edu", n.lastCode, Activation{Password: "pw"})
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestEndToEnd_SignupLoginLogout(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	ctx := context.Background()

	id := signUp(t, s, n, "user@org.edu", "hunter2")

	_, err := s.Login(ctx, id, "wrong")
	assert.ErrorIs(t, err, common.ErrPasswordIncorrect)

	token, err := s.Login(ctx, id, "hunter2")
	require.NoError(t, err)

	usable, err := s.TokenUsable(id, token)
	require.NoError(t, err)
	assert.True(t, usable)

	require.NoError(t, s.Logout(ctx, id, token))

	err = s.Logout(ctx, id, token)
	assert.ErrorIs(t, err, common.ErrTokenIncorrect)
}

func TestLogin_TokenExpiresAfterConfiguredDays(t *testing.T) {
	s, n, _, clock := newTestStore(t)
	ctx := context.Background()

	id := signUp(t, s, n, "user@org.edu", "pw")

	token, err := s.Login(ctx, id, "pw")
	require.NoError(t, err)

	clock.Advance(6 * 24 * time.Hour)

	usable, err := s.TokenUsable(id, token)
	require.NoError(t, err)
	assert.False(t, usable, "token must expire after the configured 5 days")
}

func TestIndexConsistency_AfterRemovals(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	ctx := context.Background()

	emails := []string{"a@org.edu", "b@org.edu", "c@org.edu", "d@org.edu"}
	ids := make([]uint64, len(emails))
	for i, email := range emails {
		ids[i] = signUp(t, s, n, email, "pw")
	}

	s.Remove(ctx, ids[1])

	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Len(t, s.entries, 3)
	for id, pos := range s.index {
		assert.Equal(t, id, s.entries[pos].acc.ID, "index must point at the entry's current position")
	}
	_, gone := s.index[ids[1]]
	assert.False(t, gone)
}

func TestRefreshAll_SweepsExpiredUnverified(t *testing.T) {
	s, n, _, clock := newTestStore(t)
	ctx := context.Background()

	signUp(t, s, n, "kept@org.edu", "pw")
	pendingID, err := s.Create(ctx, "pending@org.edu")
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	s.RefreshAll(ctx)

	_, err = s.View(ctx, pendingID)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)

	_, ok := s.findByEmail("kept@org.edu")
	assert.True(t, ok)
}

func TestPasswordReset_Flow(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	ctx := context.Background()

	id := signUp(t, s, n, "user@org.edu", "oldpw")

	require.NoError(t, s.RequestPasswordReset(ctx, "user@org.edu"))

	// a second request inside the window is rate-limited
	err := s.RequestPasswordReset(ctx, "user@org.edu")
	assert.ErrorIs(t, err, common.ErrVerifyPending)

	require.NoError(t, s.ConfirmPasswordReset(ctx, "user@org.edu", n.lastCode, "newpw"))

	_, err = s.Login(ctx, id, "oldpw")
	assert.ErrorIs(t, err, common.ErrPasswordIncorrect)

	_, err = s.Login(ctx, id, "newpw")
	assert.NoError(t, err)
}

func TestPasswordReset_WithoutPendingSession(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	signUp(t, s, n, "user@org.edu", "pw")

	err := s.ConfirmPasswordReset(context.Background(), "user@org.edu", 123456, "newpw")
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
}

func TestMakeAccount_PermissionOverflowPrevented(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	ctx := context.Background()

	adminID := signUp(t, s, n, "admin@org.edu", "pw")

	// grant the admin ManageAccounts directly
	e, _ := s.lookup(adminID)
	e.mu.Lock()
	e.acc.Verified.Attributes.Permissions = Permissions{PermissionManageAccounts}
	e.mu.Unlock()

	newID, err := s.MakeAccount(ctx, adminID, MakeAccountDescriptor{
		Email:       "made@org.edu",
		Password:    "pw",
		Permissions: Permissions{PermissionManageAccounts, PermissionOp},
	})
	require.NoError(t, err)

	perms, err := s.Permissions(newID)
	require.NoError(t, err)
	assert.Equal(t, Permissions{PermissionManageAccounts}, perms)
}

func TestModifyAccount_EmailEditKeepsID(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	ctx := context.Background()

	id := signUp(t, s, n, "user@org.edu", "pw")

	e, _ := s.lookup(id)
	e.mu.Lock()
	e.acc.Verified.Attributes.Permissions = Permissions{PermissionOp}
	e.mu.Unlock()

	require.NoError(t, s.ModifyAccount(ctx, id, id, []ModifyVariant{ModifyEmail{Email: "renamed@org.edu"}}))

	view, err := s.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed@org.edu", view.Metadata.Email)
	assert.Equal(t, id, view.ID, "id must survive email edits")
}

func TestEdit_AtomicOnFailure(t *testing.T) {
	s, n, _, _ := newTestStore(t)
	ctx := context.Background()

	id := signUp(t, s, n, "user@org.edu", "pw")

	err := s.Edit(ctx, id, []EditVariant{
		EditName{Name: "Changed"},
		EditPassword{Old: "wrong", New: "x"},
	})
	assert.ErrorIs(t, err, common.ErrPasswordIncorrect)

	view, err := s.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test User", view.Metadata.Name, "failed batch must not apply any variant")
}

func TestSignOut_RemovesAccount(t *testing.T) {
	s, n, g, _ := newTestStore(t)
	ctx := context.Background()

	id := signUp(t, s, n, "user@org.edu", "pw")
	token, err := s.Login(ctx, id, "pw")
	require.NoError(t, err)

	assert.ErrorIs(t, s.SignOut(ctx, id, "bad", token), common.ErrPasswordIncorrect)

	require.NoError(t, s.SignOut(ctx, id, "pw", token))
	_, err = s.View(ctx, id)
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
	assert.Contains(t, g.deletes, id)
}
