// Package accounts implements the authoritative in-memory collection of
// accounts: signup with email verification, login/logout over a bounded
// token ledger, permission queries, and lazy expiry sweeps. The backing
// collection carries one coarse RW lock; every account additionally has
// its own lock. Structural changes (insert/remove) take the collection
// write lock and rebuild the id→position index before releasing it.
package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/subit-dev/posterd/internal/common"
	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/ident"
)

// Notifier dispatches verification codes. Implementations live in the
// notify package.
type Notifier interface {
	SendVerification(ctx context.Context, email string, code uint32, purpose string) error
}

// Gateway persists account state. Calls are best effort: failures are
// logged by the store and never surfaced to the caller.
type Gateway interface {
	SaveAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, id uint64) error
}

// Options tune store behavior.
type Options struct {
	// AllowedEmailDomains restricts signup; empty means any domain.
	AllowedEmailDomains []string
	// SecretKey signs session tokens.
	SecretKey []byte
	// VerificationTTL is the challenge window for signup and reset codes.
	VerificationTTL time.Duration
	// DefaultTokenExpireDays is assigned to newly activated accounts.
	DefaultTokenExpireDays uint16
	// DefaultPermissions are granted on activation.
	DefaultPermissions Permissions
}

type entry struct {
	mu  sync.RWMutex
	acc Account
}

// Store is the account manager.
type Store struct {
	mu      sync.RWMutex
	entries []*entry
	index   map[uint64]int

	opts     Options
	hasher   ident.Hasher
	notifier Notifier
	gateway  Gateway
	logger   logging.Logger
	now      func() time.Time
}

// NewStore builds a Store hydrated with existing accounts (normally the
// persistence gateway's load result).
func NewStore(opts Options, hasher ident.Hasher, notifier Notifier, gateway Gateway, logger logging.Logger, existing []Account) *Store {
	if opts.VerificationTTL == 0 {
		opts.VerificationTTL = 15 * time.Minute
	}
	if opts.DefaultPermissions == nil {
		opts.DefaultPermissions = Permissions{PermissionView, PermissionPost}
	}

	s := &Store{
		opts:     opts,
		hasher:   hasher,
		notifier: notifier,
		gateway:  gateway,
		logger:   logger.With("component", "accounts"),
		now:      time.Now,
	}
	for i := range existing {
		s.entries = append(s.entries, &entry{acc: existing[i]})
	}
	s.rebuildIndex()
	return s
}

// SetClock overrides the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// rebuildIndex recomputes the id→position map. Callers must hold the
// collection write lock (or have exclusive access during construction).
func (s *Store) rebuildIndex() {
	s.index = make(map[uint64]int, len(s.entries))
	for i, e := range s.entries {
		s.index[e.acc.ID] = i
	}
}

func (s *Store) lookup(id uint64) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.entries[i], true
}

func (s *Store) findByEmail(email string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		e.mu.RLock()
		match := e.acc.Email() == email
		e.mu.RUnlock()
		if match {
			return e, true
		}
	}
	return nil, false
}

func (s *Store) save(ctx context.Context, a *Account) {
	if s.gateway == nil {
		return
	}
	if err := s.gateway.SaveAccount(ctx, a); err != nil {
		s.logger.Error(ctx, "account save failed", "id", a.ID, "err", err)
	}
}

func (s *Store) domainAllowed(email string) bool {
	if len(s.opts.AllowedEmailDomains) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range s.opts.AllowedEmailDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Create starts a signup: sends a verification code and inserts a new
// unverified account. Fails with ErrConflict if the email is already
// taken in any state and ErrEmailDomainNotAllowed for foreign domains.
func (s *Store) Create(ctx context.Context, email string) (uint64, error) {
	if !s.domainAllowed(email) {
		return 0, common.ErrEmailDomainNotAllowed
	}
	if _, ok := s.findByEmail(email); ok {
		return 0, common.ErrConflict
	}

	session := NewVerifySession(email, s.opts.VerificationTTL, s.now())
	if err := s.notifier.SendVerification(ctx, email, session.Code, PurposeActivation); err != nil {
		s.logger.Error(ctx, "verification mail failed", "email", email, "err", err)
		return 0, common.ErrMailSend
	}

	acc := Account{
		ID:         s.hasher.HashEmail(email),
		Unverified: &Unverified{Session: session},
	}

	s.mu.Lock()
	if _, exists := s.index[acc.ID]; exists {
		s.mu.Unlock()
		return 0, common.ErrConflict
	}
	s.index[acc.ID] = len(s.entries)
	s.entries = append(s.entries, &entry{acc: acc})
	s.mu.Unlock()

	s.save(ctx, &acc)
	s.logger.Info(ctx, "unverified account created", "id", acc.ID, "email", email)
	return acc.ID, nil
}

// Activation is the payload completing a signup.
type Activation struct {
	Name         string
	SchoolID     uint32
	Phone        uint64
	House        *string
	Organization *string
	Password     string
}

// Activate promotes an unverified account to verified after a correct
// code. Fails with ErrUserAlreadyRegistered when the account is already
// verified and ErrVerificationCodeMismatch on a wrong code.
func (s *Store) Activate(ctx context.Context, email string, code uint32, payload Activation) (uint64, error) {
	e, ok := s.findByEmail(email)
	if !ok {
		return 0, common.ErrAccountNotFound
	}

	e.mu.RLock()
	id := e.acc.ID
	e.mu.RUnlock()

	// expired signup windows are removed here, matching the lazy-expiry
	// policy of every authenticated entry point
	s.Refresh(ctx, id)

	e, ok = s.lookup(id)
	if !ok {
		return 0, common.ErrAccountNotFound
	}

	hash, err := hashPassword(payload.Password)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	attrs := Attributes{
		Email:           email,
		Name:            payload.Name,
		SchoolID:        payload.SchoolID,
		Phone:           payload.Phone,
		House:           payload.House,
		Organization:    payload.Organization,
		Permissions:     append(Permissions(nil), s.opts.DefaultPermissions...),
		RegisteredAt:    s.now(),
		PasswordHash:    hash,
		TokenExpireDays: s.opts.DefaultTokenExpireDays,
	}
	if err := e.acc.activate(code, attrs); err != nil {
		e.mu.Unlock()
		return 0, err
	}
	snapshot := e.acc
	e.mu.Unlock()

	s.save(ctx, &snapshot)
	s.logger.Info(ctx, "account activated", "id", id, "email", email)
	return id, nil
}

// RequestPasswordReset opens a reset challenge for a verified account.
// A still-active previous challenge yields ErrVerifyPending: the caller
// has to wait out the expiry window.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) error {
	e, ok := s.findByEmail(email)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.Lock()
	if e.acc.Verified == nil {
		e.mu.Unlock()
		return common.ErrUserUnverified
	}
	if pending := e.acc.Verified.PendingReset; pending != nil && !pending.Expired(s.now()) {
		e.mu.Unlock()
		return common.ErrVerifyPending
	}
	session := NewVerifySession(email, s.opts.VerificationTTL, s.now())
	e.mu.Unlock()

	if err := s.notifier.SendVerification(ctx, email, session.Code, PurposePasswordReset); err != nil {
		s.logger.Error(ctx, "reset mail failed", "email", email, "err", err)
		return common.ErrMailSend
	}

	e.mu.Lock()
	e.acc.Verified.PendingReset = &session
	snapshot := e.acc
	e.mu.Unlock()

	s.save(ctx, &snapshot)
	return nil
}

// ConfirmPasswordReset finishes a reset challenge with the mailed code.
func (s *Store) ConfirmPasswordReset(ctx context.Context, email string, code uint32, newPassword string) error {
	e, ok := s.findByEmail(email)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.RLock()
	id := e.acc.ID
	e.mu.RUnlock()

	s.Refresh(ctx, id)

	e, ok = s.lookup(id)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.Lock()
	err := e.acc.confirmReset(code, newPassword)
	snapshot := e.acc
	e.mu.Unlock()
	if err != nil {
		return err
	}

	s.save(ctx, &snapshot)
	return nil
}

// Login verifies the password and issues a session token honoring the
// account's configured expiration.
func (s *Store) Login(ctx context.Context, id uint64, password string) (string, error) {
	e, ok := s.lookup(id)
	if !ok {
		return "", common.ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acc.Verified == nil {
		return "", common.ErrUserUnverified
	}
	v := e.acc.Verified
	if !checkPassword(v.Attributes.PasswordHash, password) {
		return "", common.ErrPasswordIncorrect
	}

	token, err := v.Tokens.Issue(id, v.Attributes.TokenExpireDays, s.opts.SecretKey, s.now())
	if err != nil {
		return "", err
	}

	snapshot := e.acc
	s.save(ctx, &snapshot)
	s.logger.Info(ctx, "account logged in", "id", id)
	return token, nil
}

// Logout revokes a session token; an absent token is ErrTokenIncorrect.
func (s *Store) Logout(ctx context.Context, id uint64, token string) error {
	e, ok := s.lookup(id)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acc.Verified == nil {
		return common.ErrUserUnverified
	}
	if !e.acc.Verified.Tokens.Revoke(token) {
		return common.ErrTokenIncorrect
	}

	snapshot := e.acc
	s.save(ctx, &snapshot)
	return nil
}

// SignOut deletes the account after double-checking the password and a
// usable token.
func (s *Store) SignOut(ctx context.Context, id uint64, password, token string) error {
	e, ok := s.lookup(id)
	if !ok {
		return common.ErrAccountNotFound
	}

	e.mu.RLock()
	if e.acc.Verified == nil {
		e.mu.RUnlock()
		return common.ErrUserUnverified
	}
	v := e.acc.Verified
	ok = checkPassword(v.Attributes.PasswordHash, password) && v.Tokens.Usable(token, s.now())
	e.mu.RUnlock()

	if !ok {
		return common.ErrPasswordIncorrect
	}

	s.Remove(ctx, id)
	s.logger.Info(ctx, "account signed out", "id", id)
	return nil
}

// Remove deletes an account and rebuilds the index.
func (s *Store) Remove(ctx context.Context, id uint64) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.rebuildIndex()
	s.mu.Unlock()

	if s.gateway == nil {
		return
	}
	if err := s.gateway.DeleteAccount(ctx, id); err != nil {
		s.logger.Error(ctx, "account delete failed", "id", id, "err", err)
	}
}

// Refresh sweeps one account: an expired unverified signup is removed,
// expired tokens and stale reset challenges are cleared in place.
func (s *Store) Refresh(ctx context.Context, id uint64) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}

	e.mu.RLock()
	expired := e.acc.Unverified != nil && e.acc.Unverified.Session.Expired(s.now())
	e.mu.RUnlock()

	if expired {
		s.Remove(ctx, id)
		return
	}

	e.mu.Lock()
	if v := e.acc.Verified; v != nil {
		v.Tokens.Refresh(s.now())
		if v.PendingReset != nil && v.PendingReset.Expired(s.now()) {
			v.PendingReset = nil
		}
	}
	e.mu.Unlock()
}

// RefreshAll sweeps every account. Run at startup and optionally on a
// timer; individual accounts are also swept lazily via Refresh.
func (s *Store) RefreshAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.RLock()
		ids = append(ids, e.acc.ID)
		e.mu.RUnlock()
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Refresh(ctx, id)
	}
}

// Snapshot returns a copy of every account. Used for the shutdown
// dump.
func (s *Store) Snapshot() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.RLock()
		out = append(out, e.acc)
		e.mu.RUnlock()
	}
	return out
}

// HasPermission applies the hierarchical containment rule.
func (s *Store) HasPermission(id uint64, p Permission) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acc.HasPermission(p)
}

// Permissions returns the account's permission set.
func (s *Store) Permissions(id uint64) (Permissions, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append(Permissions(nil), e.acc.Permissions()...), nil
}

// TokenUsable reports whether the token is live in the account's ledger.
func (s *Store) TokenUsable(id uint64, token string) (bool, error) {
	e, ok := s.lookup(id)
	if !ok {
		return false, common.ErrAccountNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.acc.Verified == nil {
		return false, common.ErrUserUnverified
	}
	return e.acc.Verified.Tokens.Usable(token, s.now()), nil
}

// Metadata is the viewable profile of a verified account.
type Metadata struct {
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	SchoolID     uint32  `json:"school_id"`
	Phone        uint64  `json:"phone"`
	House        *string `json:"house,omitempty"`
	Organization *string `json:"organization,omitempty"`
}

// ViewResult bundles everything returned to account-view requests.
type ViewResult struct {
	ID           uint64      `json:"id"`
	Metadata     Metadata    `json:"metadata"`
	Permissions  Permissions `json:"permissions"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// View returns the profile of a verified account.
func (s *Store) View(ctx context.Context, id uint64) (*ViewResult, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, common.ErrAccountNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.acc.Verified == nil {
		return nil, common.ErrUserUnverified
	}
	attrs := e.acc.Verified.Attributes
	return &ViewResult{
		ID: id,
		Metadata: Metadata{
			Email:        attrs.Email,
			Name:         attrs.Name,
			SchoolID:     attrs.SchoolID,
			Phone:        attrs.Phone,
			House:        attrs.House,
			Organization: attrs.Organization,
		},
		Permissions:  append(Permissions(nil), attrs.Permissions...),
		RegisteredAt: attrs.RegisteredAt,
	}, nil
}
