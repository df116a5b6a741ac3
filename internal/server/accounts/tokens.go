package accounts

import (
	"time"

	"github.com/subit-dev/posterd/internal/server/auth"
)

// maxLedgerSize bounds the number of live tokens per account. Issuing a
// token past the bound drops the oldest entry (ring semantics).
const maxLedgerSize = 16

type tokenEntry struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Value     string     `json:"value"`
}

// TokenLedger is the bounded list of active session tokens for one
// verified account. It is not safe for concurrent use on its own: the
// owning account's lock serializes access.
type TokenLedger struct {
	Entries []tokenEntry `json:"entries"`
}

func NewTokenLedger() TokenLedger {
	return TokenLedger{Entries: make([]tokenEntry, 0, maxLedgerSize)}
}

// Issue mints a token for accountID expiring after expireDays days.
// expireDays of zero means the token never expires.
func (l *TokenLedger) Issue(accountID uint64, expireDays uint16, secret []byte, now time.Time) (string, error) {
	var expiresAt *time.Time
	if expireDays > 0 {
		e := now.AddDate(0, 0, int(expireDays))
		expiresAt = &e
	}

	token, err := auth.GenerateToken(accountID, secret, expiresAt)
	if err != nil {
		return "", err
	}

	if len(l.Entries) >= maxLedgerSize {
		l.Entries = l.Entries[1:]
	}
	l.Entries = append(l.Entries, tokenEntry{ExpiresAt: expiresAt, Value: token})

	return token, nil
}

// Revoke removes the given token and reports whether it was present.
func (l *TokenLedger) Revoke(token string) bool {
	before := len(l.Entries)
	kept := l.Entries[:0]
	for _, e := range l.Entries {
		if e.Value != token {
			kept = append(kept, e)
		}
	}
	l.Entries = kept
	return len(l.Entries) < before
}

// Usable reports whether the token is present and not expired.
func (l *TokenLedger) Usable(token string, now time.Time) bool {
	for _, e := range l.Entries {
		if e.Value == token {
			return e.ExpiresAt == nil || e.ExpiresAt.After(now)
		}
	}
	return false
}

// Refresh drops expired tokens. Entries keep their issuance order: the
// overflow rule in Issue evicts the front entry, which is only the
// oldest token while that order holds.
func (l *TokenLedger) Refresh(now time.Time) {
	kept := l.Entries[:0]
	for _, e := range l.Entries {
		if e.ExpiresAt == nil || e.ExpiresAt.After(now) {
			kept = append(kept, e)
		}
	}
	l.Entries = kept
}

// Len returns how many tokens are currently held.
func (l *TokenLedger) Len() int { return len(l.Entries) }
