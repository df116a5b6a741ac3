package accounts

import (
	"time"

	"github.com/subit-dev/posterd/internal/common"
)

// Verification purposes passed through to the Notifier.
const (
	PurposeActivation    = "activation"
	PurposePasswordReset = "password-reset"
)

// VerifySession is a short-lived 6-digit challenge bound to an email
// address, proving control of that address.
type VerifySession struct {
	Email    string    `json:"email"`
	Code     uint32    `json:"code"`
	ExpireAt time.Time `json:"expire_at"`
}

// NewVerifySession builds a session with a fresh random code expiring
// after ttl.
func NewVerifySession(email string, ttl time.Duration, now time.Time) VerifySession {
	return VerifySession{
		Email:    email,
		Code:     common.RandVerificationCode(),
		ExpireAt: now.Add(ttl),
	}
}

// Expired reports whether the session's challenge window has closed.
func (s VerifySession) Expired(now time.Time) bool {
	return !s.ExpireAt.After(now)
}
