package accounts

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/subit-dev/posterd/internal/common"
)

// Unverified holds the signup challenge for an account that has not yet
// proven control of its email address.
type Unverified struct {
	Session VerifySession `json:"session"`
}

// Attributes are the profile fields of a verified account.
type Attributes struct {
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	SchoolID     uint32      `json:"school_id"`
	Phone        uint64      `json:"phone"`
	House        *string     `json:"house,omitempty"`
	Organization *string     `json:"organization,omitempty"`
	Permissions  Permissions `json:"permissions"`
	RegisteredAt time.Time   `json:"registered_at"`
	PasswordHash []byte      `json:"password_hash"`
	// TokenExpireDays is the lifetime of newly issued tokens in days;
	// zero means tokens never expire.
	TokenExpireDays uint16 `json:"token_expire_days"`
}

// Verified is a fully registered account.
type Verified struct {
	Attributes Attributes  `json:"attributes"`
	Tokens     TokenLedger `json:"tokens"`
	// PendingReset is set while a password-reset challenge is active.
	PendingReset *VerifySession `json:"pending_reset,omitempty"`
}

// Account is a sum type: exactly one of Unverified or Verified is set.
// The id is assigned at creation from the email hash and never changes,
// even when an administrator later edits the email.
type Account struct {
	ID         uint64      `json:"id"`
	Unverified *Unverified `json:"unverified,omitempty"`
	Verified   *Verified   `json:"verified,omitempty"`
}

// Email returns the account's current email address.
func (a *Account) Email() string {
	if a.Unverified != nil {
		return a.Unverified.Session.Email
	}
	return a.Verified.Attributes.Email
}

// Permissions returns the permission set; unverified accounts hold none.
func (a *Account) Permissions() Permissions {
	if a.Verified == nil {
		return nil
	}
	return a.Verified.Attributes.Permissions
}

// HasPermission applies the containment rule against the held set.
func (a *Account) HasPermission(p Permission) bool {
	return a.Permissions().Contains(p)
}

// activate consumes the unverified variant and produces the verified one.
// The account id stays what the email hashed to at creation.
func (a *Account) activate(code uint32, attrs Attributes) error {
	if a.Unverified == nil {
		return common.ErrUserAlreadyRegistered
	}
	if a.Unverified.Session.Code != code {
		return common.ErrVerificationCodeMismatch
	}

	a.Unverified = nil
	a.Verified = &Verified{
		Attributes: attrs,
		Tokens:     NewTokenLedger(),
	}
	return nil
}

// confirmReset finishes a password-reset challenge, replacing the hash
// and clearing the pending session.
func (a *Account) confirmReset(code uint32, newPassword string) error {
	if a.Verified == nil {
		return common.ErrUserUnverified
	}
	if a.Verified.PendingReset == nil {
		return common.ErrPermissionDenied
	}
	if a.Verified.PendingReset.Code != code {
		return common.ErrVerificationCodeMismatch
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	a.Verified.Attributes.PasswordHash = hash
	a.Verified.PendingReset = nil
	return nil
}

func hashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
