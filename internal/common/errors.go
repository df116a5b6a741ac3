// Package common defines shared constants and sentinel errors used across
// the posterd server layers. Callers should use errors.Is to match the
// sentinel values and errors.As for the typed ones.
package common

import (
	"errors"
	"fmt"
)

var (
	// Account-domain errors.
	ErrVerificationCodeMismatch = errors.New("verification code does not match")
	ErrUserUnverified           = errors.New("user has not been verified")
	ErrUserAlreadyRegistered    = errors.New("user already registered")
	ErrPasswordIncorrect        = errors.New("password is not correct")
	ErrTokenIncorrect           = errors.New("token is not correct")
	ErrEmailDomainNotAllowed    = errors.New("email domain is not allowed")
	ErrMailSend                 = errors.New("verification mail could not be sent")
	ErrPermissionDenied         = errors.New("permission denied")
	ErrAccountNotFound          = errors.New("account not found")

	// Shared by both domains.
	ErrConflict       = errors.New("identifier conflict")
	ErrNotFound       = errors.New("not found")
	ErrDateOutOfRange = errors.New("date out of range")

	// Post/image-domain errors.
	ErrImageTooLarge = errors.New("image too large")
	ErrImageDecode   = errors.New("image could not be decoded")
	ErrImageNotFound = errors.New("image not found")
	ErrRejectMessage = errors.New("reject message must not be empty")
	ErrVerifyPending = errors.New("a verification session is already active")
)

// AlreadyInStatusError reports a post workflow transition that would
// repeat the post's current acceptance status.
type AlreadyInStatusError struct {
	Status string
}

func (e *AlreadyInStatusError) Error() string {
	return fmt.Sprintf("post is already in status %s", e.Status)
}
