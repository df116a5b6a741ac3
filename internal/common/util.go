package common

import (
	"crypto/rand"
	"encoding/binary"
)

// RandVerificationCode returns a random 6-digit verification code in the
// range [100000, 999999].
func RandVerificationCode() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return 100000 + binary.BigEndian.Uint32(b[:])%900000
}
