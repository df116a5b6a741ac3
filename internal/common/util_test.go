package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandVerificationCode_SixDigits(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := RandVerificationCode()
		assert.GreaterOrEqual(t, code, uint32(100000))
		assert.LessOrEqual(t, code, uint32(999999))
	}
}
