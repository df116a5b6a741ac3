package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@org.edu", "user@org.edu", 123456, "activation"))

	assert.True(t, strings.HasPrefix(msg, "From: noreply@org.edu\r\n"))
	assert.Contains(t, msg, "To: user@org.edu\r\n")
	assert.Contains(t, msg, "Subject: Verification code for activation\r\n")
	assert.Contains(t, msg, "123456")
	// headers and body are separated by a blank line
	assert.Contains(t, msg, "\r\n\r\n")
}

func TestBuildMessage_PadsShortCodes(t *testing.T) {
	msg := string(buildMessage("a@b.c", "d@e.f", 123456%100000, "reset"))
	assert.Contains(t, msg, "023456")
}
