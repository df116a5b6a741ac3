// Package notify delivers verification codes to account owners. The
// SMTP implementation talks to a real relay; the log implementation
// stands in during development.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/subit-dev/posterd/internal/common"
)

// SMTP sends verification mail through a relay using PLAIN auth.
type SMTP struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

func NewSMTP(addr, from, username, password string) *SMTP {
	return &SMTP{Addr: addr, From: from, Username: username, Password: password}
}

// SendVerification composes and dispatches a code mail. Failures are
// wrapped as ErrMailSend so callers can treat the relay as one opaque
// collaborator.
func (s *SMTP) SendVerification(ctx context.Context, email string, code uint32, purpose string) error {
	host := s.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	auth := smtp.PlainAuth("", s.Username, s.Password, host)

	msg := buildMessage(s.From, email, code, purpose)
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{email}, msg); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMailSend, err)
	}
	return nil
}

func buildMessage(from, to string, code uint32, purpose string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Verification code for %s\r\n", purpose)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Your verification code is %06d.\r\n", code)
	b.WriteString("The code expires in 15 minutes. If you did not request it, ignore this message.\r\n")
	return []byte(b.String())
}
