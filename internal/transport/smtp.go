package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
	"unicode"
)

// SMTPTransport relays messages through an authenticated SMTP server.
type SMTPTransport struct {
	Addr string
	From string
	Auth smtp.Auth

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPTransport(host, port, username, password, from string) *SMTPTransport {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPTransport{
		Addr:     net.JoinHostPort(host, port),
		From:     from,
		Auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	if err := ValidateAddress(to); err != nil {
		return err
	}

	msg := buildMessage(t.From, to, subject, body)

	// smtp.SendMail has no context support; run it aside and stop waiting
	// when the caller's deadline passes.
	done := make(chan error, 1)
	go func() {
		done <- t.sendMail(t.Addr, t.Auth, t.From, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return classifySMTP(err)
	case <-ctx.Done():
		return NewError(KindTimeout, ctx.Err())
	}
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + headerValue(subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// headerValue folds a value onto one header line; any control character,
// CR and LF included, becomes a space.
func headerValue(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// classifySMTP maps reply codes: 550/553 mailbox problems are invalid
// addresses, other 5xx are provider rejections.
func classifySMTP(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 550 || tpErr.Code == 553 || tpErr.Code == 501:
			return NewError(KindInvalidAddress, err)
		case tpErr.Code >= 400:
			return NewError(KindRejected, err)
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(KindTimeout, err)
	}
	return NewError(KindUnknown, fmt.Errorf("smtp: %w", err))
}
