// ABOUTME: Mail transports for delivering rendered messages
// ABOUTME: LogMailer writes links to the log for development; SMTPMailer sends multipart mail over SMTP

package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// LogMailer writes messages to the log instead of sending them. Used in
// development and demo deployments where no SMTP relay is configured; the
// action link is still reachable through the log line.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a log-only transport.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("component", "mailer")}
}

// Send logs the message instead of delivering it.
func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	m.logger.Info("mail (not sent, log transport)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.TextBody)
	return nil
}

// SMTPMailer sends messages through an SMTP relay using PLAIN auth. Messages
// go out as multipart/alternative with text and HTML parts.
type SMTPMailer struct {
	addr   string // host:port
	auth   smtp.Auth
	from   string
	logger *slog.Logger

	// send is swapped in tests to capture the wire payload.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates an SMTP transport. Auth is skipped when user is empty,
// for relays on trusted networks.
func NewSMTPMailer(host string, port int, user, password, from string, logger *slog.Logger) *SMTPMailer {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPMailer{
		addr:   fmt.Sprintf("%s:%d", host, port),
		auth:   auth,
		from:   from,
		logger: logger.With("component", "mailer"),
		send:   smtp.SendMail,
	}
}

// Send delivers the message through the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodeMessage(m.from, msg)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}
	if err := m.send(m.addr, m.auth, m.from, []string{msg.To}, payload); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	m.logger.Info("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// encodeMessage assembles a multipart/alternative MIME message.
func encodeMessage(from string, msg *Message) ([]byte, error) {
	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")

	var b strings.Builder
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	header("From", from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@asf-auth>", uuid.NewString()))
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	writePart := func(contentType, body string) error {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s; charset=utf-8\r\n", contentType)
		b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		qp := quotedprintable.NewWriter(&b)
		if _, err := qp.Write([]byte(body)); err != nil {
			return err
		}
		if err := qp.Close(); err != nil {
			return err
		}
		b.WriteString("\r\n")
		return nil
	}

	// Plain part first so limited clients show it by default.
	if err := writePart("text/plain", msg.TextBody); err != nil {
		return nil, err
	}
	if err := writePart("text/html", msg.HTMLBody); err != nil {
		return nil, err
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String()), nil
}
