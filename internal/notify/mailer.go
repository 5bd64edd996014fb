// Package notify e-mails customers as their booking moves through its
// lifecycle. It consumes booking events from Kafka.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
)

// Email is a rendered message ready to send.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers e-mails.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SMTPMailer sends through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	addr     string
	host     string
	username string
	password string
	from     string
	fromName string
	// send is smtp.SendMail outside tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer returns a mailer for host:port. Auth is skipped when
// username is empty.
func NewSMTPMailer(host string, port int, username, password, from, fromName string) *SMTPMailer {
	return &SMTPMailer{
		addr:     host + ":" + strconv.Itoa(port),
		host:     host,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		send:     smtp.SendMail,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := m.send(m.addr, auth, m.from, []string{e.To}, m.message(e)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) message(e Email) []byte {
	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", m.fromName, m.from),
		"To":           e.To,
		"Subject":      e.Subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
		"X-Mailer":     "taxi-service",
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\r\n", k, headers[k])
	}
	sb.WriteString("\r\n")
	sb.WriteString(e.HTML)
	return []byte(sb.String())
}

// LogMailer stands in when no relay is configured. It logs the recipient
// and subject only.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, e Email) error {
	log.Printf("[notify] mail disabled, would send %q to %s", e.Subject, e.To)
	return nil
}
