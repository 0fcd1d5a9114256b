package notify

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"

	"github.com/tbourn/internship-backend/internal/config"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Template string // template name, for logs and metrics
}

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// NewMailer returns an SMTP mailer when a host is configured and a log-only
// mailer otherwise.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail through an SMTP relay with gomail.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer builds a mailer from cfg. Username is used as the sender
// when From is empty.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

// Send implements Mailer. gomail has no context support; ctx is checked once
// before dialing.
func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.To == "" {
		return errors.New("mail: empty recipient")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)
	return s.dialer.DialAndSend(msg)
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(_ context.Context, m Message) error {
	log.Info().
		Str("to", maskEmail(m.To)).
		Str("subject", m.Subject).
		Str("template", m.Template).
		Msg("mail not sent: SMTP not configured")
	return nil
}

// MemoryMailer records messages in memory. Err, when set, fails every send.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Send implements Mailer.
func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns the recorded messages for one template.
func (m *MemoryMailer) SentTo(template string) []Message {
	var out []Message
	for _, msg := range m.Sent() {
		if msg.Template == template {
			out = append(out, msg)
		}
	}
	return out
}

// maskEmail keeps the first rune of the local part: "jane@x.io" -> "j***@x.io".
func maskEmail(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
