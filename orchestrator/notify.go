package orchestrator

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig names a mail relay to notify through when a planning cycle fails. There is no
// message-queue or mail library anywhere in this codebase's dependency stack to build this on, so
// Notifier is deliberately the one part of the domain stack built directly on the standard
// library's net/smtp.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Notifier sends a failure notification email through an SMTP relay using PLAIN auth.
type Notifier struct {
	cfg SMTPConfig
}

// NewNotifier builds a Notifier from cfg, or returns nil if cfg has no host configured, matching
// this codebase's "nil disables the feature" convention for optional collaborators.
func NewNotifier(cfg SMTPConfig) *Notifier {
	if cfg.Host == "" || len(cfg.To) == 0 {
		return nil
	}
	return &Notifier{cfg: cfg}
}

// Notify sends a plain-text email with the given subject and body to every configured recipient.
func (n *Notifier) Notify(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", subject)
	msg.WriteString(body)

	if err := smtp.SendMail(addr, auth, n.cfg.From, n.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("notify: send mail via %s: %w", addr, err)
	}
	return nil
}
