package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/models"
)

// Subject is the subject line of every availability notification
const Subject = "Your room is free"

// sendFunc matches smtp.SendMail so tests can capture the outgoing message
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends notifications over SMTP
type Mailer struct {
	cfg   config.MailConfig
	grace time.Duration
	send  sendFunc
}

// NewMailer creates an SMTP-backed notifier. The grace window is quoted in
// the message body so recipients know how long the room is held for them.
func NewMailer(cfg config.MailConfig, grace time.Duration) *Mailer {
	return &Mailer{
		cfg:   cfg,
		grace: grace,
		send:  smtp.SendMail,
	}
}

// Notify sends the availability message for a freed room to the recipient
func (m *Mailer) Notify(ctx context.Context, recipient string, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	msg := m.Message(recipient, room)
	if err := m.send(addr, auth, m.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// Message renders the full RFC 822 message for a freed room, including the
// cancellation link the recipient can use to release the hold.
func (m *Mailer) Message(recipient string, room *models.Room) []byte {
	minutes := int(m.grace.Minutes())
	cancelLink := fmt.Sprintf("%s/cancel/%d", strings.TrimRight(m.cfg.CancelBaseURL, "/"), room.ID)

	body := fmt.Sprintf(
		"<p>The %s is free for reservation. You have %d minutes to reserve it. "+
			"Otherwise, an email will be sent to the next person on the waiting list.</p> "+
			"<p>If you don't need the room anymore please click on the link: %s</p>",
		room.Name, minutes, cancelLink)

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&sb, "To: %s\r\n", recipient)
	fmt.Fprintf(&sb, "Subject: %s\r\n", Subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
