package notify

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// Notifier is the outbound alert channel. Callers treat Send failures as
// non-fatal: alerting is best-effort by contract.
type Notifier interface {
	Send(recipient, subject, body string) error
}

// SMTPNotifier delivers alerts over SMTP.
type SMTPNotifier struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// NewFromEnv builds a notifier from SMTP_* environment variables. Without an
// SMTP_HOST it falls back to a log-only notifier so the service still runs.
func NewFromEnv() Notifier {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Println("SMTP_HOST not set, alerts will be logged only")
		return &LogNotifier{}
	}

	return &SMTPNotifier{
		Host:     host,
		Port:     getEnvOrDefault("SMTP_PORT", "587"),
		From:     getEnvOrDefault("SMTP_FROM", "linkaudit@localhost"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
	}
}

// Send delivers one message. The body is sent as plain text.
func (n *SMTPNotifier) Send(recipient, subject, body string) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}

	msg := strings.Join([]string{
		"From: " + n.From,
		"To: " + recipient,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := n.Host + ":" + n.Port
	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, n.Host)
	}

	if err := smtp.SendMail(addr, auth, n.From, []string{recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}
	return nil
}

// LogNotifier writes alerts to the process log instead of sending them.
type LogNotifier struct{}

func (n *LogNotifier) Send(recipient, subject, body string) error {
	log.Printf("ALERT to %s: %s\n%s", recipient, subject, body)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
