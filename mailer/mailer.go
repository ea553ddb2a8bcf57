// Package mailer renders and delivers account emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/template/django/v3"

	"github.com/safebite/safebite-api/auth"
	"github.com/safebite/safebite-api/logging"
)

//go:embed templates
var templatesFS embed.FS

const (
	templatePasswordReset = "password_reset"
	templateVerification  = "verification"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	// Link is the action URL in the body, kept for log based delivery.
	Link string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders account emails and hands them to a Sender.
type Mailer struct {
	sender      Sender
	engine      *django.Engine
	frontendURL string
	logger      logging.Logger
}

var _ auth.Mailer = (*Mailer)(nil)

type Option func(*Mailer)

func WithLogger(logger logging.Logger) Option {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New loads the embedded templates. frontendURL prefixes the action links.
func New(sender Sender, frontendURL string, opts ...Option) (*Mailer, error) {
	if sender == nil {
		return nil, fmt.Errorf("mailer: sender is required")
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("mailer: load templates: %w", err)
	}

	m := &Mailer{
		sender:      sender,
		engine:      engine,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, fullName, token string) error {
	return m.send(ctx, to, "SafeBite - Password reset", templatePasswordReset,
		m.link("/reset-password", token), fullName, auth.ResetTokenTTLHours)
}

func (m *Mailer) SendVerification(ctx context.Context, to, fullName, token string) error {
	return m.send(ctx, to, "SafeBite - Verify your email", templateVerification,
		m.link("/verify-email", token), fullName, auth.VerificationTokenTTLHours)
}

func (m *Mailer) link(path, token string) string {
	return m.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (m *Mailer) send(ctx context.Context, to, subject, template, link, fullName string, ttlHours int) error {
	var body bytes.Buffer
	err := m.engine.Render(&body, template, map[string]any{
		"full_name": fullName,
		"link":      link,
		"ttl_hours": ttlHours,
	})
	if err != nil {
		return fmt.Errorf("mailer: render %s: %w", template, err)
	}

	msg := Message{
		To:      to,
		Subject: subject,
		HTML:    body.String(),
		Link:    link,
	}

	if err := m.sender.Send(ctx, msg); err != nil {
		return err
	}

	m.logger.Debug("mailer: %q sent to %s", subject, to)
	return nil
}
