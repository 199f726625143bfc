// Package email renders and delivers account and registration notices
// through SMTP or the Resend API.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/eventdesk/server/internal/config"
	"github.com/eventdesk/server/internal/metrics"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

// RegistrationConfirmation is sent after a successful join.
type RegistrationConfirmation struct {
	To          string
	Name        string
	EventTitle  string
	StartsAt    time.Time
	CheckInCode string
}

type registrationData struct {
	RegistrationConfirmation
	Year int
}

type passwordChangedData struct {
	Name      string
	ChangedAt time.Time
	Year      int
}

type Service struct {
	config       config.EmailConfig
	templates    *template.Template
	resendClient *resend.Client
	now          func() time.Time
	logger       zerolog.Logger
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		now:       time.Now,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled && cfg.Provider == "resend" {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

func (s *Service) SendRegistrationConfirmation(ctx context.Context, msg RegistrationConfirmation) error {
	body, err := s.render("registration.html", registrationData{RegistrationConfirmation: msg, Year: s.now().Year()})
	if err != nil {
		return err
	}
	return s.deliver(ctx, outgoing{to: msg.To, subject: "You're registered: " + msg.EventTitle, html: body, category: "registration"})
}

func (s *Service) SendPasswordChanged(ctx context.Context, to, name string) error {
	now := s.now()
	body, err := s.render("password_changed.html", passwordChangedData{Name: name, ChangedAt: now, Year: now.Year()})
	if err != nil {
		return err
	}
	return s.deliver(ctx, outgoing{to: to, subject: "Your password was changed", html: body, category: "password_changed"})
}

// outgoing is one rendered message. category tags it for the provider's
// dashboards and for the delivery metrics.
type outgoing struct {
	to       string
	subject  string
	html     string
	category string
}

func (s *Service) deliver(ctx context.Context, msg outgoing) error {
	if err := validateEmailAddress(msg.to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}
	if strings.ContainsAny(msg.subject, "\r\n") {
		return fmt.Errorf("invalid subject: contains newline characters")
	}

	if !s.config.Enabled {
		s.logger.Info().Str("to", msg.to).Str("category", msg.category).Msg("email disabled, skipping send")
		metrics.EmailDeliveries.WithLabelValues("disabled", "skipped").Inc()
		return nil
	}

	var err error
	switch s.config.Provider {
	case "resend":
		err = s.sendViaResend(ctx, msg)
	default:
		err = s.sendViaSMTP(msg.to, msg.subject, msg.html)
	}
	result := "sent"
	if err != nil {
		result = "error"
	}
	metrics.EmailDeliveries.WithLabelValues(s.provider(), result).Inc()
	return err
}

func (s *Service) provider() string {
	if s.config.Provider == "resend" {
		return "resend"
	}
	return "smtp"
}

func (s *Service) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// validateEmailAddress rejects malformed addresses and header injection.
func validateEmailAddress(email string) error {
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}
