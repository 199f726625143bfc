package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// sendViaResend posts one message to the Resend API. A rate limit response
// is returned to the caller with its reset time; nothing is queued.
func (s *Service) sendViaResend(ctx context.Context, msg outgoing) error {
	if s.resendClient == nil {
		return errors.New("resend client not initialized")
	}

	req := &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{msg.to},
		Subject: msg.subject,
		Html:    msg.html,
	}
	if msg.category != "" {
		req.Tags = []resend.Tag{{Name: "category", Value: msg.category}}
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, req)
	var limited *resend.RateLimitError
	switch {
	case errors.As(err, &limited):
		s.logger.Warn().
			Str("category", msg.category).
			Str("remaining", limited.Remaining).
			Str("reset", limited.Reset).
			Msg("resend rate limit exceeded")
		return fmt.Errorf("email rate limited, resets in %ss: %w", limited.Reset, err)
	case err != nil:
		return fmt.Errorf("resend %s email: %w", msg.category, err)
	}

	s.logger.Info().Str("email_id", sent.Id).Str("category", msg.category).Msg("email sent")
	return nil
}
