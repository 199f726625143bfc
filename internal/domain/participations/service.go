package participations

import (
	"context"
	"errors"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/email"
	"github.com/eventdesk/server/internal/fault"
	"github.com/rs/zerolog"
)

// Notifier sends registration confirmations. Failures are logged and never
// undo a registration.
type Notifier interface {
	SendRegistrationConfirmation(ctx context.Context, msg email.RegistrationConfirmation) error
}

// Ticket is a participant's proof of registration.
type Ticket struct {
	Participation Participation `json:"participation"`
	Code          string        `json:"code"`
}

type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With().Str("component", "participations").Logger(),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Join registers member for an event. The event row stays locked from the
// status check through the insert, so concurrent joins cannot overshoot
// capacity.
func (s *Service) Join(ctx context.Context, eventID string, member users.User) (Participation, error) {
	var (
		seat    Seat
		created Participation
	)
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		seat, err = tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if seat.Status != events.StatusPublished {
			return ErrEventNotFound
		}

		if _, err := tx.FindActive(ctx, member.ID, eventID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, ErrNotRegistered) {
			return err
		}

		now := s.now()
		if !registrationOpen(seat, now) {
			return ErrRegistrationClosed
		}

		seated, err := tx.CountSeated(ctx, eventID)
		if err != nil {
			return err
		}
		if seated >= seat.Capacity {
			return ErrEventFull
		}

		created, err = tx.Create(ctx, member.ID, eventID, now)
		return err
	})
	if err != nil {
		return Participation{}, err
	}

	s.logger.Info().Str("event_id", eventID).Str("user_id", member.ID).Str("participation_id", created.ID).Msg("participant registered")
	s.confirm(ctx, seat, member)
	return created, nil
}

func (s *Service) confirm(ctx context.Context, seat Seat, member users.User) {
	if s.notifier == nil {
		return
	}
	msg := email.RegistrationConfirmation{
		To:          member.Email,
		Name:        member.DisplayName(),
		EventTitle:  seat.Title,
		StartsAt:    seat.StartsAt,
		CheckInCode: Encode(member.ID, seat.EventID),
	}
	if err := s.notifier.SendRegistrationConfirmation(ctx, msg); err != nil {
		s.logger.Error().Err(fault.Dependency("send registration confirmation", err)).
			Str("event_id", seat.EventID).
			Str("user_id", member.ID).
			Msg("notification failed")
	}
}

// Leave cancels the caller's registration and frees the seat. Attended
// participations cannot be cancelled.
func (s *Service) Leave(ctx context.Context, eventID, userID string) error {
	current, err := s.repo.FindActive(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if current.Status == StatusAttended {
		return ErrAlreadyCheckedIn
	}
	if err := s.repo.Cancel(ctx, current.ID); err != nil {
		return err
	}
	s.logger.Info().Str("event_id", eventID).Str("user_id", userID).Msg("registration cancelled")
	return nil
}

// Ticket returns the caller's participation with its check-in code.
func (s *Service) Ticket(ctx context.Context, eventID, userID string) (Ticket, error) {
	current, err := s.repo.FindActive(ctx, userID, eventID)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Participation: current, Code: Encode(userID, eventID)}, nil
}

// CheckIn marks the participant named by a scanned payload as attended.
// When the participant was already checked in, the current record is
// returned together with ErrAlreadyCheckedIn and nothing is changed.
func (s *Service) CheckIn(ctx context.Context, payload string) (Attendee, error) {
	code, err := Decode(payload)
	if err != nil {
		return Attendee{}, err
	}

	current, err := s.repo.FindForCheckIn(ctx, code.ParticipantID, code.EventID)
	if err != nil {
		return Attendee{}, err
	}
	if current.Status == StatusAttended {
		return current, ErrAlreadyCheckedIn
	}

	changed, err := s.repo.MarkAttended(ctx, current.ID, s.now())
	if err != nil {
		return Attendee{}, err
	}

	updated, err := s.repo.GetAttendee(ctx, current.ID)
	if err != nil {
		return Attendee{}, err
	}
	if !changed {
		// Another scan or a cancellation won the race.
		if updated.Status == StatusAttended {
			return updated, ErrAlreadyCheckedIn
		}
		return Attendee{}, ErrParticipantNotFound
	}

	s.logger.Info().Str("event_id", code.EventID).Str("user_id", code.ParticipantID).Msg("participant checked in")
	return updated, nil
}

// Roster lists an event's participants for its organizer, admins and
// moderators.
func (s *Service) Roster(ctx context.Context, actor auth.Principal, eventID string) ([]Attendee, error) {
	seat, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Role == auth.RoleAdmin, actor.Role == auth.RoleModerator:
	case actor.UserID == seat.OrganizerID:
	default:
		return nil, auth.ErrForbidden
	}
	return s.repo.ListAttendees(ctx, eventID)
}

func registrationOpen(seat Seat, now time.Time) bool {
	if seat.RegistrationDeadline != nil {
		return !now.After(*seat.RegistrationDeadline)
	}
	return now.Before(seat.StartsAt)
}
