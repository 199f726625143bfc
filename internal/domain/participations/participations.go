// Package participations implements event registration and check-in.
package participations

import (
	"context"
	"time"

	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/fault"
)

type Status string

const (
	StatusRegistered Status = "registered"
	StatusAttended   Status = "attended"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

var (
	ErrEventNotFound       = events.ErrEventNotFound
	ErrAlreadyRegistered   = fault.New(fault.KindConflict, "already_registered", "you are already registered for this event")
	ErrEventFull           = fault.New(fault.KindConflict, "event_full", "event is full")
	ErrRegistrationClosed  = fault.New(fault.KindConflict, "registration_closed", "registration for this event is closed")
	ErrNotRegistered       = fault.New(fault.KindNotFound, "not_registered", "you are not registered for this event")
	ErrMalformedCode       = fault.New(fault.KindValidation, "malformed_code", "invalid check-in code")
	ErrParticipantNotFound = fault.New(fault.KindNotFound, "participant_not_found", "participant not found for this event")
	ErrAlreadyCheckedIn    = fault.New(fault.KindConflict, "already_checked_in", "participant already checked in")
)

type Participation struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	EventID      string     `json:"event_id"`
	Status       Status     `json:"status"`
	RegisteredAt time.Time  `json:"registered_at"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	Rating       *int       `json:"rating,omitempty"`
	Feedback     string     `json:"feedback,omitempty"`
}

// Attendee is a participation joined with the user's display fields.
type Attendee struct {
	Participation
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Seat is the slice of an event the registration workflow decides on.
type Seat struct {
	EventID              string
	Title                string
	OrganizerID          string
	Status               events.Status
	Capacity             int
	StartsAt             time.Time
	RegistrationDeadline *time.Time
}

// Repository is the persistence contract for participations. Seated counts
// include registered and attended participations.
type Repository interface {
	// WithTx runs fn against a repository bound to one transaction.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// LockEvent reads the event row and holds a lock on it until the
	// surrounding transaction ends.
	LockEvent(ctx context.Context, eventID string) (Seat, error)
	GetEvent(ctx context.Context, eventID string) (Seat, error)
	CountSeated(ctx context.Context, eventID string) (int, error)

	// FindActive returns the caller's non-cancelled participation or
	// ErrNotRegistered.
	FindActive(ctx context.Context, userID, eventID string) (Participation, error)
	Create(ctx context.Context, userID, eventID string, at time.Time) (Participation, error)
	Cancel(ctx context.Context, participationID string) error

	// FindForCheckIn returns a registered or attended participation or
	// ErrParticipantNotFound.
	FindForCheckIn(ctx context.Context, userID, eventID string) (Attendee, error)
	// MarkAttended flips a registered participation to attended and reports
	// whether this call made the change.
	MarkAttended(ctx context.Context, participationID string, at time.Time) (bool, error)
	GetAttendee(ctx context.Context, participationID string) (Attendee, error)
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)
}
