package events

import (
	"context"
	"math"
	"time"

	"github.com/eventdesk/server/internal/fault"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Types lists the accepted event types.
var Types = []string{"conference", "workshop", "meetup", "seminar", "concert", "sports", "other"}

var (
	ErrEventNotFound     = fault.New(fault.KindNotFound, "event_not_found", "event not found")
	ErrVenueNotFound     = fault.New(fault.KindValidation, "venue_not_found", "venue not found")
	ErrInvalidTransition = fault.New(fault.KindConflict, "invalid_status_transition", "event status does not allow this change")
)

type Event struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Type                 string     `json:"type"`
	StartsAt             time.Time  `json:"start_date"`
	EndsAt               time.Time  `json:"end_date"`
	Capacity             int        `json:"capacity"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	Status               Status     `json:"status"`
	Price                float64    `json:"price"`
	OrganizerID          string     `json:"organizer_id"`
	VenueID              *string    `json:"venue_id,omitempty"`
	Organizer            *Organizer `json:"organizer,omitempty"`
	Venue                *Venue     `json:"venue,omitempty"`
	RegisteredCount      int        `json:"registered_count"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Organizer holds the display fields of the owning user.
type Organizer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Venue is read-only context shown alongside events.
type Venue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Capacity int    `json:"capacity"`
}

// Joined is an event seen from a participant, with their registration.
type Joined struct {
	Event
	ParticipationID     string    `json:"participation_id"`
	ParticipationStatus string    `json:"participation_status"`
	RegisteredAt        time.Time `json:"registered_at"`
}

type CreateParams struct {
	Title                string
	Description          string
	Type                 string
	StartsAt             time.Time
	EndsAt               time.Time
	Capacity             int
	RegistrationDeadline *time.Time
	Price                float64
	OrganizerID          string
	VenueID              *string
}

type Filters struct {
	Search string
	Type   string
}

// Page is an offset page request. Number starts at 1.
type Page struct {
	Number int
	Limit  int
}

// Offset saturates at math.MaxInt instead of wrapping negative.
func (p Page) Offset() int {
	if p.Number < 1 || p.Limit < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Limit
}

type ListResult[T any] struct {
	Items []T
	Total int
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (Event, error)
	GetByID(ctx context.Context, id string) (Event, error)
	// TransitionStatus moves the event to next only when its current status
	// is one of from. It returns ErrInvalidTransition when the event exists
	// in another status.
	TransitionStatus(ctx context.Context, id string, from []Status, next Status) (Event, error)
	ListPublished(ctx context.Context, filters Filters, page Page) ([]Event, error)
	CountPublished(ctx context.Context, filters Filters) (int, error)
	ListByOrganizer(ctx context.Context, organizerID string, page Page) ([]Event, int, error)
	ListJoined(ctx context.Context, userID string, page Page) ([]Joined, int, error)
}
