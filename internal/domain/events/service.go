package events

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/fault"
	"github.com/eventdesk/server/internal/sanitize"
	"github.com/eventdesk/server/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type CreateInput struct {
	Title                string     `json:"title" validate:"required,max=200"`
	Description          string     `json:"description" validate:"max=10000"`
	Type                 string     `json:"type" validate:"required,oneof=conference workshop meetup seminar concert sports other"`
	StartsAt             time.Time  `json:"start_date" validate:"required"`
	EndsAt               time.Time  `json:"end_date" validate:"required"`
	Capacity             int        `json:"capacity" validate:"gt=0"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	Price                float64    `json:"price" validate:"gte=0"`
	VenueID              *string    `json:"venue_id" validate:"omitempty,uuid"`
}

type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: validation.New(),
		now:      time.Now,
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// Create stores a new draft event owned by the caller.
func (s *Service) Create(ctx context.Context, actor auth.Principal, input CreateInput) (Event, error) {
	if actor.Role != auth.RoleOrganizer && actor.Role != auth.RoleAdmin {
		return Event{}, auth.ErrForbidden
	}

	input.Title = sanitize.Text(input.Title)
	input.Description = sanitize.Description(input.Description)
	input.Type = strings.ToLower(strings.TrimSpace(input.Type))
	if err := validation.Check(s.validate, input); err != nil {
		return Event{}, err
	}
	if !input.EndsAt.After(input.StartsAt) {
		return Event{}, fault.Validation("end_date", "must be after start_date")
	}
	if input.RegistrationDeadline != nil && !input.RegistrationDeadline.Before(input.StartsAt) {
		return Event{}, fault.Validation("registration_deadline", "must be before start_date")
	}

	event, err := s.repo.Create(ctx, CreateParams{
		Title:                input.Title,
		Description:          input.Description,
		Type:                 input.Type,
		StartsAt:             input.StartsAt.UTC(),
		EndsAt:               input.EndsAt.UTC(),
		Capacity:             input.Capacity,
		RegistrationDeadline: input.RegistrationDeadline,
		Price:                input.Price,
		OrganizerID:          actor.UserID,
		VenueID:              input.VenueID,
	})
	if err != nil {
		return Event{}, err
	}

	s.logger.Info().Str("event_id", event.ID).Str("organizer_id", actor.UserID).Msg("event created")
	return event, nil
}

// Get returns an event. Drafts are visible only to their organizer and
// admins; everyone else gets ErrEventNotFound.
func (s *Service) Get(ctx context.Context, id string, viewer *auth.Principal) (Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if event.Status == StatusDraft && !canManage(viewer, event) {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (s *Service) Publish(ctx context.Context, actor auth.Principal, id string) (Event, error) {
	return s.transition(ctx, actor, id, []Status{StatusDraft}, StatusPublished)
}

func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id string) (Event, error) {
	return s.transition(ctx, actor, id, []Status{StatusPublished}, StatusCancelled)
}

func (s *Service) Complete(ctx context.Context, actor auth.Principal, id string) (Event, error) {
	return s.transition(ctx, actor, id, []Status{StatusPublished}, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, actor auth.Principal, id string, from []Status, next Status) (Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if !canManage(&actor, event) {
		if event.Status == StatusDraft {
			return Event{}, ErrEventNotFound
		}
		return Event{}, auth.ErrForbidden
	}

	updated, err := s.repo.TransitionStatus(ctx, id, from, next)
	if err != nil {
		return Event{}, err
	}

	s.logger.Info().
		Str("event_id", id).
		Str("from", string(event.Status)).
		Str("to", string(next)).
		Str("actor_id", actor.UserID).
		Msg("event status changed")
	return updated, nil
}

// ListPublic returns one page of published events ordered by start date,
// with the total used for pagination metadata.
func (s *Service) ListPublic(ctx context.Context, filters Filters, page Page) (ListResult[Event], error) {
	filters.Search = sanitize.Text(filters.Search)
	filters.Type = strings.ToLower(strings.TrimSpace(filters.Type))
	if filters.Type != "" && !slices.Contains(Types, filters.Type) {
		return ListResult[Event]{}, fault.Validation("type", "must be one of: "+strings.Join(Types, ", "))
	}
	page = normalizePage(page)

	var (
		items []Event
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.ListPublished(gctx, filters, page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.CountPublished(gctx, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return ListResult[Event]{}, err
	}
	return ListResult[Event]{Items: items, Total: total}, nil
}

// ListByOrganizer returns the caller's own events in every status.
func (s *Service) ListByOrganizer(ctx context.Context, actor auth.Principal, page Page) (ListResult[Event], error) {
	items, total, err := s.repo.ListByOrganizer(ctx, actor.UserID, normalizePage(page))
	if err != nil {
		return ListResult[Event]{}, err
	}
	return ListResult[Event]{Items: items, Total: total}, nil
}

// ListJoined returns the events the caller registered for.
func (s *Service) ListJoined(ctx context.Context, actor auth.Principal, page Page) (ListResult[Joined], error) {
	items, total, err := s.repo.ListJoined(ctx, actor.UserID, normalizePage(page))
	if err != nil {
		return ListResult[Joined]{}, err
	}
	return ListResult[Joined]{Items: items, Total: total}, nil
}

func canManage(viewer *auth.Principal, event Event) bool {
	if viewer == nil {
		return false
	}
	return viewer.IsAdmin() || viewer.UserID == event.OrganizerID
}

func normalizePage(page Page) Page {
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Limit < 1 {
		page.Limit = DefaultPageSize
	}
	if page.Limit > MaxPageSize {
		page.Limit = MaxPageSize
	}
	return page
}
