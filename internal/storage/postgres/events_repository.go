package postgres

import (
	"context"
	"time"

	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/fault"
	"github.com/jackc/pgx/v5"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	pool *connPool
	tx   pgx.Tx
}

// eventSelect projects an event with its organizer, venue and seated count.
const eventSelect = `
SELECT e.id, e.title, e.description, e.type, e.starts_at, e.ends_at, e.capacity,
       e.registration_deadline, e.status, e.price::float8, e.organizer_id, e.venue_id,
       e.created_at, e.updated_at,
       u.first_name, u.last_name, u.profile_image,
       v.name, v.address, v.city, v.capacity,
       (SELECT count(*) FROM participations p
         WHERE p.event_id = e.id AND p.status IN ('registered', 'attended')) AS registered_count
  FROM events e
  JOIN users u ON u.id = e.organizer_id
  LEFT JOIN venues v ON v.id = e.venue_id`

type eventRow struct {
	event         events.Event
	status        string
	orgFirstName  string
	orgLastName   string
	orgImage      *string
	venueName     *string
	venueAddress  *string
	venueCity     *string
	venueCapacity *int
}

func (row *eventRow) targets() []any {
	e := &row.event
	return []any{
		&e.ID, &e.Title, &e.Description, &e.Type, &e.StartsAt, &e.EndsAt, &e.Capacity,
		&e.RegistrationDeadline, &row.status, &e.Price, &e.OrganizerID, &e.VenueID,
		&e.CreatedAt, &e.UpdatedAt,
		&row.orgFirstName, &row.orgLastName, &row.orgImage,
		&row.venueName, &row.venueAddress, &row.venueCity, &row.venueCapacity,
		&e.RegisteredCount,
	}
}

func (row *eventRow) build() events.Event {
	e := row.event
	e.Status = events.Status(row.status)
	name := row.orgFirstName
	if row.orgLastName != "" {
		name = name + " " + row.orgLastName
	}
	e.Organizer = &events.Organizer{ID: e.OrganizerID, Name: name, ProfileImage: derefString(row.orgImage)}
	if e.VenueID != nil {
		venue := &events.Venue{ID: *e.VenueID, Name: derefString(row.venueName), Address: derefString(row.venueAddress), City: derefString(row.venueCity)}
		if row.venueCapacity != nil {
			venue.Capacity = *row.venueCapacity
		}
		e.Venue = venue
	}
	return e
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (events.Event, error) {
	var id string
	err := pick(r.pool, r.tx).QueryRow(ctx, `
INSERT INTO events (title, description, type, starts_at, ends_at, capacity, registration_deadline, price, organizer_id, venue_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		params.Title, params.Description, params.Type, params.StartsAt, params.EndsAt, params.Capacity,
		params.RegistrationDeadline, params.Price, params.OrganizerID, params.VenueID,
	).Scan(&id)
	if err != nil {
		switch pgErrorCode(err) {
		case codeForeignKeyViolation:
			if constraintName(err) == "events_venue_id_fkey" {
				return events.Event{}, events.ErrVenueNotFound
			}
		case codeCheckViolation:
			return events.Event{}, fault.Validation("", "event violates constraint "+constraintName(err))
		case codeInvalidTextEncoding:
			return events.Event{}, events.ErrVenueNotFound
		}
		return events.Event{}, fault.Store("create event", err)
	}
	return r.GetByID(ctx, id)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (events.Event, error) {
	var row eventRow
	err := pick(r.pool, r.tx).QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id).Scan(row.targets()...)
	if err != nil {
		if isMissingRow(err) {
			return events.Event{}, events.ErrEventNotFound
		}
		return events.Event{}, fault.Store("get event", err)
	}
	return row.build(), nil
}

func (r *EventRepository) TransitionStatus(ctx context.Context, id string, from []events.Status, next events.Status) (events.Event, error) {
	allowed := make([]string, len(from))
	for i, status := range from {
		allowed[i] = string(status)
	}

	tag, err := pick(r.pool, r.tx).Exec(ctx, `
UPDATE events SET status = $3, updated_at = now()
 WHERE id = $1 AND status = ANY($2::text[])`, id, allowed, string(next))
	if err != nil {
		if isMissingRow(err) {
			return events.Event{}, events.ErrEventNotFound
		}
		return events.Event{}, fault.Store("update event status", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return events.Event{}, err
		}
		return events.Event{}, events.ErrInvalidTransition
	}
	return r.GetByID(ctx, id)
}

const publishedFilter = `
 WHERE e.status = 'published'
   AND ($1 = '' OR e.title ILIKE '%' || $1 || '%' OR e.description ILIKE '%' || $1 || '%')
   AND ($2 = '' OR e.type = $2)`

func (r *EventRepository) ListPublished(ctx context.Context, filters events.Filters, page events.Page) ([]events.Event, error) {
	rows, err := pick(r.pool, r.tx).Query(ctx, eventSelect+publishedFilter+`
 ORDER BY e.starts_at ASC, e.id ASC
 LIMIT $3 OFFSET $4`,
		escapeLike(filters.Search), filters.Type, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, fault.Store("list published events", err)
	}
	return collectEvents(rows, "list published events")
}

func (r *EventRepository) CountPublished(ctx context.Context, filters events.Filters) (int, error) {
	var total int
	err := pick(r.pool, r.tx).QueryRow(ctx, `SELECT count(*) FROM events e`+publishedFilter,
		escapeLike(filters.Search), filters.Type,
	).Scan(&total)
	if err != nil {
		return 0, fault.Store("count published events", err)
	}
	return total, nil
}

func (r *EventRepository) ListByOrganizer(ctx context.Context, organizerID string, page events.Page) ([]events.Event, int, error) {
	q := pick(r.pool, r.tx)

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM events WHERE organizer_id = $1`, organizerID).Scan(&total); err != nil {
		return nil, 0, fault.Store("count organizer events", err)
	}

	rows, err := q.Query(ctx, eventSelect+`
 WHERE e.organizer_id = $1
 ORDER BY e.starts_at ASC, e.id ASC
 LIMIT $2 OFFSET $3`, organizerID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fault.Store("list organizer events", err)
	}
	items, err := collectEvents(rows, "list organizer events")
	return items, total, err
}

func (r *EventRepository) ListJoined(ctx context.Context, userID string, page events.Page) ([]events.Joined, int, error) {
	q := pick(r.pool, r.tx)

	var total int
	err := q.QueryRow(ctx, `
SELECT count(*) FROM participations WHERE user_id = $1 AND status <> 'cancelled'`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fault.Store("count joined events", err)
	}

	rows, err := q.Query(ctx, `
WITH joined AS (
    SELECT id AS participation_id, event_id, status AS participation_status, registered_at
      FROM participations
     WHERE user_id = $1 AND status <> 'cancelled'
)
SELECT ev.*, j.participation_id, j.participation_status, j.registered_at
  FROM joined j
  JOIN (`+eventSelect+`) ev ON ev.id = j.event_id
 ORDER BY ev.starts_at ASC, ev.id ASC
 LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fault.Store("list joined events", err)
	}
	defer rows.Close()

	items := []events.Joined{}
	for rows.Next() {
		var (
			row          eventRow
			joined       events.Joined
			registeredAt time.Time
		)
		targets := append(row.targets(), &joined.ParticipationID, &joined.ParticipationStatus, &registeredAt)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fault.Store("scan joined event", err)
		}
		joined.Event = row.build()
		joined.RegisteredAt = registeredAt
		items = append(items, joined)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fault.Store("list joined events", err)
	}
	return items, total, nil
}

func collectEvents(rows pgx.Rows, op string) ([]events.Event, error) {
	defer rows.Close()
	items := []events.Event{}
	for rows.Next() {
		var row eventRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, fault.Store(op, err)
		}
		items = append(items, row.build())
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Store(op, err)
	}
	return items, nil
}
