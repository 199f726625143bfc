package postgres

import (
	"context"
	"time"

	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/domain/participations"
	"github.com/eventdesk/server/internal/fault"
	"github.com/eventdesk/server/internal/metrics"
	"github.com/jackc/pgx/v5"
)

var _ participations.Repository = (*ParticipationRepository)(nil)

type ParticipationRepository struct {
	pool *connPool
	tx   pgx.Tx
}

func (r *ParticipationRepository) WithTx(ctx context.Context, fn func(participations.Repository) error) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("participation_tx", start, err) }()

	return withTx(ctx, r.pool, r.tx, func(tx pgx.Tx) error {
		return fn(&ParticipationRepository{pool: r.pool, tx: tx})
	})
}

const seatSelect = `
SELECT id, title, organizer_id, status, capacity, starts_at, registration_deadline
  FROM events
 WHERE id = $1`

func (r *ParticipationRepository) LockEvent(ctx context.Context, eventID string) (participations.Seat, error) {
	return r.seat(ctx, seatSelect+` FOR UPDATE`, eventID)
}

func (r *ParticipationRepository) GetEvent(ctx context.Context, eventID string) (participations.Seat, error) {
	return r.seat(ctx, seatSelect, eventID)
}

func (r *ParticipationRepository) seat(ctx context.Context, query, eventID string) (participations.Seat, error) {
	var (
		seat   participations.Seat
		status string
	)
	err := pick(r.pool, r.tx).QueryRow(ctx, query, eventID).Scan(
		&seat.EventID, &seat.Title, &seat.OrganizerID, &status, &seat.Capacity, &seat.StartsAt, &seat.RegistrationDeadline,
	)
	if err != nil {
		if isMissingRow(err) {
			return participations.Seat{}, participations.ErrEventNotFound
		}
		return participations.Seat{}, fault.Store("load event seat", err)
	}
	seat.Status = events.Status(status)
	return seat, nil
}

func (r *ParticipationRepository) CountSeated(ctx context.Context, eventID string) (int, error) {
	var n int
	err := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT count(*) FROM participations
 WHERE event_id = $1 AND status IN ('registered', 'attended')`, eventID).Scan(&n)
	if err != nil {
		return 0, fault.Store("count seated participants", err)
	}
	return n, nil
}

const participationColumns = `p.id, p.user_id, p.event_id, p.status, p.registered_at, p.checked_in_at, p.rating, p.feedback`

type participationRow struct {
	p        participations.Participation
	status   string
	rating   *int16
	feedback *string
}

func (row *participationRow) targets() []any {
	return []any{&row.p.ID, &row.p.UserID, &row.p.EventID, &row.status, &row.p.RegisteredAt, &row.p.CheckedInAt, &row.rating, &row.feedback}
}

func (row *participationRow) build() participations.Participation {
	p := row.p
	p.Status = participations.Status(row.status)
	if row.rating != nil {
		rating := int(*row.rating)
		p.Rating = &rating
	}
	p.Feedback = derefString(row.feedback)
	return p
}

func (r *ParticipationRepository) FindActive(ctx context.Context, userID, eventID string) (participations.Participation, error) {
	var row participationRow
	err := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT `+participationColumns+`
  FROM participations p
 WHERE p.user_id = $1 AND p.event_id = $2 AND p.status <> 'cancelled'`, userID, eventID).Scan(row.targets()...)
	if err != nil {
		if isMissingRow(err) {
			return participations.Participation{}, participations.ErrNotRegistered
		}
		return participations.Participation{}, fault.Store("find participation", err)
	}
	return row.build(), nil
}

func (r *ParticipationRepository) Create(ctx context.Context, userID, eventID string, at time.Time) (participations.Participation, error) {
	var row participationRow
	err := pick(r.pool, r.tx).QueryRow(ctx, `
INSERT INTO participations AS p (user_id, event_id, status, registered_at)
VALUES ($1, $2, 'registered', $3)
RETURNING `+participationColumns, userID, eventID, at).Scan(row.targets()...)
	if err != nil {
		switch pgErrorCode(err) {
		case codeUniqueViolation:
			return participations.Participation{}, participations.ErrAlreadyRegistered
		case codeForeignKeyViolation, codeInvalidTextEncoding:
			return participations.Participation{}, participations.ErrEventNotFound
		}
		return participations.Participation{}, fault.Store("create participation", err)
	}
	return row.build(), nil
}

func (r *ParticipationRepository) Cancel(ctx context.Context, participationID string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `
UPDATE participations SET status = 'cancelled', cancelled_at = now(), updated_at = now()
 WHERE id = $1 AND status = 'registered'`, participationID)
	if err != nil {
		return fault.Store("cancel participation", err)
	}
	if tag.RowsAffected() == 0 {
		return participations.ErrNotRegistered
	}
	return nil
}

const attendeeSelect = `
SELECT ` + participationColumns + `, u.first_name, u.last_name, u.email, u.profile_image
  FROM participations p
  JOIN users u ON u.id = p.user_id`

func scanAttendee(row pgx.Row) (participations.Attendee, error) {
	var (
		pr    participationRow
		a     participations.Attendee
		image *string
	)
	targets := append(pr.targets(), &a.FirstName, &a.LastName, &a.Email, &image)
	if err := row.Scan(targets...); err != nil {
		return participations.Attendee{}, err
	}
	a.Participation = pr.build()
	a.ProfileImage = derefString(image)
	return a, nil
}

func (r *ParticipationRepository) FindForCheckIn(ctx context.Context, userID, eventID string) (participations.Attendee, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, attendeeSelect+`
 WHERE p.user_id = $1 AND p.event_id = $2 AND p.status IN ('registered', 'attended')`, userID, eventID)
	attendee, err := scanAttendee(row)
	if err != nil {
		if isMissingRow(err) {
			return participations.Attendee{}, participations.ErrParticipantNotFound
		}
		return participations.Attendee{}, fault.Store("find participant for check-in", err)
	}
	return attendee, nil
}

func (r *ParticipationRepository) MarkAttended(ctx context.Context, participationID string, at time.Time) (bool, error) {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `
UPDATE participations SET status = 'attended', checked_in_at = $2, updated_at = now()
 WHERE id = $1 AND status = 'registered'`, participationID, at)
	if err != nil {
		return false, fault.Store("mark attended", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ParticipationRepository) GetAttendee(ctx context.Context, participationID string) (participations.Attendee, error) {
	attendee, err := scanAttendee(pick(r.pool, r.tx).QueryRow(ctx, attendeeSelect+` WHERE p.id = $1`, participationID))
	if err != nil {
		if isMissingRow(err) {
			return participations.Attendee{}, participations.ErrParticipantNotFound
		}
		return participations.Attendee{}, fault.Store("get attendee", err)
	}
	return attendee, nil
}

func (r *ParticipationRepository) ListAttendees(ctx context.Context, eventID string) ([]participations.Attendee, error) {
	rows, err := pick(r.pool, r.tx).Query(ctx, attendeeSelect+`
 WHERE p.event_id = $1
 ORDER BY p.registered_at ASC, p.id ASC`, eventID)
	if err != nil {
		return nil, fault.Store("list attendees", err)
	}
	defer rows.Close()

	attendees := []participations.Attendee{}
	for rows.Next() {
		attendee, err := scanAttendee(rows)
		if err != nil {
			return nil, fault.Store("scan attendee", err)
		}
		attendees = append(attendees, attendee)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Store("list attendees", err)
	}
	return attendees, nil
}
