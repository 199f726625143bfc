package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/domain/participations"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newParticipationService(repo *Repository) *participations.Service {
	return participations.NewService(repo.Participations(), nil, zerolog.Nop())
}

func TestParticipations_JoinFillsCapacity(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	event := insertEvent(t, repo, organizer.ID, "Tiny", time.Now().Add(48*time.Hour), 2, events.StatusPublished)
	svc := newParticipationService(repo)

	a := insertUser(t, repo, "a@example.com", auth.RoleParticipant)
	b := insertUser(t, repo, "b@example.com", auth.RoleParticipant)
	c := insertUser(t, repo, "c@example.com", auth.RoleParticipant)

	_, err := svc.Join(ctx, event.ID, a)
	require.NoError(t, err)
	_, err = svc.Join(ctx, event.ID, a)
	require.ErrorIs(t, err, participations.ErrAlreadyRegistered)
	_, err = svc.Join(ctx, event.ID, b)
	require.NoError(t, err)
	_, err = svc.Join(ctx, event.ID, c)
	require.ErrorIs(t, err, participations.ErrEventFull)

	reloaded, err := repo.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.RegisteredCount)

	// Leaving frees the seat for the next participant.
	require.NoError(t, svc.Leave(ctx, event.ID, a.ID))
	_, err = svc.Join(ctx, event.ID, c)
	require.NoError(t, err)

	// Rejoining after a cancellation creates a fresh row next to the old one.
	_, err = svc.Join(ctx, event.ID, a)
	require.ErrorIs(t, err, participations.ErrEventFull)
}

func TestParticipations_JoinRejectsUnpublished(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	member := insertUser(t, repo, "m@example.com", auth.RoleParticipant)
	draft := insertEvent(t, repo, organizer.ID, "Draft", time.Now().Add(48*time.Hour), 5, events.StatusDraft)
	svc := newParticipationService(repo)

	_, err := svc.Join(ctx, draft.ID, member)
	require.ErrorIs(t, err, participations.ErrEventNotFound)

	_, err = svc.Join(ctx, "00000000-0000-0000-0000-000000000000", member)
	require.ErrorIs(t, err, participations.ErrEventNotFound)

	_, err = svc.Join(ctx, "garbage", member)
	require.ErrorIs(t, err, participations.ErrEventNotFound)
}

func TestParticipations_ConcurrentJoinsRespectCapacity(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	const capacity = 3
	event := insertEvent(t, repo, organizer.ID, "Hot ticket", time.Now().Add(48*time.Hour), capacity, events.StatusPublished)
	svc := newParticipationService(repo)

	members := make([]users.User, 12)
	for i := range members {
		members[i] = insertUser(t, repo, fmt.Sprintf("fan%d@example.com", i), auth.RoleParticipant)
	}

	var (
		wg      sync.WaitGroup
		joined  atomic.Int64
		full    atomic.Int64
		unknown atomic.Int64
	)
	for _, member := range members {
		wg.Add(1)
		go func(member users.User) {
			defer wg.Done()
			_, err := svc.Join(ctx, event.ID, member)
			switch {
			case err == nil:
				joined.Add(1)
			case errors.Is(err, participations.ErrEventFull):
				full.Add(1)
			default:
				unknown.Add(1)
			}
		}(member)
	}
	wg.Wait()

	require.Equal(t, int64(capacity), joined.Load())
	require.Equal(t, int64(len(members)-capacity), full.Load())
	require.Zero(t, unknown.Load())

	seated, err := repo.Participations().CountSeated(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, capacity, seated)
}

func TestParticipations_ActiveIndexRejectsDuplicates(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	member := insertUser(t, repo, "m@example.com", auth.RoleParticipant)
	event := insertEvent(t, repo, organizer.ID, "Once", time.Now().Add(48*time.Hour), 5, events.StatusPublished)

	parts := repo.Participations()
	first, err := parts.Create(ctx, member.ID, event.ID, time.Now())
	require.NoError(t, err)
	_, err = parts.Create(ctx, member.ID, event.ID, time.Now())
	require.ErrorIs(t, err, participations.ErrAlreadyRegistered)

	require.NoError(t, parts.Cancel(ctx, first.ID))
	require.ErrorIs(t, parts.Cancel(ctx, first.ID), participations.ErrNotRegistered)

	_, err = parts.Create(ctx, member.ID, event.ID, time.Now())
	require.NoError(t, err)
}

func TestParticipations_CheckInIsIdempotent(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	member := insertUser(t, repo, "m@example.com", auth.RoleParticipant)
	event := insertEvent(t, repo, organizer.ID, "Doors", time.Now().Add(48*time.Hour), 5, events.StatusPublished)
	svc := newParticipationService(repo)

	_, err := svc.Join(ctx, event.ID, member)
	require.NoError(t, err)
	ticket, err := svc.Ticket(ctx, event.ID, member.ID)
	require.NoError(t, err)

	attendee, err := svc.CheckIn(ctx, ticket.Code)
	require.NoError(t, err)
	require.Equal(t, participations.StatusAttended, attendee.Status)
	require.NotNil(t, attendee.CheckedInAt)
	require.Equal(t, member.Email, attendee.Email)
	firstCheckIn := *attendee.CheckedInAt

	again, err := svc.CheckIn(ctx, ticket.Code)
	require.ErrorIs(t, err, participations.ErrAlreadyCheckedIn)
	require.Equal(t, participations.StatusAttended, again.Status)
	require.True(t, firstCheckIn.Equal(*again.CheckedInAt))

	// Attended participants still occupy a seat and cannot leave.
	seated, err := repo.Participations().CountSeated(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 1, seated)
	require.ErrorIs(t, svc.Leave(ctx, event.ID, member.ID), participations.ErrAlreadyCheckedIn)
}

func TestParticipations_CheckInCancelledParticipant(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	member := insertUser(t, repo, "m@example.com", auth.RoleParticipant)
	event := insertEvent(t, repo, organizer.ID, "Gone", time.Now().Add(48*time.Hour), 5, events.StatusPublished)
	svc := newParticipationService(repo)

	_, err := svc.Join(ctx, event.ID, member)
	require.NoError(t, err)
	require.NoError(t, svc.Leave(ctx, event.ID, member.ID))

	_, err = svc.CheckIn(ctx, participations.Encode(member.ID, event.ID))
	require.ErrorIs(t, err, participations.ErrParticipantNotFound)
}

func TestParticipations_Roster(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	organizer := insertUser(t, repo, "org@example.com", auth.RoleOrganizer)
	stranger := insertUser(t, repo, "x@example.com", auth.RoleOrganizer)
	event := insertEvent(t, repo, organizer.ID, "Roster", time.Now().Add(48*time.Hour), 5, events.StatusPublished)
	svc := newParticipationService(repo)

	for _, email := range []string{"first@example.com", "second@example.com"} {
		_, err := svc.Join(ctx, event.ID, insertUser(t, repo, email, auth.RoleParticipant))
		require.NoError(t, err)
	}

	roster, err := svc.Roster(ctx, auth.Principal{UserID: organizer.ID, Role: auth.RoleOrganizer}, event.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "first@example.com", roster[0].Email)

	_, err = svc.Roster(ctx, auth.Principal{UserID: stranger.ID, Role: auth.RoleOrganizer}, event.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)
}
