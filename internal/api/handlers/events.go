package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/eventdesk/server/internal/api/middleware"
	"github.com/eventdesk/server/internal/api/pagination"
	"github.com/eventdesk/server/internal/api/problem"
	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/events"
	"github.com/eventdesk/server/internal/domain/participations"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/metrics"
)

type EventService interface {
	Create(ctx context.Context, actor auth.Principal, input events.CreateInput) (events.Event, error)
	Get(ctx context.Context, id string, viewer *auth.Principal) (events.Event, error)
	Publish(ctx context.Context, actor auth.Principal, id string) (events.Event, error)
	Cancel(ctx context.Context, actor auth.Principal, id string) (events.Event, error)
	Complete(ctx context.Context, actor auth.Principal, id string) (events.Event, error)
	ListPublic(ctx context.Context, filters events.Filters, page events.Page) (events.ListResult[events.Event], error)
	ListByOrganizer(ctx context.Context, actor auth.Principal, page events.Page) (events.ListResult[events.Event], error)
	ListJoined(ctx context.Context, actor auth.Principal, page events.Page) (events.ListResult[events.Joined], error)
}

type RegistrationService interface {
	Join(ctx context.Context, eventID string, member users.User) (participations.Participation, error)
	Leave(ctx context.Context, eventID, userID string) error
	Ticket(ctx context.Context, eventID, userID string) (participations.Ticket, error)
	CheckIn(ctx context.Context, payload string) (participations.Attendee, error)
	Roster(ctx context.Context, actor auth.Principal, eventID string) ([]participations.Attendee, error)
}

type EventsHandler struct {
	events        EventService
	registrations RegistrationService
	env           string
}

func NewEventsHandler(events EventService, registrations RegistrationService, env string) *EventsHandler {
	return &EventsHandler{events: events, registrations: registrations, env: env}
}

// ListPublic handles GET /events/public.
func (h *EventsHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.Parse(r.URL.Query(), events.DefaultPageSize, events.MaxPageSize)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	filters := events.Filters{
		Search: r.URL.Query().Get("search"),
		Type:   r.URL.Query().Get("type"),
	}

	result, err := h.events.ListPublic(r.Context(), filters, toPage(params))
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeList(w, result.Items, params, result.Total)
}

// ListMine handles GET /events/my-events.
func (h *EventsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, params, ok := h.listRequest(w, r)
	if !ok {
		return
	}
	result, err := h.events.ListByOrganizer(r.Context(), actor, toPage(params))
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeList(w, result.Items, params, result.Total)
}

// ListJoined handles GET /events/my-participations.
func (h *EventsHandler) ListJoined(w http.ResponseWriter, r *http.Request) {
	actor, params, ok := h.listRequest(w, r)
	if !ok {
		return
	}
	result, err := h.events.ListJoined(r.Context(), actor, toPage(params))
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeList(w, result.Items, params, result.Total)
}

// Create handles POST /events. New events start as drafts.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var input events.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		problem.Write(w, r, err, h.env)
		return
	}

	event, err := h.events.Create(r.Context(), actor, input)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusCreated, "event created", event)
}

// Get handles GET /events/{id}. Drafts are visible to their organizer and
// admins only.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	var viewer *auth.Principal
	if actor, ok := middleware.CurrentPrincipal(r.Context()); ok {
		viewer = &actor
	}

	event, err := h.events.Get(r.Context(), r.PathValue("id"), viewer)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusOK, "", event)
}

func (h *EventsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.events.Publish, "event published")
}

func (h *EventsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.events.Cancel, "event cancelled")
}

func (h *EventsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.events.Complete, "event completed")
}

type transitionFunc func(ctx context.Context, actor auth.Principal, id string) (events.Event, error)

func (h *EventsHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, message string) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	event, err := fn(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusOK, message, event)
}

// Join handles POST /events/{id}/join.
func (h *EventsHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		problem.Write(w, r, auth.ErrMissingToken, h.env, problem.WithAuthenticated(false))
		return
	}

	participation, err := h.registrations.Join(r.Context(), r.PathValue("id"), user)
	metrics.RecordRegistration(err)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusCreated, "successfully registered for event", participation)
}

// Leave handles DELETE /events/{id}/join.
func (h *EventsHandler) Leave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.registrations.Leave(r.Context(), r.PathValue("id"), actor.UserID); err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusOK, "registration cancelled", nil)
}

// Ticket handles GET /events/{id}/ticket.
func (h *EventsHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	ticket, err := h.registrations.Ticket(r.Context(), r.PathValue("id"), actor.UserID)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusOK, "", ticket)
}

// Participants handles GET /events/{id}/participants.
func (h *EventsHandler) Participants(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	roster, err := h.registrations.Roster(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	if roster == nil {
		roster = []participations.Attendee{}
	}
	writeData(w, http.StatusOK, "", roster)
}

// checkInRequest accepts the scanned code as "code", or as "qrData" in
// either string or object form.
type checkInRequest struct {
	Code   string          `json:"code"`
	QRData json.RawMessage `json:"qrData"`
}

func (req checkInRequest) payload() string {
	if strings.TrimSpace(req.Code) != "" {
		return req.Code
	}
	raw := strings.TrimSpace(string(req.QRData))
	if raw == "" || raw == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(req.QRData, &text); err == nil {
		return text
	}
	return raw
}

type checkInResponse struct {
	Success     bool                     `json:"success"`
	Message     string                   `json:"message"`
	Participant *participations.Attendee `json:"participant"`
}

// CheckIn handles POST /events/check-in. A repeat scan answers 200 with
// success false and the already checked-in participant.
func (h *EventsHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.RecordCheckIn(participations.ErrMalformedCode)
		problem.Write(w, r, err, h.env)
		return
	}

	attendee, err := h.registrations.CheckIn(r.Context(), req.payload())
	metrics.RecordCheckIn(err)
	switch {
	case errors.Is(err, participations.ErrAlreadyCheckedIn):
		writeJSON(w, http.StatusOK, checkInResponse{
			Success:     false,
			Message:     "participant already checked in",
			Participant: &attendee,
		})
	case err != nil:
		problem.Write(w, r, err, h.env)
	default:
		writeJSON(w, http.StatusOK, checkInResponse{
			Success:     true,
			Message:     "check-in successful",
			Participant: &attendee,
		})
	}
}

func (h *EventsHandler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	actor, ok := middleware.CurrentPrincipal(r.Context())
	if !ok {
		problem.Write(w, r, auth.ErrMissingToken, h.env, problem.WithAuthenticated(false))
	}
	return actor, ok
}

func (h *EventsHandler) listRequest(w http.ResponseWriter, r *http.Request) (auth.Principal, pagination.Params, bool) {
	actor, ok := h.principal(w, r)
	if !ok {
		return auth.Principal{}, pagination.Params{}, false
	}
	params, err := pagination.Parse(r.URL.Query(), events.DefaultPageSize, events.MaxPageSize)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return auth.Principal{}, pagination.Params{}, false
	}
	return actor, params, true
}

func toPage(params pagination.Params) events.Page {
	return events.Page{Number: params.Page, Limit: params.Limit}
}

func writeList[T any](w http.ResponseWriter, items []T, params pagination.Params, total int) {
	if items == nil {
		items = []T{}
	}
	meta := pagination.NewMeta(params, total)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Pagination: &meta})
}
