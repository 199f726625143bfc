// Package audit records privileged actions: event lifecycle changes,
// check-ins and roster reads.
package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one audited action.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	ActorID      string            `json:"actor_id"`
	ActorRole    string            `json:"actor_role,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address"`
	Status       string            `json:"status"` // "success" or "failure"
	HTTPStatus   int               `json:"http_status,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Actor reports who is making the request, if anyone.
type Actor func(ctx context.Context) (id, role string, ok bool)

// Logger writes audit entries as structured log lines.
type Logger struct {
	out       zerolog.Logger
	actor     Actor
	requestID func(ctx context.Context) string
}

// NewLogger tags every entry with component=audit. actor and requestID
// may be nil.
func NewLogger(logger zerolog.Logger, actor Actor, requestID func(context.Context) string) *Logger {
	return &Logger{
		out:       logger.With().Str("component", "audit").Logger(),
		actor:     actor,
		requestID: requestID,
	}
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ActorID == "" {
		entry.ActorID = "anonymous"
	}

	event := l.out.Info()
	if entry.Status == StatusFailure {
		event = l.out.Warn()
	}
	event.Interface("audit", entry).Msg(entry.Action)
}

// Middleware audits every request to the wrapped route as action. The
// route's {id} path value becomes the resource ID. Mount it inside the
// auth gate so the actor is known.
func (l *Logger) Middleware(action, resourceType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			entry := Entry{
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   r.PathValue("id"),
				IPAddress:    clientIP(r),
				Status:       StatusSuccess,
				HTTPStatus:   status,
			}
			if status >= http.StatusBadRequest {
				entry.Status = StatusFailure
			}
			if l.actor != nil {
				if id, role, ok := l.actor(r.Context()); ok {
					entry.ActorID, entry.ActorRole = id, role
				}
			}
			if l.requestID != nil {
				entry.RequestID = l.requestID(r.Context())
			}
			l.Log(entry)
		})
	}
}

// clientIP is the connection's peer. Forwarding headers are ignored here;
// the request logger already records them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
