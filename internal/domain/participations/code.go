package participations

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/eventdesk/server/internal/domain/ids"
)

// Code is the content of a ticket's scannable check-in code.
type Code struct {
	ParticipantID string `json:"participantId"`
	EventID       string `json:"eventId"`
}

// Encode renders the check-in payload for a participant of an event.
func Encode(participantID, eventID string) string {
	raw, _ := json.Marshal(Code{ParticipantID: participantID, EventID: eventID})
	return string(raw)
}

// Decode parses a scanned payload. Scanners that cannot carry braces send the
// JSON base64url encoded; both forms are accepted. Anything that does not
// yield two well-formed identifiers is ErrMalformedCode.
func Decode(payload string) (Code, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Code{}, ErrMalformedCode
	}

	raw := []byte(payload)
	if !strings.HasPrefix(payload, "{") {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return Code{}, ErrMalformedCode
		}
		raw = decoded
	}

	var code Code
	if err := json.Unmarshal(raw, &code); err != nil {
		return Code{}, ErrMalformedCode
	}

	participantID, err := ids.NormalizeUUID(code.ParticipantID)
	if err != nil {
		return Code{}, ErrMalformedCode
	}
	eventID, err := ids.NormalizeUUID(code.EventID)
	if err != nil {
		return Code{}, ErrMalformedCode
	}
	return Code{ParticipantID: participantID, EventID: eventID}, nil
}
