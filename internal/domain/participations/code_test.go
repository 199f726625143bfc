package participations

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	participantID = "0b6f1a57-3c55-4c8e-9d47-2f2c0d3a9b10"
	eventID       = "4e1d9d2e-8f0a-4a43-bb8a-5a2c61f0c7de"
)

func TestEncodeDecode(t *testing.T) {
	payload := Encode(participantID, eventID)
	require.JSONEq(t, `{"participantId":"`+participantID+`","eventId":"`+eventID+`"}`, payload)

	code, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, Code{ParticipantID: participantID, EventID: eventID}, code)
}

func TestDecodeBase64Payload(t *testing.T) {
	raw := Encode(participantID, eventID)

	code, err := Decode(base64.RawURLEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	require.Equal(t, eventID, code.EventID)

	code, err = Decode(base64.URLEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	require.Equal(t, participantID, code.ParticipantID)
}

func TestDecodeNormalizesCase(t *testing.T) {
	code, err := Decode(Encode(strings.ToUpper(participantID), eventID))
	require.NoError(t, err)
	require.Equal(t, participantID, code.ParticipantID)
}

func TestDecodeMalformed(t *testing.T) {
	for _, payload := range []string{"", "   ", "{", "!!!", `{"participantId":""}`, `{"participantId":"x","eventId":"y"}`} {
		_, err := Decode(payload)
		require.ErrorIs(t, err, ErrMalformedCode, payload)
	}
}
