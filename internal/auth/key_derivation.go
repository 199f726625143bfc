package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes (HMAC-SHA256).
	DerivedKeyLength = 32

	purposeOAuthState = "eventdesk-oauth-state-v1"
)

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives an independent 32-byte key from masterSecret with
// HKDF-SHA256, using purpose as the info parameter.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	derivedKey := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, err
	}
	return derivedKey, nil
}

// DeriveOAuthStateKey derives the key that signs the OAuth state cookie.
func DeriveOAuthStateKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeOAuthState)
}

// SignValue appends an HMAC of value, so the result can round-trip through
// a cookie without being forged.
func SignValue(key []byte, value string) string {
	return value + "." + base64.RawURLEncoding.EncodeToString(mac(key, value))
}

// VerifySignedValue returns the original value when signed carries a valid MAC.
func VerifySignedValue(key []byte, signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, mac(key, value)) {
		return "", false
	}
	return value, true
}

func mac(key []byte, value string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return h.Sum(nil)
}
