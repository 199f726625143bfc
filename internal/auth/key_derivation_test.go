package auth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name         string
		masterSecret []byte
		purpose      string
		wantErr      bool
	}{
		{name: "valid derivation", masterSecret: []byte("this-is-a-secure-master-secret-for-testing"), purpose: "test-purpose-v1"},
		{name: "empty master secret", masterSecret: []byte{}, purpose: "test-purpose-v1", wantErr: true},
		{name: "nil master secret", purpose: "test-purpose-v1", wantErr: true},
		{name: "empty purpose string is allowed", masterSecret: []byte("test-secret")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.masterSecret, tt.purpose)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMasterSecret)
				return
			}
			require.NoError(t, err)
			require.Len(t, key, DerivedKeyLength)
		})
	}
}

func TestDerivedKeysAreIndependentAndDeterministic(t *testing.T) {
	master := []byte("shared-master-secret-for-all-keys")

	a, err := DeriveKey(master, "a")
	require.NoError(t, err)
	b, err := DeriveKey(master, "b")
	require.NoError(t, err)
	again, err := DeriveKey(master, "a")
	require.NoError(t, err)

	if bytes.Equal(a, b) {
		t.Error("keys for different purposes are identical")
	}
	if !bytes.Equal(a, again) {
		t.Error("derivation is not deterministic")
	}

	state, err := DeriveOAuthStateKey(master)
	require.NoError(t, err)
	require.False(t, bytes.Equal(state, master[:DerivedKeyLength]))
}

func TestSignedValueRoundTrip(t *testing.T) {
	key, err := DeriveOAuthStateKey([]byte(testSecret))
	require.NoError(t, err)

	signed := SignValue(key, "state-123")
	value, ok := VerifySignedValue(key, signed)
	require.True(t, ok)
	require.Equal(t, "state-123", value)

	other, err := DeriveKey([]byte(testSecret), "other")
	require.NoError(t, err)
	_, ok = VerifySignedValue(other, signed)
	require.False(t, ok)

	for _, forged := range []string{"", "state-123", ".sig", "state-124" + signed[len("state-123"):], signed + "x"} {
		_, ok := VerifySignedValue(key, forged)
		require.False(t, ok, forged)
	}
}
