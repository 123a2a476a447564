package sealer

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSealOpen(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal(`{"iban":"FR7630006000011234567890189"}`)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "iban")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"iban":"FR7630006000011234567890189"}`, opened)
}

func TestSeal_UniqueNonce(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	a, err := s.Seal("same")
	require.NoError(t, err)
	b, err := s.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKey(t *testing.T) {
	s1, err := New(testKey())
	require.NoError(t, err)
	s2, err := New(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	_, err = s.Open("!!!")
	assert.Error(t, err)

	_, err = s.Open("YWJj")
	assert.Error(t, err)
}

func TestNew_KeyLength(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}

func TestFromBase64(t *testing.T) {
	s, err := FromBase64(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = FromBase64("not base64 ###")
	assert.Error(t, err)
}

func TestNilSealer(t *testing.T) {
	var s *AESGCMSealer
	_, err := s.Seal("x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.Open("x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEphemeral(t *testing.T) {
	s, err := Ephemeral()
	require.NoError(t, err)

	sealed, err := s.Seal("v")
	require.NoError(t, err)
	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "v", opened)
}
