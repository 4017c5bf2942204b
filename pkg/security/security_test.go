package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, VerifyPassword("s3cret-pass", hash))
	assert.False(t, VerifyPassword("wrong", hash))
	assert.False(t, VerifyPassword("s3cret-pass", "not-a-hash"))
}

func TestGeneratePassword(t *testing.T) {
	pw, err := GeneratePassword(0)
	require.NoError(t, err)
	assert.Len(t, pw, DefaultPasswordLength)
	for _, r := range pw {
		assert.True(t, strings.ContainsRune(passwordAlphabet, r), "unexpected rune %q", r)
	}

	long, err := GeneratePassword(40)
	require.NoError(t, err)
	assert.Len(t, long, 40)
	assert.NotEqual(t, pw, long[:12])
}

func TestDomainSafe(t *testing.T) {
	cases := map[string]string{
		"Test Company Name!":  "test-company-name",
		"  Fiber -- Net  ":    "fiber-net",
		"ACME_Broadband.io":   "acmebroadbandio",
		"---":                 "",
		"Speedy   Links 2024": "speedy-links-2024",
	}
	for in, want := range cases {
		assert.Equal(t, want, DomainSafe(in), in)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "********cdef", MaskSensitive("23456789cdef", 4))
	assert.Equal(t, "***", MaskSensitive("abc", 4))
	assert.Equal(t, "****", MaskSensitive("abcd", 4))
	assert.Equal(t, "*2345", MaskSensitive("12345", DefaultVisibleChars))
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("master-key")
	require.NoError(t, err)

	sealed, err := s.Seal("snmp-public")
	require.NoError(t, err)
	assert.NotEqual(t, "snmp-public", sealed)

	again, err := s.Seal("snmp-public")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "snmp-public", plain)

	empty, err := s.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	other, err := NewSealer("other-key")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = NewSealer("")
	assert.Error(t, err)
}
