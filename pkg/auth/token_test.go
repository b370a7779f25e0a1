package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, TokenBytes*2)
	assert.NotEqual(t, a, b)
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc  ", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, ok := ParseBearer(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("s3cret", "s3cret"))
	assert.False(t, Match("s3cret", "other"))
	assert.False(t, Match("", ""))
	assert.False(t, Match("anything", ""))
}

func TestCheckRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.ErrorIs(t, CheckRequest(req, ""), ErrDisabled)
	assert.ErrorIs(t, CheckRequest(req, "tok"), ErrMissingCredential)

	req.Header.Set("Authorization", "Bearer wrong")
	assert.ErrorIs(t, CheckRequest(req, "tok"), ErrInvalidCredential)

	req.Header.Set("Authorization", "Bearer tok")
	assert.NoError(t, CheckRequest(req, "tok"))
}
