package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formroom/internal/realtime/models"
	dErrors "formroom/pkg/domain-errors"
)

func newTestVerifier() *Verifier {
	return NewVerifier("test-signing-key", "formroom", "realtime")
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier()

	token, err := v.Issue(models.Identity{
		UserID:     "u-42",
		Role:       "editor",
		Department: "research",
	}, time.Minute)
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", identity.UserID)
	assert.Equal(t, "editor", identity.Role)
	assert.Equal(t, "research", identity.Department)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := newTestVerifier()

	token, err := v.Issue(models.Identity{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeAuthRejected, dErrors.CodeOf(err))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuer := NewVerifier("other-key", "formroom", "realtime")
	token, err := issuer.Issue(models.Identity{UserID: "u-1"}, time.Minute)
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeAuthRejected, dErrors.CodeOf(err))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := newTestVerifier().Verify("not-a-token")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeAuthRejected, dErrors.CodeOf(err))
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	v := newTestVerifier()
	token, err := v.Issue(models.Identity{Role: "viewer"}, time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeAuthRejected, dErrors.CodeOf(err))
}
