package command_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/command"
)

func TestAuthRequestFlow(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	requestID, _, err := f.AddAuthRequest(f.ctx, &command.AddAuthRequest{
		OrgID:        orgID,
		ClientID:     "client-1",
		RedirectURI:  "https://rp.example.com/callback",
		State:        "rp-state",
		Scope:        []string{"openid", "profile"},
		ResponseType: "code",
	})
	require.NoError(t, err)

	// No code without an authenticated session.
	_, _, err = f.AddAuthRequestCode(f.ctx, requestID)
	assert.True(t, apperr.IsPreconditionFailed(err))

	_, err = f.LinkSessionToAuthRequest(f.ctx, requestID, "session-1", "user-1")
	require.NoError(t, err)

	code, _, err := f.AddAuthRequestCode(f.ctx, requestID)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	_, err = f.SucceedAuthRequest(f.ctx, requestID, "forged-code")
	assert.True(t, apperr.IsUnauthenticated(err))

	_, err = f.SucceedAuthRequest(f.ctx, requestID, code)
	require.NoError(t, err)

	// The code is single use.
	_, err = f.SucceedAuthRequest(f.ctx, requestID, code)
	assert.True(t, apperr.IsPreconditionFailed(err))
	_, err = f.FailAuthRequest(f.ctx, requestID, "late")
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestAuthRequestValidation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.AddAuthRequest(f.ctx, &command.AddAuthRequest{
		RedirectURI: "https://rp.example.com/callback",
	})
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = f.LinkSessionToAuthRequest(f.ctx, "missing", "session-1", "user-1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestPushedAuthRequest(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	requestURI, expiresIn, err := f.CreatePushedAuthRequest(f.ctx, &command.PushedAuthRequest{
		OrgID:               orgID,
		ClientID:            "client-1",
		RedirectURI:         "https://rp.example.com/callback",
		Scope:               []string{"openid"},
		ResponseType:        "code",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(requestURI, "urn:ietf:params:oauth:request_uri:"))
	assert.Equal(t, 90*time.Second, expiresIn)

	// Another client cannot redeem the handle.
	_, _, err = f.ConsumePushedAuthRequest(f.ctx, requestURI, "client-2")
	assert.True(t, apperr.IsUnauthenticated(err))

	requestID, _, err := f.ConsumePushedAuthRequest(f.ctx, requestURI, "client-1")
	require.NoError(t, err)

	// Consumption turned the stored parameters into a live auth request.
	_, err = f.LinkSessionToAuthRequest(f.ctx, requestID, "session-1", "user-1")
	require.NoError(t, err)

	// The handle is single use.
	_, _, err = f.ConsumePushedAuthRequest(f.ctx, requestURI, "client-1")
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestPushedAuthRequestExpiry(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	requestURI, _, err := f.CreatePushedAuthRequest(f.ctx, &command.PushedAuthRequest{
		OrgID:       orgID,
		ClientID:    "client-1",
		RedirectURI: "https://rp.example.com/callback",
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, _, err = f.ConsumePushedAuthRequest(f.ctx, requestURI, "client-1")
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestPushedAuthRequestMalformedURI(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.ConsumePushedAuthRequest(f.ctx, "https://not-a-par-uri", "client-1")
	assert.True(t, apperr.IsInvalidArgument(err))

	_, _, err = f.ConsumePushedAuthRequest(f.ctx, "urn:ietf:params:oauth:request_uri:unknown", "client-1")
	assert.True(t, apperr.IsNotFound(err))
}
