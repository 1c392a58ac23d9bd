package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// Session drives one outbound OAuth flow against a provider. Secrets are
// decrypted by the caller before constructing the session.
type Session struct {
	Config     *oauth2.Config
	HTTPClient *http.Client

	// UserEndpoint and IDAttribute come from the OAuth config; for OIDC
	// providers the userinfo endpoint is derived from the issuer.
	UserEndpoint string
	IDAttribute  string
}

// OAuth2Config builds the x/oauth2 config for a plain OAuth provider.
func (c *OAuthConfig) OAuth2Config(clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthorizationEndpoint,
			TokenURL: c.TokenEndpoint,
		},
	}
}

// OAuth2Config builds the x/oauth2 config for an OIDC provider using the
// conventional issuer-relative endpoints.
func (c *OIDCConfig) OAuth2Config(clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.Issuer + "/authorize",
			TokenURL: c.Issuer + "/oauth/token",
		},
	}
}

// ExchangeCode redeems an authorization code, sending the PKCE verifier
// when present. Provider rejections (4xx) surface as UNAUTHENTICATED,
// provider outages as UNAVAILABLE; the context deadline is honoured by the
// underlying HTTP client.
func (s *Session) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	if s.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
	}
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}
	token, err := s.Config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return token, nil
}

func classifyExchangeError(err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := retrieveErr.Response.StatusCode
		if status >= 400 && status < 500 {
			return apperr.ThrowUnauthenticated(err, "IDP-100", "token exchange rejected")
		}
		return apperr.ThrowUnavailable(err, "IDP-101", "token endpoint unavailable")
	}
	return apperr.ThrowUnavailable(err, "IDP-102", "token exchange failed")
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.ThrowDeadlineExceeded(err, "IDP-103", "provider call timed out")
	case errors.Is(err, context.Canceled):
		return apperr.ThrowDeadlineExceeded(err, "IDP-104", "provider call cancelled")
	}
	return nil
}

// FetchUserInfo retrieves the raw userinfo claims with the access token.
func (s *Session) FetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.UserEndpoint, nil)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "IDP-110", "build userinfo request")
	}
	token.SetAuthHeader(req)

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := contextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperr.ThrowUnavailable(err, "IDP-111", "userinfo endpoint unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apperr.ThrowUnauthenticated(nil, "IDP-112", "userinfo request rejected")
	default:
		return nil, apperr.ThrowUnavailable(nil, "IDP-113", "userinfo endpoint unavailable")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.ThrowUnavailable(err, "IDP-114", "read userinfo response")
	}
	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, apperr.ThrowInternal(err, "IDP-115", "decode userinfo response")
	}
	return claims, nil
}

// NormalizeClaims maps raw provider claims onto the external user shape.
// idAttribute overrides the standard "sub" lookup for plain OAuth
// providers.
func NormalizeClaims(idpID string, claims map[string]any, idAttribute string) (*domain.ExternalUser, error) {
	idClaim := idAttribute
	if idClaim == "" {
		idClaim = "sub"
	}
	externalID := claimString(claims, idClaim)
	if externalID == "" {
		return nil, apperr.ThrowInvalidArgumentf(nil, "IDP-120", "claim %s missing from provider response", idClaim)
	}

	user := &domain.ExternalUser{
		IDPConfigID:    idpID,
		ExternalUserID: externalID,
		Email:          claimString(claims, "email"),
		Username:       claimString(claims, "preferred_username"),
		FirstName:      claimString(claims, "given_name"),
		LastName:       claimString(claims, "family_name"),
		DisplayName:    claimString(claims, "name"),
		AvatarURL:      claimString(claims, "picture"),
		Locale:         claimString(claims, "locale"),
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		user.EmailVerified = verified
	}
	if user.Username == "" {
		user.Username = user.Email
	}
	return user, nil
}

func claimString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return value
}

// ValidateIDTokenClaims checks issuer, audience, expiry and nonce of an ID
// token obtained directly from the token endpoint over TLS; the transport
// authenticates the issuer, so only the claims are verified here.
func ValidateIDTokenClaims(idToken, issuer, clientID, nonce string) (jwt.MapClaims, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, apperr.ThrowUnauthenticated(err, "IDP-130", "malformed id token")
	}

	iss, err := claims.GetIssuer()
	if err != nil || iss != issuer {
		return nil, apperr.ThrowUnauthenticated(nil, "IDP-131", "id token issuer mismatch")
	}
	audience, err := claims.GetAudience()
	if err != nil || !containsAudience(audience, clientID) {
		return nil, apperr.ThrowUnauthenticated(nil, "IDP-132", "id token audience mismatch")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Before(time.Now()) {
		return nil, apperr.ThrowUnauthenticated(nil, "IDP-133", "id token expired")
	}
	if nonce != "" {
		if got := claimString(claims, "nonce"); got != nonce {
			return nil, apperr.ThrowUnauthenticated(nil, "IDP-134",
				fmt.Sprintf("id token nonce mismatch, got %q", got))
		}
	}
	return claims, nil
}

func containsAudience(audience jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audience {
		if aud == clientID {
			return true
		}
	}
	return false
}
