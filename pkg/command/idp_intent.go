package command

import (
	"context"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/idgen"
	"github.com/nordlys-id/nordlys/pkg/idp"
	"github.com/nordlys-id/nordlys/pkg/query"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type idpIntentWriteModel struct {
	eventstore.WriteModel

	State         domain.IDPIntentState
	IDPID         string
	StateToken    string
	Nonce         string
	CodeVerifier  *crypto.Value
	ExpiresAt     time.Time
	SuccessURL    string
	FailureURL    string
	AuthRequestID string
}

func newIDPIntentWriteModel(instanceID, ownerID, intentID string) *idpIntentWriteModel {
	return &idpIntentWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   intentID,
			ResourceOwner: ownerID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *idpIntentWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.IDPIntentAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *idpIntentWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.IDPIntentStartedType:
			var payload repository.IDPIntentStartedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.IDPIntentStateStarted
			wm.IDPID = payload.IDPID
			wm.StateToken = payload.State
			wm.Nonce = payload.Nonce
			wm.CodeVerifier = payload.CodeVerifier
			wm.ExpiresAt = payload.ExpiresAt
			wm.SuccessURL = payload.SuccessURL
			wm.FailureURL = payload.FailureURL
			wm.AuthRequestID = payload.AuthRequestID

		case repository.IDPIntentSucceededType:
			wm.State = domain.IDPIntentStateSucceeded
		case repository.IDPIntentFailedType:
			wm.State = domain.IDPIntentStateFailed
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *idpIntentWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.IDPIntentAggregate)
}

// StartIDPIntent is the input for beginning a federated login.
type StartIDPIntent struct {
	IDPID      string
	SuccessURL string
	FailureURL string
	// RedirectURI is the callback endpoint the provider sends the user
	// back to; it becomes part of the authorization URL.
	RedirectURI string
	// AuthRequestID optionally binds the intent to the auth request the
	// login flow is serving; it is carried through to the result.
	AuthRequestID string
}

// StartedIDPIntent returns the correlation material the login UI needs.
// CodeVerifier is the PKCE plaintext; only its encrypted form is stored.
type StartedIDPIntent struct {
	IntentID     string
	StateToken   string
	CodeVerifier string
	Nonce        string
	AuthURL      string
	Details      *domain.ObjectDetails
}

// StartIDPIntent creates a login intent against an OAuth or OIDC provider:
// a fresh state token with 32 bytes of entropy, a PKCE verifier, and for
// OIDC a nonce bound into the authorization request.
func (c *Commands) StartIDPIntent(ctx context.Context, start *StartIDPIntent) (*StartedIDPIntent, error) {
	if err := validators.Required(start.IDPID, "idpId", "INTENT-001"); err != nil {
		return nil, err
	}
	if err := validators.URL(start.SuccessURL, "INTENT-002"); err != nil {
		return nil, err
	}
	if err := validators.URL(start.FailureURL, "INTENT-003"); err != nil {
		return nil, err
	}
	provider, err := c.activeProvider(ctx, start.IDPID)
	if err != nil {
		return nil, err
	}
	if provider.Type != domain.IDPTypeOIDC && provider.Type != domain.IDPTypeOAuth {
		return nil, apperr.ThrowPreconditionFailed(nil, "INTENT-004", "provider does not support the intent flow")
	}

	stateToken, err := idgen.RandomToken(32)
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	encryptedVerifier, err := c.keeper.EncryptString(ctx, verifier)
	if err != nil {
		return nil, err
	}
	var nonce string
	if provider.Type == domain.IDPTypeOIDC {
		nonce, err = idgen.RandomToken(16)
		if err != nil {
			return nil, err
		}
	}

	intentID := c.nextID()
	model := newIDPIntentWriteModel(authz.GetInstance(ctx), provider.ResourceOwner, intentID)
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.IDPIntentStartedType, authz.GetCtxData(ctx).UserID,
			repository.IDPIntentStartedPayload{
				IDPID:         start.IDPID,
				SuccessURL:    start.SuccessURL,
				FailureURL:    start.FailureURL,
				AuthRequestID: start.AuthRequestID,
				State:         stateToken,
				Nonce:         nonce,
				CodeVerifier:  encryptedVerifier,
				ExpiresAt:     c.now().Add(c.intentLifetime),
			}))
	if err != nil {
		return nil, err
	}
	return &StartedIDPIntent{
		IntentID:     intentID,
		StateToken:   stateToken,
		CodeVerifier: verifier,
		Nonce:        nonce,
		AuthURL:      c.authCodeURL(provider, start.RedirectURI, stateToken, verifier, nonce),
		Details:      eventstore.WriteModelToObjectDetails(&model.WriteModel),
	}, nil
}

func (c *Commands) authCodeURL(provider *idpWriteModel, redirectURI, stateToken, verifier, nonce string) string {
	var config *oauth2.Config
	switch provider.Type {
	case domain.IDPTypeOIDC:
		config = provider.provider().OIDC.OAuth2Config("", redirectURI)
	case domain.IDPTypeOAuth:
		config = provider.provider().OAuth.OAuth2Config("", redirectURI)
	default:
		return ""
	}
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	return config.AuthCodeURL(stateToken, opts...)
}

// OAuthCallback carries the parameters the provider appended to the
// callback redirect, plus the redirect URI the exchange must repeat.
type OAuthCallback struct {
	StateToken       string
	Code             string
	RedirectURI      string
	Error            string
	ErrorDescription string
	// ExistingUserID links the external identity to that user instead of
	// provisioning a new one. Set when a signed-in user connects a
	// provider to their account.
	ExistingUserID string
}

// IDPIntentResult is the outcome of a succeeded intent. UserID is empty
// when no local user is linked and provisioning is disallowed.
type IDPIntentResult struct {
	IntentID      string
	UserID        string
	NewUser       bool
	AuthRequestID string
	User          *domain.ExternalUser
	Details       *domain.ObjectDetails
}

// HandleOAuthCallback completes a login intent: it resolves the intent by
// state token, enforces expiry and single use, redeems the code, validates
// the ID token nonce for OIDC, and links or provisions the local user.
// The intent transition is guarded by optimistic concurrency, so a raced
// second callback loses its push.
func (c *Commands) HandleOAuthCallback(ctx context.Context, callback *OAuthCallback) (*IDPIntentResult, error) {
	if err := validators.Required(callback.StateToken, "state", "INTENT-010"); err != nil {
		return nil, err
	}
	if err := c.queries.Trigger(ctx, query.IDPIntentProjectionName); err != nil {
		return nil, err
	}
	row, err := c.queries.IDPIntentByStateToken(ctx, authz.GetInstance(ctx), callback.StateToken)
	if err != nil {
		return nil, err
	}
	intent := newIDPIntentWriteModel(authz.GetInstance(ctx), "", row.ID)
	if err := intent.load(ctx, c.es); err != nil {
		return nil, err
	}
	if intent.State != domain.IDPIntentStateStarted {
		return nil, apperr.ThrowPreconditionFailed(nil, "INTENT-011", "login intent already completed")
	}

	if callback.Error != "" {
		reason := callback.Error
		if callback.ErrorDescription != "" {
			reason += ": " + callback.ErrorDescription
		}
		if failErr := c.failIntent(ctx, intent, reason); failErr != nil {
			return nil, failErr
		}
		return nil, apperr.ThrowUnauthenticated(nil, "INTENT-012", "provider rejected the login").
			WithDetail("reason", reason)
	}
	if c.now().After(intent.ExpiresAt) {
		if failErr := c.failIntent(ctx, intent, "intent expired"); failErr != nil {
			return nil, failErr
		}
		return nil, apperr.ThrowPreconditionFailed(nil, "INTENT-013", "login intent expired")
	}

	provider, err := c.activeProvider(ctx, intent.IDPID)
	if err != nil {
		return nil, err
	}
	externalUser, idToken, accessToken, err := c.completeOAuthFlow(ctx, provider, intent, callback)
	if err != nil {
		if failErr := c.failIntent(ctx, intent, err.Error()); failErr != nil {
			c.logger.Warn("recording failed intent", "err", failErr, "intent_id", intent.AggregateID)
		}
		return nil, err
	}

	var (
		userID string
		isNew  bool
	)
	if callback.ExistingUserID != "" {
		userID, err = c.linkExistingUser(ctx, callback.ExistingUserID, externalUser)
	} else {
		userID, isNew, err = c.linkOrProvisionUser(ctx, provider, externalUser)
	}
	if err != nil {
		return nil, err
	}

	var encryptedAccess *crypto.Value
	if accessToken != "" {
		encryptedAccess, err = c.keeper.EncryptString(ctx, accessToken)
		if err != nil {
			return nil, err
		}
	}
	err = c.pushAppendAndReduce(ctx, intent,
		eventstore.NewCommand(intent.aggregate(), repository.IDPIntentSucceededType, authz.SystemUserID,
			repository.IDPIntentSucceededPayload{
				IDPID:          intent.IDPID,
				ExternalUserID: externalUser.ExternalUserID,
				Username:       externalUser.Username,
				Email:          externalUser.Email,
				EmailVerified:  externalUser.EmailVerified,
				FirstName:      externalUser.FirstName,
				LastName:       externalUser.LastName,
				DisplayName:    externalUser.DisplayName,
				UserID:         userID,
				IDPAccessToken: encryptedAccess,
				IDPIDToken:     idToken,
			}))
	if err != nil {
		return nil, err
	}
	return &IDPIntentResult{
		IntentID:      intent.AggregateID,
		UserID:        userID,
		NewUser:       isNew,
		AuthRequestID: intent.AuthRequestID,
		User:          externalUser,
		Details:       eventstore.WriteModelToObjectDetails(&intent.WriteModel),
	}, nil
}

// FailIDPIntent marks a started intent failed with a reason.
func (c *Commands) FailIDPIntent(ctx context.Context, intentID, reason string) (*domain.ObjectDetails, error) {
	intent := newIDPIntentWriteModel(authz.GetInstance(ctx), "", intentID)
	if err := intent.load(ctx, c.es); err != nil {
		return nil, err
	}
	if intent.State != domain.IDPIntentStateStarted {
		return nil, apperr.ThrowPreconditionFailed(nil, "INTENT-020", "login intent already completed")
	}
	if err := c.failIntent(ctx, intent, reason); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&intent.WriteModel), nil
}

func (c *Commands) failIntent(ctx context.Context, intent *idpIntentWriteModel, reason string) error {
	return c.pushAppendAndReduce(ctx, intent,
		eventstore.NewCommand(intent.aggregate(), repository.IDPIntentFailedType, authz.SystemUserID,
			repository.IDPIntentFailedPayload{Reason: reason}))
}

// completeOAuthFlow exchanges the code and fetches the normalised identity.
func (c *Commands) completeOAuthFlow(ctx context.Context, provider *idpWriteModel, intent *idpIntentWriteModel, callback *OAuthCallback) (user *domain.ExternalUser, idToken, accessToken string, err error) {
	resolved := provider.provider()
	var (
		config       *oauth2.Config
		userEndpoint string
		idAttribute  string
	)
	switch provider.Type {
	case domain.IDPTypeOIDC:
		secret, err := c.decryptIDPSecret(ctx, resolved.OIDC.ClientSecret)
		if err != nil {
			return nil, "", "", err
		}
		config = resolved.OIDC.OAuth2Config(secret, callback.RedirectURI)
		userEndpoint = resolved.OIDC.Issuer + "/userinfo"
	case domain.IDPTypeOAuth:
		secret, err := c.decryptIDPSecret(ctx, resolved.OAuth.ClientSecret)
		if err != nil {
			return nil, "", "", err
		}
		config = resolved.OAuth.OAuth2Config(secret, callback.RedirectURI)
		userEndpoint = resolved.OAuth.UserEndpoint
		idAttribute = resolved.OAuth.IDAttribute
	default:
		return nil, "", "", apperr.ThrowPreconditionFailed(nil, "INTENT-030", "provider does not support the intent flow")
	}

	verifier := ""
	if intent.CodeVerifier != nil {
		verifier, err = c.keeper.DecryptString(ctx, intent.CodeVerifier)
		if err != nil {
			return nil, "", "", err
		}
	}
	session := &idp.Session{
		Config:       config,
		HTTPClient:   c.httpClient,
		UserEndpoint: userEndpoint,
		IDAttribute:  idAttribute,
	}
	token, err := session.ExchangeCode(ctx, callback.Code, verifier)
	if err != nil {
		return nil, "", "", err
	}

	if provider.Type == domain.IDPTypeOIDC {
		idToken, _ = token.Extra("id_token").(string)
		if idToken == "" {
			return nil, "", "", apperr.ThrowUnauthenticated(nil, "INTENT-031", "provider returned no id token")
		}
		if _, err := idp.ValidateIDTokenClaims(idToken, resolved.OIDC.Issuer, resolved.OIDC.ClientID, intent.Nonce); err != nil {
			return nil, "", "", err
		}
	}

	claims, err := session.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, "", "", err
	}
	user, err = idp.NormalizeClaims(intent.IDPID, claims, idAttribute)
	if err != nil {
		return nil, "", "", err
	}
	return user, idToken, token.AccessToken, nil
}

// linkOrProvisionUser resolves the external identity to a local user. An
// already linked identity wins; otherwise a user is auto-provisioned in the
// provider's org when the provider allows creation, picking the first
// available username from the claim, the email local part, or a random
// fallback.
func (c *Commands) linkOrProvisionUser(ctx context.Context, provider *idpWriteModel, externalUser *domain.ExternalUser) (userID string, isNew bool, err error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.queries.Trigger(ctx, query.IDPUserLinkProjectionName); err != nil {
		return "", false, err
	}
	userID, err = c.queries.IDPUserLink(ctx, instanceID, externalUser.IDPConfigID, externalUser.ExternalUserID)
	if err == nil {
		return userID, false, nil
	}
	if !apperr.IsNotFound(err) {
		return "", false, err
	}
	options := provider.provider().Options
	if !options.IsCreationAllowed && !options.IsAutoCreation {
		return "", false, nil
	}
	return c.provisionExternalUser(ctx, provider.ResourceOwner, externalUser)
}

// linkExistingUser attaches the callback identity to a known user instead
// of provisioning one, recording the successful external login check in
// the same push. An identity already linked to a different user refuses.
func (c *Commands) linkExistingUser(ctx context.Context, userID string, externalUser *domain.ExternalUser) (string, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.queries.Trigger(ctx, query.IDPUserLinkProjectionName); err != nil {
		return "", err
	}
	linkedTo, err := c.queries.IDPUserLink(ctx, instanceID, externalUser.IDPConfigID, externalUser.ExternalUserID)
	if err != nil && !apperr.IsNotFound(err) {
		return "", err
	}
	if err == nil && linkedTo != userID {
		return "", apperr.ThrowAlreadyExists(nil, "INTENT-014", "identity already linked to another user")
	}
	user, err := c.existingUser(ctx, "", userID)
	if err != nil {
		return "", err
	}
	link := repository.UserIDPLinkPayload{
		IDPConfigID:    externalUser.IDPConfigID,
		ExternalUserID: externalUser.ExternalUserID,
		DisplayName:    externalUser.DisplayName,
	}
	commands := make([]*eventstore.Command, 0, 2)
	if _, ok := user.IDPLinks[linkKey(link.IDPConfigID, link.ExternalUserID)]; !ok {
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserIDPLinkAddedType, authz.SystemUserID, link))
	}
	commands = append(commands,
		eventstore.NewCommand(user.aggregate(), repository.UserIDPCheckSucceededType, authz.SystemUserID, link))
	if err := c.pushAppendAndReduce(ctx, user, commands...); err != nil {
		return "", err
	}
	return userID, nil
}

func (c *Commands) provisionExternalUser(ctx context.Context, orgID string, externalUser *domain.ExternalUser) (string, bool, error) {
	instanceID := authz.GetInstance(ctx)
	username, err := c.provisionUsername(ctx, instanceID, orgID, externalUser)
	if err != nil {
		return "", false, err
	}
	userID := c.nextID()
	user := newUserWriteModel(instanceID, orgID, userID)
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserHumanAddedType, authz.SystemUserID,
			repository.UserHumanAddedPayload{
				Username:      username,
				FirstName:     externalUser.FirstName,
				LastName:      externalUser.LastName,
				DisplayName:   displayName(externalUser.FirstName, externalUser.LastName, username),
				Email:         externalUser.Email,
				EmailVerified: externalUser.EmailVerified,
			},
			eventstore.NewAddUniqueConstraint(repository.UniqueUsername, usernameClaim(orgID, username), "INTENT-040")),
		eventstore.NewCommand(user.aggregate(), repository.UserIDPLinkAddedType, authz.SystemUserID,
			repository.UserIDPLinkPayload{
				IDPConfigID:    externalUser.IDPConfigID,
				ExternalUserID: externalUser.ExternalUserID,
				DisplayName:    externalUser.DisplayName,
			}))
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// provisionUsername picks the preferred-username claim, then the email
// local part, then a random user_<hex> fallback; a taken candidate falls
// through to the next.
func (c *Commands) provisionUsername(ctx context.Context, instanceID, orgID string, externalUser *domain.ExternalUser) (string, error) {
	candidates := make([]string, 0, 3)
	if externalUser.Username != "" {
		candidates = append(candidates, externalUser.Username)
	}
	if externalUser.Email != "" {
		if at := strings.IndexByte(externalUser.Email, '@'); at > 0 {
			candidates = append(candidates, externalUser.Email[:at])
		}
	}
	if err := c.queries.Trigger(ctx, query.UserProjectionName); err != nil {
		return "", err
	}
	for _, candidate := range candidates {
		_, err := c.queries.UserByUsername(ctx, instanceID, orgID, candidate)
		if apperr.IsNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	suffix, err := idgen.RandomHex(4)
	if err != nil {
		return "", err
	}
	return "user_" + suffix, nil
}

// activeProvider loads the provider config straight from the event log.
func (c *Commands) activeProvider(ctx context.Context, idpID string) (*idpWriteModel, error) {
	provider := newIDPWriteModel(authz.GetInstance(ctx), "", idpID)
	if err := provider.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !provider.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "INTENT-050", "identity provider does not exist")
	}
	return provider, nil
}

func (c *Commands) decryptIDPSecret(ctx context.Context, value *crypto.Value) (string, error) {
	if value.IsZero() {
		return "", nil
	}
	return c.keeper.DecryptString(ctx, value)
}
