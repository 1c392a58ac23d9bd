package query_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/eventstore/sqlite"
	"github.com/nordlys-id/nordlys/pkg/query"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

const (
	testInstance = "inst-1"
	testOrg      = "org-1"
)

func newTestQueries(t *testing.T) (*query.Queries, *eventstore.Eventstore, *sql.DB) {
	t.Helper()
	storage, err := sqlite.New(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	es := eventstore.New(storage)
	return query.New(storage.DB(), es), es, storage.DB()
}

func push(t *testing.T, es *eventstore.Eventstore, commands ...*eventstore.Command) {
	t.Helper()
	_, err := es.Push(context.Background(), commands...)
	require.NoError(t, err)
}

func userAgg(id string) *eventstore.Aggregate {
	return eventstore.NewAggregate(id, repository.UserAggregate, testOrg, testInstance)
}

func orgAgg(id string) *eventstore.Aggregate {
	return eventstore.NewAggregate(id, repository.OrgAggregate, id, testInstance)
}

func instanceAgg() *eventstore.Aggregate {
	return eventstore.NewAggregate(testInstance, repository.InstanceAggregate, testInstance, testInstance)
}

func TestUserLookups(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	push(t, es, eventstore.NewCommand(userAgg("u1"), repository.UserHumanAddedType, "tester",
		repository.UserHumanAddedPayload{
			Username:  "Alice",
			FirstName: "Alice",
			LastName:  "Archer",
			Email:     "alice@example.com",
		}))
	require.NoError(t, q.TriggerAll(ctx))

	user, err := q.UserByID(ctx, testInstance, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Username)
	assert.Equal(t, testOrg, user.ResourceOwner)
	assert.Equal(t, domain.UserTypeHuman, user.Type)
	assert.Equal(t, domain.UserStateActive, user.State)
	assert.Equal(t, "alice@example.com", user.Email)

	// Username resolution ignores case.
	user, err = q.UserByUsername(ctx, testInstance, testOrg, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = q.UserByID(ctx, testInstance, "missing")
	assert.True(t, apperr.IsNotFound(err))
	_, err = q.UserByUsername(ctx, testInstance, "other-org", "alice")
	assert.True(t, apperr.IsNotFound(err))
}

func TestUserRemovalDropsRow(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	push(t, es, eventstore.NewCommand(userAgg("u1"), repository.UserHumanAddedType, "tester",
		repository.UserHumanAddedPayload{Username: "alice", Email: "alice@example.com"}))
	push(t, es, eventstore.NewCommand(userAgg("u1"), repository.UserRemovedType, "tester",
		repository.UserRemovedPayload{Username: "alice"}))
	require.NoError(t, q.TriggerAll(ctx))

	_, err := q.UserByID(ctx, testInstance, "u1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestOrgLookups(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	agg := orgAgg(testOrg)
	push(t, es,
		eventstore.NewCommand(agg, repository.OrgAddedType, "tester",
			repository.OrgAddedPayload{Name: "Acme"}),
		eventstore.NewCommand(agg, repository.OrgDomainAddedType, "tester",
			repository.OrgDomainAddedPayload{Domain: "acme.example.com"}),
		eventstore.NewCommand(agg, repository.OrgDomainAddedType, "tester",
			repository.OrgDomainAddedPayload{Domain: "acme.test"}),
		eventstore.NewCommand(agg, repository.OrgDomainPrimarySetType, "tester",
			repository.OrgDomainPrimarySetPayload{Domain: "acme.test"}))
	require.NoError(t, q.TriggerAll(ctx))

	org, err := q.OrgByID(ctx, testInstance, testOrg)
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, "acme.test", org.PrimaryDomain)
	assert.Equal(t, domain.OrgStateActive, org.State)

	domains, err := q.OrgDomains(ctx, testInstance, testOrg)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.example.com", "acme.test"}, domains)
}

func TestPolicyResolutionOrgOverrideWins(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	push(t, es, eventstore.NewCommand(instanceAgg(), repository.InstanceLoginPolicyAddedType, "tester",
		repository.LoginPolicyPayload{LoginPolicy: domain.LoginPolicy{
			AllowUsernamePassword: true,
			AllowRegister:         true,
		}}))
	push(t, es, eventstore.NewCommand(orgAgg(testOrg), repository.OrgLoginPolicyAddedType, "tester",
		repository.LoginPolicyPayload{LoginPolicy: domain.LoginPolicy{
			AllowUsernamePassword: true,
			ForceMFA:              true,
		}}))
	require.NoError(t, q.TriggerAll(ctx))

	// The overriding org sees its own policy.
	policy, isDefault, err := q.LoginPolicy(ctx, testInstance, testOrg)
	require.NoError(t, err)
	assert.False(t, isDefault)
	assert.True(t, policy.ForceMFA)
	assert.False(t, policy.AllowRegister)

	// An org without an override falls back to the instance default.
	policy, isDefault, err = q.LoginPolicy(ctx, testInstance, "org-2")
	require.NoError(t, err)
	assert.True(t, isDefault)
	assert.True(t, policy.AllowRegister)
	assert.False(t, policy.ForceMFA)
}

func TestPolicyOverrideRemovalRestoresDefault(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	push(t, es, eventstore.NewCommand(instanceAgg(), repository.InstancePasswordComplexityPolicyAddedType, "tester",
		repository.PasswordComplexityPolicyPayload{PasswordComplexityPolicy: domain.PasswordComplexityPolicy{
			MinLength: 8,
		}}))
	push(t, es, eventstore.NewCommand(orgAgg(testOrg), repository.OrgPasswordComplexityPolicyAddedType, "tester",
		repository.PasswordComplexityPolicyPayload{PasswordComplexityPolicy: domain.PasswordComplexityPolicy{
			MinLength: 16,
		}}))
	push(t, es, eventstore.NewCommand(orgAgg(testOrg), repository.OrgPasswordComplexityPolicyRemovedType, "tester", nil))
	require.NoError(t, q.TriggerAll(ctx))

	policy, isDefault, err := q.PasswordComplexityPolicy(ctx, testInstance, testOrg)
	require.NoError(t, err)
	assert.True(t, isDefault)
	assert.Equal(t, uint64(8), policy.MinLength)
}

func TestLoginFactorsFoldIntoPolicy(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	push(t, es, eventstore.NewCommand(instanceAgg(), repository.InstanceLoginPolicyAddedType, "tester",
		repository.LoginPolicyPayload{LoginPolicy: domain.LoginPolicy{AllowUsernamePassword: true}}))
	push(t, es,
		eventstore.NewCommand(instanceAgg(), repository.InstanceLoginPolicySecondFactorAddedType, "tester",
			repository.LoginPolicySecondFactorPayload{FactorType: domain.SecondFactorTypeTOTP}),
		eventstore.NewCommand(instanceAgg(), repository.InstanceLoginPolicySecondFactorAddedType, "tester",
			repository.LoginPolicySecondFactorPayload{FactorType: domain.SecondFactorTypeU2F}))
	push(t, es, eventstore.NewCommand(instanceAgg(), repository.InstanceLoginPolicySecondFactorRemovedType, "tester",
		repository.LoginPolicySecondFactorPayload{FactorType: domain.SecondFactorTypeTOTP}))
	require.NoError(t, q.TriggerAll(ctx))

	policy, _, err := q.LoginPolicy(ctx, testInstance, testOrg)
	require.NoError(t, err)
	assert.Equal(t, []domain.SecondFactorType{domain.SecondFactorTypeU2F}, policy.SecondFactors)
}

func TestHasInstancePolicy(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	has, err := q.HasInstancePolicy(ctx, query.LockoutPolicyProjectionName, testInstance)
	require.NoError(t, err)
	assert.False(t, has)

	push(t, es, eventstore.NewCommand(instanceAgg(), repository.InstanceLockoutPolicyAddedType, "tester",
		repository.LockoutPolicyPayload{LockoutPolicy: domain.LockoutPolicy{MaxPasswordAttempts: 5}}))
	require.NoError(t, q.TriggerAll(ctx))

	has, err = q.HasInstancePolicy(ctx, query.LockoutPolicyProjectionName, testInstance)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestIDPTemplateAndLinks(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	idpAggregate := eventstore.NewAggregate("idp-1", repository.IDPAggregate, testOrg, testInstance)
	push(t, es, eventstore.NewCommand(idpAggregate, repository.IDPOIDCAddedType, "tester",
		repository.IDPOIDCPayload{
			Name:     "Corporate SSO",
			Issuer:   "https://issuer.example.com",
			ClientID: "client-1",
		}))
	push(t, es, eventstore.NewCommand(userAgg("u1"), repository.UserIDPLinkAddedType, "tester",
		repository.UserIDPLinkPayload{IDPConfigID: "idp-1", ExternalUserID: "ext-1", DisplayName: "alice"}))
	require.NoError(t, q.TriggerAll(ctx))

	template, err := q.IDPTemplateByID(ctx, testInstance, "idp-1")
	require.NoError(t, err)
	assert.Equal(t, "Corporate SSO", template.Name)
	assert.Equal(t, domain.IDPTypeOIDC, template.Type)
	assert.Contains(t, string(template.Config), "issuer.example.com")

	userID, err := q.IDPUserLink(ctx, testInstance, "idp-1", "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// Migrating the external id moves the link.
	push(t, es, eventstore.NewCommand(userAgg("u1"), repository.UserIDPExternalIDMigratedType, "tester",
		repository.UserIDPExternalIDMigratedPayload{IDPConfigID: "idp-1", PreviousID: "ext-1", NewID: "ext-2"}))
	require.NoError(t, q.TriggerAll(ctx))

	_, err = q.IDPUserLink(ctx, testInstance, "idp-1", "ext-1")
	assert.True(t, apperr.IsNotFound(err))
	userID, err = q.IDPUserLink(ctx, testInstance, "idp-1", "ext-2")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// Removing the provider drops the template and its links.
	push(t, es, eventstore.NewCommand(idpAggregate, repository.IDPRemovedType, "tester", nil))
	require.NoError(t, q.TriggerAll(ctx))

	_, err = q.IDPTemplateByID(ctx, testInstance, "idp-1")
	assert.True(t, apperr.IsNotFound(err))
	_, err = q.IDPUserLink(ctx, testInstance, "idp-1", "ext-2")
	assert.True(t, apperr.IsNotFound(err))
}

func TestIDPIntentByStateToken(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Millisecond)
	intentAggregate := eventstore.NewAggregate("intent-1", repository.IDPIntentAggregate, testOrg, testInstance)
	push(t, es, eventstore.NewCommand(intentAggregate, repository.IDPIntentStartedType, "tester",
		repository.IDPIntentStartedPayload{
			IDPID:      "idp-1",
			SuccessURL: "https://app.example.com/ok",
			FailureURL: "https://app.example.com/fail",
			State:      "state-token-1",
			Nonce:      "nonce-1",
			ExpiresAt:  expiresAt,
		}))
	require.NoError(t, q.TriggerAll(ctx))

	intent, err := q.IDPIntentByStateToken(ctx, testInstance, "state-token-1")
	require.NoError(t, err)
	assert.Equal(t, "intent-1", intent.ID)
	assert.Equal(t, "idp-1", intent.IDPID)
	assert.Equal(t, domain.IDPIntentStateStarted, intent.State)
	assert.Equal(t, "nonce-1", intent.Nonce)
	assert.Equal(t, expiresAt, intent.ExpiresAt)
	assert.Nil(t, intent.CodeVerifier)

	_, err = q.IDPIntentByStateToken(ctx, testInstance, "unknown")
	assert.True(t, apperr.IsNotFound(err))
}

func TestAppByClientID(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	appAggregate := eventstore.NewAggregate("app-1", repository.ApplicationAggregate, testOrg, testInstance)
	push(t, es,
		eventstore.NewCommand(appAggregate, repository.ApplicationAddedType, "tester",
			repository.ApplicationAddedPayload{ProjectID: "proj-1", Name: "Web"}),
		eventstore.NewCommand(appAggregate, repository.ApplicationOIDCConfigAddedType, "tester",
			repository.ApplicationOIDCConfigPayload{
				ClientID:     "client-abc",
				RedirectURIs: []string{"https://app.example.com/callback"},
			}))
	require.NoError(t, q.TriggerAll(ctx))

	app, err := q.AppByClientID(ctx, testInstance, "client-abc")
	require.NoError(t, err)
	assert.Equal(t, "app-1", app.ID)
	assert.Equal(t, "proj-1", app.ProjectID)
	assert.Equal(t, domain.AppTypeOIDC, app.Type)
	assert.Contains(t, string(app.Config), "callback")

	_, err = q.AppByClientID(ctx, testInstance, "unknown")
	assert.True(t, apperr.IsNotFound(err))
}

func TestTargetByID(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	targetAggregate := eventstore.NewAggregate("target-1", repository.TargetAggregate, testInstance, testInstance)
	push(t, es, eventstore.NewCommand(targetAggregate, repository.TargetAddedType, "tester",
		repository.TargetAddedPayload{
			Name:       "audit-hook",
			TargetType: domain.TargetTypeWebhook,
			Endpoint:   "https://hooks.example.com/audit",
			Timeout:    10 * time.Second,
		}))
	require.NoError(t, q.TriggerAll(ctx))

	target, err := q.TargetByID(ctx, testInstance, "target-1")
	require.NoError(t, err)
	assert.Equal(t, "audit-hook", target.Name)
	assert.Equal(t, 10*time.Second, target.Timeout)

	newName := "audit-hook-v2"
	push(t, es, eventstore.NewCommand(targetAggregate, repository.TargetChangedType, "tester",
		repository.TargetChangedPayload{Name: &newName, OldName: "audit-hook"}))
	require.NoError(t, q.TriggerAll(ctx))

	target, err = q.TargetByID(ctx, testInstance, "target-1")
	require.NoError(t, err)
	assert.Equal(t, "audit-hook-v2", target.Name)
	assert.Equal(t, 10*time.Second, target.Timeout)
}

func TestPersonalAccessTokenByDigest(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	push(t, es,
		eventstore.NewCommand(userAgg("u1"), repository.UserMachineAddedType, "tester",
			repository.UserMachineAddedPayload{Username: "svc", Name: "Service"}),
		eventstore.NewCommand(userAgg("u1"), repository.UserPATAddedType, "tester",
			repository.UserPATAddedPayload{
				TokenID:    "pat-1",
				Expiration: time.Now().Add(time.Hour),
				Scopes:     []string{"openid"},
				Digest:     "digest-valid",
			}),
		eventstore.NewCommand(userAgg("u1"), repository.UserPATAddedType, "tester",
			repository.UserPATAddedPayload{
				TokenID:    "pat-2",
				Expiration: time.Now().Add(-time.Hour),
				Digest:     "digest-expired",
			}))
	require.NoError(t, q.TriggerAll(ctx))

	pat, err := q.PersonalAccessTokenByDigest(ctx, testInstance, "digest-valid")
	require.NoError(t, err)
	assert.Equal(t, "u1", pat.UserID)
	assert.Equal(t, []string{"openid"}, pat.Scopes)

	_, err = q.PersonalAccessTokenByDigest(ctx, testInstance, "digest-expired")
	assert.True(t, apperr.IsUnauthenticated(err))
	_, err = q.PersonalAccessTokenByDigest(ctx, testInstance, "digest-unknown")
	assert.True(t, apperr.IsUnauthenticated(err))

	push(t, es, eventstore.NewCommand(userAgg("u1"), repository.UserPATRemovedType, "tester",
		repository.UserPATRemovedPayload{TokenID: "pat-1"}))
	require.NoError(t, q.TriggerAll(ctx))
	_, err = q.PersonalAccessTokenByDigest(ctx, testInstance, "digest-valid")
	assert.True(t, apperr.IsUnauthenticated(err))
}

func TestSAMLRequestByID(t *testing.T) {
	q, es, _ := newTestQueries(t)
	ctx := context.Background()

	requestAggregate := eventstore.NewAggregate("saml-1", repository.SAMLRequestAggregate, testOrg, testInstance)
	push(t, es, eventstore.NewCommand(requestAggregate, repository.SAMLRequestAddedType, "tester",
		repository.SAMLRequestAddedPayload{
			LoginClient: "login-ui",
			Issuer:      "https://sp.example.com",
			ACSURL:      "https://sp.example.com/acs",
			RequestID:   "_req1",
			Binding:     domain.SAMLBindingPost,
		}))
	require.NoError(t, q.TriggerAll(ctx))

	request, err := q.SAMLRequestByID(ctx, testInstance, "saml-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SAMLRequestStateAdded, request.State)
	assert.Equal(t, "https://sp.example.com/acs", request.ACSURL)

	push(t, es,
		eventstore.NewCommand(requestAggregate, repository.SAMLRequestSessionLinkedType, "tester",
			repository.SAMLRequestSessionLinkedPayload{SessionID: "sess-1"}),
		eventstore.NewCommand(requestAggregate, repository.SAMLRequestSucceededType, "tester", nil))
	require.NoError(t, q.TriggerAll(ctx))

	request, err = q.SAMLRequestByID(ctx, testInstance, "saml-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SAMLRequestStateSucceeded, request.State)
	assert.Equal(t, "sess-1", request.SessionID)
}
