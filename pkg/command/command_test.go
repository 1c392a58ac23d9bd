package command_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/secrets/localsecrets"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/command"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/eventstore/sqlite"
	"github.com/nordlys-id/nordlys/pkg/password"
	"github.com/nordlys-id/nordlys/pkg/query"
)

const (
	testInstance   = "inst-1"
	localKeeperURL = "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="
)

// testClock is a mutable time source so expiry paths can be tested without
// sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	*command.Commands

	es      *eventstore.Eventstore
	queries *query.Queries
	keeper  *crypto.Keeper
	clock   *testClock
	ctx     context.Context
}

func newFixture(t *testing.T, opts ...command.Option) *fixture {
	t.Helper()
	storage, err := sqlite.New(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	es := eventstore.New(storage)
	queries := query.New(storage.DB(), es)

	keeper, err := crypto.NewKeeper(context.Background(), localKeeperURL, "local-v1")
	require.NoError(t, err)
	t.Cleanup(func() { keeper.Close() })

	clock := &testClock{now: time.Now()}
	var seq int
	base := []command.Option{
		command.WithPasswordCost(password.MinCost),
		command.WithClock(clock.Now),
		command.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%02d", seq)
		}),
	}
	return &fixture{
		Commands: command.New(es, queries, keeper, append(base, opts...)...),
		es:       es,
		queries:  queries,
		keeper:   keeper,
		clock:    clock,
		ctx:      authz.NewSystemContext(context.Background(), testInstance),
	}
}

func (f *fixture) addOrg(t *testing.T, name string) string {
	t.Helper()
	orgID, _, err := f.AddOrg(f.ctx, name)
	require.NoError(t, err)
	return orgID
}

func (f *fixture) addUser(t *testing.T, orgID, username string) string {
	t.Helper()
	userID, _, err := f.AddHumanUser(f.ctx, &command.AddHumanUser{
		OrgID:    orgID,
		Username: username,
		Email:    username + "@example.com",
	})
	require.NoError(t, err)
	return userID
}

func TestAddOrgClaimsName(t *testing.T) {
	f := newFixture(t)

	orgID := f.addOrg(t, "Acme")
	assert.NotEmpty(t, orgID)

	_, _, err := f.AddOrg(f.ctx, "Acme")
	assert.True(t, apperr.IsAlreadyExists(err))

	// Removing the org releases the claim.
	_, err = f.RemoveOrg(f.ctx, orgID)
	require.NoError(t, err)
	_, _, err = f.AddOrg(f.ctx, "Acme")
	assert.NoError(t, err)
}

func TestUsernameUniquePerOrg(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	userID := f.addUser(t, orgID, "alice")

	// The claim ignores case.
	_, _, err := f.AddHumanUser(f.ctx, &command.AddHumanUser{
		OrgID:    orgID,
		Username: "ALICE",
		Email:    "alice2@example.com",
	})
	assert.True(t, apperr.IsAlreadyExists(err))

	// The same username is free in another org.
	otherOrg := f.addOrg(t, "Globex")
	f.addUser(t, otherOrg, "alice")

	// Removing the user releases the claim.
	_, err = f.RemoveUser(f.ctx, orgID, userID)
	require.NoError(t, err)
	f.addUser(t, orgID, "alice")
}

func TestAddHumanUserValidation(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	_, _, err := f.AddHumanUser(f.ctx, &command.AddHumanUser{
		OrgID:    orgID,
		Username: "bob",
		Email:    "not-an-email",
	})
	assert.True(t, apperr.IsInvalidArgument(err))

	_, _, err = f.AddHumanUser(f.ctx, &command.AddHumanUser{
		OrgID:    "missing-org",
		Username: "bob",
		Email:    "bob@example.com",
	})
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestUserLifecycle(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	userID := f.addUser(t, orgID, "carol")

	_, err := f.DeactivateUser(f.ctx, orgID, userID)
	require.NoError(t, err)
	_, err = f.DeactivateUser(f.ctx, orgID, userID)
	assert.True(t, apperr.IsPreconditionFailed(err))

	_, err = f.ReactivateUser(f.ctx, orgID, userID)
	require.NoError(t, err)

	_, err = f.LockUser(f.ctx, orgID, userID)
	require.NoError(t, err)
	_, err = f.UnlockUser(f.ctx, orgID, userID)
	require.NoError(t, err)

	_, err = f.RemoveUser(f.ctx, orgID, userID)
	require.NoError(t, err)
	_, err = f.RemoveUser(f.ctx, orgID, userID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestPasswordCheck(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	userID, _, err := f.AddHumanUser(f.ctx, &command.AddHumanUser{
		OrgID:    orgID,
		Username: "dave",
		Email:    "dave@example.com",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)

	require.NoError(t, f.CheckPassword(f.ctx, orgID, userID, "correct horse battery staple"))
	err = f.CheckPassword(f.ctx, orgID, userID, "wrong password entirely")
	assert.True(t, apperr.IsUnauthenticated(err))

	// Unknown users fail identically to a wrong password.
	err = f.CheckPassword(f.ctx, orgID, "no-such-user", "correct horse battery staple")
	assert.True(t, apperr.IsUnauthenticated(err))
}

func TestPasswordPolicyEnforced(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")
	userID := f.addUser(t, orgID, "erin")

	// Entropy floor holds even without a configured policy.
	_, err := f.ChangePassword(f.ctx, orgID, userID, "12345", false)
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = f.AddDefaultPasswordComplexityPolicy(f.ctx, &domain.PasswordComplexityPolicy{
		MinLength:    12,
		HasUppercase: true,
		HasNumber:    true,
	})
	require.NoError(t, err)

	_, err = f.ChangePassword(f.ctx, orgID, userID, "correct horse battery staple", false)
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = f.ChangePassword(f.ctx, orgID, userID, "Correct horse 8attery staple", false)
	assert.NoError(t, err)
}

func TestLockoutAfterFailedAttempts(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	userID, _, err := f.AddHumanUser(f.ctx, &command.AddHumanUser{
		OrgID:    orgID,
		Username: "frank",
		Email:    "frank@example.com",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)

	_, err = f.AddDefaultLockoutPolicy(f.ctx, &domain.LockoutPolicy{MaxPasswordAttempts: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err = f.CheckPassword(f.ctx, orgID, userID, "wrong password entirely")
		assert.True(t, apperr.IsUnauthenticated(err))
	}

	// The third failure locked the user, so even the right password is
	// rejected now.
	err = f.CheckPassword(f.ctx, orgID, userID, "correct horse battery staple")
	assert.True(t, apperr.IsUnauthenticated(err))

	_, err = f.UnlockUser(f.ctx, orgID, userID)
	require.NoError(t, err)
	assert.NoError(t, f.CheckPassword(f.ctx, orgID, userID, "correct horse battery staple"))
}

func TestPersonalAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx
	orgID := f.addOrg(t, "Acme")
	userID := f.addUser(t, orgID, "grace")

	_, err := f.AddPersonalAccessToken(ctx, orgID, userID, f.clock.Now().Add(-time.Hour), nil)
	assert.True(t, apperr.IsInvalidArgument(err))

	pat, err := f.AddPersonalAccessToken(ctx, orgID, userID, f.clock.Now().Add(time.Hour), []string{"openid"})
	require.NoError(t, err)
	assert.NotEmpty(t, pat.Token)

	// Only the digest is queryable; the plaintext never comes back.
	require.NoError(t, f.queries.TriggerAll(ctx))
	row, err := f.queries.PersonalAccessTokenByDigest(ctx, testInstance, crypto.HashToken(pat.Token))
	require.NoError(t, err)
	assert.Equal(t, userID, row.UserID)
	assert.Equal(t, []string{"openid"}, row.Scopes)

	_, err = f.queries.PersonalAccessTokenByDigest(ctx, testInstance, crypto.HashToken("guessed"))
	assert.True(t, apperr.IsUnauthenticated(err))

	_, err = f.RemovePersonalAccessToken(ctx, orgID, userID, pat.TokenID)
	require.NoError(t, err)
	require.NoError(t, f.queries.TriggerAll(ctx))
	_, err = f.queries.PersonalAccessTokenByDigest(ctx, testInstance, crypto.HashToken(pat.Token))
	assert.True(t, apperr.IsUnauthenticated(err))
}

func TestLoginPolicyFactors(t *testing.T) {
	f := newFixture(t)

	_, err := f.AddSecondFactorToDefaultLoginPolicy(f.ctx, domain.SecondFactorTypeTOTP)
	assert.True(t, apperr.IsPreconditionFailed(err))

	_, err = f.AddDefaultLoginPolicy(f.ctx, &domain.LoginPolicy{AllowUsernamePassword: true})
	require.NoError(t, err)

	_, err = f.AddSecondFactorToDefaultLoginPolicy(f.ctx, domain.SecondFactorTypeTOTP)
	require.NoError(t, err)
	_, err = f.AddSecondFactorToDefaultLoginPolicy(f.ctx, domain.SecondFactorTypeTOTP)
	assert.True(t, apperr.IsAlreadyExists(err))

	_, err = f.AddMultiFactorToDefaultLoginPolicy(f.ctx, domain.MultiFactorTypeU2FWithPIN)
	require.NoError(t, err)

	_, err = f.RemoveSecondFactorFromDefaultLoginPolicy(f.ctx, domain.SecondFactorTypeTOTP)
	require.NoError(t, err)
	_, err = f.RemoveSecondFactorFromDefaultLoginPolicy(f.ctx, domain.SecondFactorTypeTOTP)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSecurityPolicy(t *testing.T) {
	f := newFixture(t)
	orgID := f.addOrg(t, "Acme")

	// Changing a default that was never set is refused.
	_, err := f.ChangeDefaultSecurityPolicy(f.ctx, &domain.SecurityPolicy{EnableImpersonation: true})
	assert.True(t, apperr.IsPreconditionFailed(err))

	_, err = f.AddDefaultSecurityPolicy(f.ctx, &domain.SecurityPolicy{
		EnableIframeEmbedding: true,
		AllowedOrigins:        []string{"https://portal.example.com"},
	})
	require.NoError(t, err)
	_, err = f.AddDefaultSecurityPolicy(f.ctx, &domain.SecurityPolicy{})
	assert.True(t, apperr.IsAlreadyExists(err))

	_, err = f.AddOrgSecurityPolicy(f.ctx, orgID, &domain.SecurityPolicy{EnableImpersonation: true})
	require.NoError(t, err)

	require.NoError(t, f.queries.TriggerAll(f.ctx))
	policy, isDefault, err := f.queries.SecurityPolicy(f.ctx, testInstance, orgID)
	require.NoError(t, err)
	assert.False(t, isDefault)
	assert.True(t, policy.EnableImpersonation)
	assert.False(t, policy.EnableIframeEmbedding)

	// Removing the override falls back to the default.
	_, err = f.RemoveOrgSecurityPolicy(f.ctx, orgID)
	require.NoError(t, err)
	_, err = f.RemoveOrgSecurityPolicy(f.ctx, orgID)
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, f.queries.TriggerAll(f.ctx))
	policy, isDefault, err = f.queries.SecurityPolicy(f.ctx, testInstance, orgID)
	require.NoError(t, err)
	assert.True(t, isDefault)
	assert.Equal(t, []string{"https://portal.example.com"}, policy.AllowedOrigins)
}
