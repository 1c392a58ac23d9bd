package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
)

// User is a row of the users projection.
type User struct {
	ID            string
	ResourceOwner string
	Username      string
	Type          domain.UserType
	State         domain.UserState
	FirstName     string
	LastName      string
	DisplayName   string
	Email         string
	EmailVerified bool
	Phone         string
	PhoneVerified bool
	PasswordHash  string
	MachineName   string
	Sequence      uint64
}

// UserByID returns the user or NOT_FOUND.
func (q *Queries) UserByID(ctx context.Context, instanceID, userID string) (*User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, resource_owner, username, user_type, state, first_name, last_name,
			display_name, email, email_verified, phone, phone_verified,
			password_hash, machine_name, sequence
		FROM users WHERE instance_id = ? AND id = ?`, instanceID, userID)
	return scanUser(row)
}

// UserByUsername resolves a user by org-scoped, case-insensitive username.
func (q *Queries) UserByUsername(ctx context.Context, instanceID, orgID, username string) (*User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, resource_owner, username, user_type, state, first_name, last_name,
			display_name, email, email_verified, phone, phone_verified,
			password_hash, machine_name, sequence
		FROM users
		WHERE instance_id = ? AND resource_owner = ? AND username = ? COLLATE NOCASE`,
		instanceID, orgID, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	user := new(User)
	err := row.Scan(&user.ID, &user.ResourceOwner, &user.Username, &user.Type, &user.State,
		&user.FirstName, &user.LastName, &user.DisplayName, &user.Email, &user.EmailVerified,
		&user.Phone, &user.PhoneVerified, &user.PasswordHash, &user.MachineName, &user.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-001", "user not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-002", "read user")
	}
	return user, nil
}

// Org is a row of the orgs projection.
type Org struct {
	ID            string
	Name          string
	PrimaryDomain string
	State         domain.OrgState
	Sequence      uint64
}

// OrgByID returns the org or NOT_FOUND.
func (q *Queries) OrgByID(ctx context.Context, instanceID, orgID string) (*Org, error) {
	org := new(Org)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, primary_domain, state, sequence
		FROM orgs WHERE instance_id = ? AND id = ?`, instanceID, orgID,
	).Scan(&org.ID, &org.Name, &org.PrimaryDomain, &org.State, &org.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-010", "org not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-011", "read org")
	}
	return org, nil
}

// OrgDomains returns the org's registered domains.
func (q *Queries) OrgDomains(ctx context.Context, instanceID, orgID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT domain FROM org_domains WHERE instance_id = ? AND org_id = ? ORDER BY domain`,
		instanceID, orgID)
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-012", "read org domains")
	}
	defer rows.Close()
	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, apperr.ThrowInternal(err, "QUERY-013", "scan org domain")
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// policyDocument resolves the effective policy: the org override when
// present, the instance default otherwise.
func (q *Queries) policyDocument(ctx context.Context, table, instanceID, orgID string) (raw string, isDefault bool, err error) {
	err = q.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT policy, is_default FROM %s
		WHERE instance_id = ? AND owner_id IN (?, ?)
		ORDER BY is_default ASC LIMIT 1`, table),
		instanceID, orgID, instanceID,
	).Scan(&raw, &isDefault)
	if err == sql.ErrNoRows {
		return "", false, apperr.ThrowNotFound(nil, "QUERY-020", "policy not found")
	}
	if err != nil {
		return "", false, apperr.ThrowInternal(err, "QUERY-021", "read policy")
	}
	return raw, isDefault, nil
}

func policyOf[T any](q *Queries, ctx context.Context, table, instanceID, orgID string) (*T, bool, error) {
	raw, isDefault, err := q.policyDocument(ctx, table, instanceID, orgID)
	if err != nil {
		return nil, false, err
	}
	policy := new(T)
	if err := json.Unmarshal([]byte(raw), policy); err != nil {
		return nil, false, apperr.ThrowInternal(err, "QUERY-022", "decode policy")
	}
	return policy, isDefault, nil
}

// LoginPolicy returns the effective login policy for the org and whether
// it is the instance default.
func (q *Queries) LoginPolicy(ctx context.Context, instanceID, orgID string) (*domain.LoginPolicy, bool, error) {
	return policyOf[domain.LoginPolicy](q, ctx, LoginPolicyProjectionName, instanceID, orgID)
}

func (q *Queries) PasswordComplexityPolicy(ctx context.Context, instanceID, orgID string) (*domain.PasswordComplexityPolicy, bool, error) {
	return policyOf[domain.PasswordComplexityPolicy](q, ctx, PasswordComplexityPolicyProjectionName, instanceID, orgID)
}

func (q *Queries) PasswordAgePolicy(ctx context.Context, instanceID, orgID string) (*domain.PasswordAgePolicy, bool, error) {
	return policyOf[domain.PasswordAgePolicy](q, ctx, PasswordAgePolicyProjectionName, instanceID, orgID)
}

func (q *Queries) LockoutPolicy(ctx context.Context, instanceID, orgID string) (*domain.LockoutPolicy, bool, error) {
	return policyOf[domain.LockoutPolicy](q, ctx, LockoutPolicyProjectionName, instanceID, orgID)
}

func (q *Queries) DomainPolicy(ctx context.Context, instanceID, orgID string) (*domain.DomainPolicy, bool, error) {
	return policyOf[domain.DomainPolicy](q, ctx, DomainPolicyProjectionName, instanceID, orgID)
}

func (q *Queries) PrivacyPolicy(ctx context.Context, instanceID, orgID string) (*domain.PrivacyPolicy, bool, error) {
	return policyOf[domain.PrivacyPolicy](q, ctx, PrivacyPolicyProjectionName, instanceID, orgID)
}

func (q *Queries) LabelPolicy(ctx context.Context, instanceID, orgID string) (*domain.LabelPolicy, bool, error) {
	return policyOf[domain.LabelPolicy](q, ctx, LabelPolicyProjectionName, instanceID, orgID)
}

func (q *Queries) SecurityPolicy(ctx context.Context, instanceID, orgID string) (*domain.SecurityPolicy, bool, error) {
	return policyOf[domain.SecurityPolicy](q, ctx, SecurityPolicyProjectionName, instanceID, orgID)
}

// HasInstancePolicy reports whether an instance default exists for the
// policy table.
func (q *Queries) HasInstancePolicy(ctx context.Context, table, instanceID string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %s WHERE instance_id = ? AND owner_id = ? AND is_default = 1`, table),
		instanceID, instanceID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.ThrowInternal(err, "QUERY-023", "read instance policy")
	}
	return true, nil
}

// IDPTemplate is a row of the idp_templates projection; Config is the raw
// per-type payload.
type IDPTemplate struct {
	ID            string
	ResourceOwner string
	Name          string
	Type          domain.IDPType
	State         domain.IDPState
	Config        json.RawMessage
	Sequence      uint64
}

// IDPTemplateByID returns the provider template or NOT_FOUND.
func (q *Queries) IDPTemplateByID(ctx context.Context, instanceID, idpID string) (*IDPTemplate, error) {
	template := new(IDPTemplate)
	var config string
	err := q.db.QueryRowContext(ctx, `
		SELECT id, resource_owner, name, idp_type, state, config, sequence
		FROM idp_templates WHERE instance_id = ? AND id = ?`, instanceID, idpID,
	).Scan(&template.ID, &template.ResourceOwner, &template.Name, &template.Type,
		&template.State, &config, &template.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-030", "identity provider not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-031", "read identity provider")
	}
	template.Config = json.RawMessage(config)
	return template, nil
}

// IDPUserLink resolves the user linked to an external identity, if any.
func (q *Queries) IDPUserLink(ctx context.Context, instanceID, idpID, externalUserID string) (userID string, err error) {
	err = q.db.QueryRowContext(ctx, `
		SELECT user_id FROM idp_user_links
		WHERE instance_id = ? AND idp_id = ? AND external_user_id = ?`,
		instanceID, idpID, externalUserID,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", apperr.ThrowNotFound(nil, "QUERY-032", "idp link not found")
	}
	if err != nil {
		return "", apperr.ThrowInternal(err, "QUERY-033", "read idp link")
	}
	return userID, nil
}

// IDPIntent is a row of the idp_intents projection.
type IDPIntent struct {
	ID            string
	ResourceOwner string
	IDPID         string
	State         domain.IDPIntentState
	StateToken    string
	SuccessURL    string
	FailureURL    string
	Nonce         string
	CodeVerifier  *crypto.Value
	ExpiresAt     time.Time
	Sequence      uint64
}

// IDPIntentByStateToken resolves the intent addressed by an OAuth callback.
func (q *Queries) IDPIntentByStateToken(ctx context.Context, instanceID, stateToken string) (*IDPIntent, error) {
	intent := new(IDPIntent)
	var verifier string
	var expiresAt int64
	err := q.db.QueryRowContext(ctx, `
		SELECT id, resource_owner, idp_id, state, state_token, success_url, failure_url,
			nonce, code_verifier, expires_at, sequence
		FROM idp_intents WHERE instance_id = ? AND state_token = ?`,
		instanceID, stateToken,
	).Scan(&intent.ID, &intent.ResourceOwner, &intent.IDPID, &intent.State, &intent.StateToken,
		&intent.SuccessURL, &intent.FailureURL, &intent.Nonce, &verifier, &expiresAt, &intent.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-034", "login intent not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-035", "read login intent")
	}
	if verifier != "" && verifier != "null" {
		intent.CodeVerifier = new(crypto.Value)
		if err := json.Unmarshal([]byte(verifier), intent.CodeVerifier); err != nil {
			return nil, apperr.ThrowInternal(err, "QUERY-036", "decode code verifier")
		}
	}
	intent.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return intent, nil
}

// App is a row of the apps projection.
type App struct {
	ID               string
	ProjectID        string
	ResourceOwner    string
	Name             string
	State            domain.AppState
	Type             domain.AppType
	ClientID         string
	ClientSecretHash string
	Config           json.RawMessage
	Sequence         uint64
}

// AppByClientID resolves an application by OIDC/API client id.
func (q *Queries) AppByClientID(ctx context.Context, instanceID, clientID string) (*App, error) {
	app := new(App)
	var config string
	err := q.db.QueryRowContext(ctx, `
		SELECT id, project_id, resource_owner, name, state, app_type,
			client_id, client_secret_hash, config, sequence
		FROM apps WHERE instance_id = ? AND client_id = ?`, instanceID, clientID,
	).Scan(&app.ID, &app.ProjectID, &app.ResourceOwner, &app.Name, &app.State, &app.Type,
		&app.ClientID, &app.ClientSecretHash, &config, &app.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-040", "application not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-041", "read application")
	}
	app.Config = json.RawMessage(config)
	return app, nil
}

// ExecutionTargets returns the stored target list of an execution.
func (q *Queries) ExecutionTargets(ctx context.Context, instanceID, executionID string) (json.RawMessage, error) {
	var targets string
	err := q.db.QueryRowContext(ctx,
		`SELECT targets FROM executions WHERE instance_id = ? AND id = ?`,
		instanceID, executionID,
	).Scan(&targets)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-050", "execution not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-051", "read execution")
	}
	return json.RawMessage(targets), nil
}

// Target is a row of the targets projection.
type Target struct {
	ID               string
	Name             string
	Type             domain.TargetType
	Endpoint         string
	Timeout          time.Duration
	InterruptOnError bool
	SigningKey       *crypto.Value
	Sequence         uint64
}

// TargetByID returns the webhook target or NOT_FOUND.
func (q *Queries) TargetByID(ctx context.Context, instanceID, targetID string) (*Target, error) {
	target := new(Target)
	var timeout int64
	var signingKey string
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, target_type, endpoint, timeout, interrupt_on_error, signing_key, sequence
		FROM targets WHERE instance_id = ? AND id = ?`, instanceID, targetID,
	).Scan(&target.ID, &target.Name, &target.Type, &target.Endpoint, &timeout,
		&target.InterruptOnError, &signingKey, &target.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-052", "target not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-053", "read target")
	}
	target.Timeout = time.Duration(timeout)
	if signingKey != "" && signingKey != "null" {
		target.SigningKey = new(crypto.Value)
		if err := json.Unmarshal([]byte(signingKey), target.SigningKey); err != nil {
			return nil, apperr.ThrowInternal(err, "QUERY-054", "decode signing key")
		}
	}
	return target, nil
}

// PersonalAccessToken is a row of the PAT projection.
type PersonalAccessToken struct {
	ID         string
	UserID     string
	Expiration time.Time
	Scopes     []string
}

// PersonalAccessTokenByDigest verifies a presented token by its SHA-256
// digest. Expired tokens fail with UNAUTHENTICATED.
func (q *Queries) PersonalAccessTokenByDigest(ctx context.Context, instanceID, digest string) (*PersonalAccessToken, error) {
	pat := new(PersonalAccessToken)
	var expiration int64
	var scopes string
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, expiration, scopes
		FROM personal_access_tokens WHERE instance_id = ? AND digest = ?`,
		instanceID, digest,
	).Scan(&pat.ID, &pat.UserID, &expiration, &scopes)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowUnauthenticated(nil, "QUERY-060", "invalid access token")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-061", "read access token")
	}
	pat.Expiration = time.Unix(0, expiration).UTC()
	if time.Now().After(pat.Expiration) {
		return nil, apperr.ThrowUnauthenticated(nil, "QUERY-062", "access token expired")
	}
	if err := json.Unmarshal([]byte(scopes), &pat.Scopes); err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-063", "decode token scopes")
	}
	return pat, nil
}

// SAMLRequest is a row of the saml_requests projection.
type SAMLRequest struct {
	ID          string
	State       domain.SAMLRequestState
	LoginClient string
	Issuer      string
	ACSURL      string
	RelayState  string
	Binding     domain.SAMLBinding
	SessionID   string
	Sequence    uint64
}

// SAMLRequestByID returns the request or NOT_FOUND.
func (q *Queries) SAMLRequestByID(ctx context.Context, instanceID, requestID string) (*SAMLRequest, error) {
	request := new(SAMLRequest)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, state, login_client, issuer, acs_url, relay_state, binding, session_id, sequence
		FROM saml_requests WHERE instance_id = ? AND id = ?`, instanceID, requestID,
	).Scan(&request.ID, &request.State, &request.LoginClient, &request.Issuer,
		&request.ACSURL, &request.RelayState, &request.Binding, &request.SessionID, &request.Sequence)
	if err == sql.ErrNoRows {
		return nil, apperr.ThrowNotFound(nil, "QUERY-070", "saml request not found")
	}
	if err != nil {
		return nil, apperr.ThrowInternal(err, "QUERY-071", "read saml request")
	}
	return request, nil
}
