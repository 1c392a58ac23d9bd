package command

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/crypto"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/idgen"
	"github.com/nordlys-id/nordlys/pkg/password"
	"github.com/nordlys-id/nordlys/pkg/query"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

// ChangePassword validates the candidate against the effective complexity
// policy, hashes it, and resets the failed-attempt counter.
func (c *Commands) ChangePassword(ctx context.Context, orgID, userID, newPassword string, changeRequired bool) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserCredWrite, orgID); err != nil {
		return nil, err
	}
	instanceID := authz.GetInstance(ctx)
	if err := c.validatePasswordPolicy(ctx, instanceID, orgID, newPassword); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user.State == domain.UserStateLocked {
		return nil, apperr.ThrowPreconditionFailed(nil, "USER-080", "user is locked")
	}
	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserPasswordChangedType, authz.GetCtxData(ctx).UserID,
			repository.UserPasswordChangedPayload{Hash: hash, ChangeRequired: changeRequired}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// CheckPassword verifies credentials, records the outcome as an event, and
// locks the user when the lockout policy's attempt budget is exhausted.
// The same UNAUTHENTICATED error is returned for a wrong password and an
// unusable user so callers cannot probe for accounts.
func (c *Commands) CheckPassword(ctx context.Context, orgID, userID, plain string) error {
	user := newUserWriteModel(authz.GetInstance(ctx), orgID, userID)
	if err := user.load(ctx, c.es); err != nil {
		return err
	}
	if !user.State.Exists() || user.State == domain.UserStateLocked || user.State == domain.UserStateInactive {
		return apperr.ThrowUnauthenticated(nil, "USER-081", "invalid credentials")
	}
	creator := authz.GetCtxData(ctx).UserID
	if creator == "" {
		creator = userID
	}

	if err := c.hasher.Compare(user.PasswordHash, plain); err != nil {
		commands := []*eventstore.Command{
			eventstore.NewCommand(user.aggregate(), repository.UserPasswordCheckFailedType, creator, nil),
		}
		policy, _, policyErr := c.lockoutPolicy(ctx, user.InstanceID, orgID)
		if policyErr == nil && policy.MaxPasswordAttempts > 0 &&
			user.FailedPasswordTries+1 >= policy.MaxPasswordAttempts {
			commands = append(commands,
				eventstore.NewCommand(user.aggregate(), repository.UserLockedType, creator, nil))
		}
		if pushErr := c.pushAppendAndReduce(ctx, user, commands...); pushErr != nil {
			c.logger.Warn("recording failed password check", "err", pushErr, "user_id", userID)
		}
		return err
	}
	return c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserPasswordCheckSucceededType, creator, nil))
}

// validatePasswordPolicy enforces the entropy floor plus the effective
// complexity policy (org override, else instance default, else none).
func (c *Commands) validatePasswordPolicy(ctx context.Context, instanceID, orgID, plain string) error {
	if err := password.ValidateStrength(plain); err != nil {
		return err
	}
	if err := c.queries.Trigger(ctx, query.PasswordComplexityPolicyProjectionName); err != nil {
		return err
	}
	policy, _, err := c.queries.PasswordComplexityPolicy(ctx, instanceID, orgID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if ok, missing := policy.Check(plain); !ok {
		return apperr.ThrowInvalidArgument(nil, "USER-082", "password violates complexity policy").
			WithDetail("missing", strings.Join(missing, ","))
	}
	return nil
}

func (c *Commands) lockoutPolicy(ctx context.Context, instanceID, orgID string) (*domain.LockoutPolicy, bool, error) {
	if err := c.queries.Trigger(ctx, query.LockoutPolicyProjectionName); err != nil {
		return nil, false, err
	}
	return c.queries.LockoutPolicy(ctx, instanceID, orgID)
}

// newVerificationCode issues a short numeric code stored encrypted.
// The plaintext is logged at debug level in place of delivery channels.
func (c *Commands) newVerificationCode(ctx context.Context) (*crypto.Value, error) {
	plain, err := idgen.RandomHex(4)
	if err != nil {
		return nil, err
	}
	value, err := c.keeper.EncryptString(ctx, plain)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("verification code issued", "code", plain)
	return value, nil
}

func (c *Commands) checkVerificationCode(ctx context.Context, pending *verificationCode, presented, errID string) error {
	if pending == nil {
		return apperr.ThrowPreconditionFailed(nil, errID, "no verification code pending")
	}
	if pending.expired(c.now()) {
		return apperr.ThrowPreconditionFailed(nil, errID, "verification code expired")
	}
	plain, err := c.keeper.DecryptString(ctx, pending.Code)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(plain), []byte(presented)) != 1 {
		return apperr.ThrowInvalidArgument(nil, errID, "invalid verification code")
	}
	return nil
}
