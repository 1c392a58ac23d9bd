package command

import (
	"context"
	"strings"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

// AddHumanUser is the input for human user creation.
type AddHumanUser struct {
	OrgID     string
	Username  string
	FirstName string
	LastName  string
	NickName  string

	Email         string
	EmailVerified bool
	Phone         string
	PhoneVerified bool

	// Password is optional; when set it must satisfy the effective
	// complexity policy and is stored hashed.
	Password               string
	PasswordChangeRequired bool
	PreferredLanguage      string
	Gender                 domain.Gender
}

// AddHumanUser creates a human user, claiming the org-scoped username.
func (c *Commands) AddHumanUser(ctx context.Context, user *AddHumanUser) (string, *domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionUserWrite, user.OrgID); err != nil {
		return "", nil, err
	}
	user.Username = strings.TrimSpace(user.Username)
	if err := validators.Required(user.OrgID, "orgId", "USER-001"); err != nil {
		return "", nil, err
	}
	if err := validators.Required(user.Username, "username", "USER-002"); err != nil {
		return "", nil, err
	}
	if err := validators.Email(user.Email, "USER-003"); err != nil {
		return "", nil, err
	}
	if user.Phone != "" {
		if err := validators.Phone(user.Phone, "USER-004"); err != nil {
			return "", nil, err
		}
	}
	org := newOrgWriteModel(instanceID, user.OrgID)
	if err := org.load(ctx, c.es); err != nil {
		return "", nil, err
	}
	if !org.State.Exists() {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "USER-005", "org does not exist")
	}

	var passwordHash string
	if user.Password != "" {
		if err := c.validatePasswordPolicy(ctx, instanceID, user.OrgID, user.Password); err != nil {
			return "", nil, err
		}
		var err error
		passwordHash, err = c.hasher.Hash(user.Password)
		if err != nil {
			return "", nil, err
		}
	}

	userID := c.nextID()
	model := newUserWriteModel(instanceID, user.OrgID, userID)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.UserHumanAddedType, authz.GetCtxData(ctx).UserID,
			repository.UserHumanAddedPayload{
				Username:          user.Username,
				FirstName:         user.FirstName,
				LastName:          user.LastName,
				NickName:          user.NickName,
				DisplayName:       displayName(user.FirstName, user.LastName, user.Username),
				PreferredLanguage: user.PreferredLanguage,
				Gender:            user.Gender,
				Email:             strings.ToLower(user.Email),
				EmailVerified:     user.EmailVerified,
				Phone:             user.Phone,
				PhoneVerified:     user.PhoneVerified,
				PasswordHash:      passwordHash,
				ChangeRequired:    user.PasswordChangeRequired,
			},
			eventstore.NewAddUniqueConstraint(repository.UniqueUsername, usernameClaim(user.OrgID, user.Username), "USER-006")))
	if err != nil {
		return "", nil, err
	}
	return userID, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// AddMachineUser creates a service user.
func (c *Commands) AddMachineUser(ctx context.Context, orgID, username, name, description string) (string, *domain.ObjectDetails, error) {
	instanceID := authz.GetInstance(ctx)
	if err := c.checker.CheckPermission(ctx, authz.PermissionUserWrite, orgID); err != nil {
		return "", nil, err
	}
	username = strings.TrimSpace(username)
	if err := validators.Required(username, "username", "USER-010"); err != nil {
		return "", nil, err
	}
	if name == "" {
		name = username
	}
	org := newOrgWriteModel(instanceID, orgID)
	if err := org.load(ctx, c.es); err != nil {
		return "", nil, err
	}
	if !org.State.Exists() {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "USER-011", "org does not exist")
	}
	userID := c.nextID()
	model := newUserWriteModel(instanceID, orgID, userID)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.UserMachineAddedType, authz.GetCtxData(ctx).UserID,
			repository.UserMachineAddedPayload{Username: username, Name: name, Description: description},
			eventstore.NewAddUniqueConstraint(repository.UniqueUsername, usernameClaim(orgID, username), "USER-012")))
	if err != nil {
		return "", nil, err
	}
	return userID, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// ChangeUsername swaps the username claim atomically with the event.
func (c *Commands) ChangeUsername(ctx context.Context, orgID, userID, username string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if err := validators.Required(username, "username", "USER-020"); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == username {
		return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserUsernameChangedType, authz.GetCtxData(ctx).UserID,
			repository.UserUsernameChangedPayload{Username: username, OldUsername: user.Username},
			eventstore.NewRemoveUniqueConstraint(repository.UniqueUsername, usernameClaim(orgID, user.Username)),
			eventstore.NewAddUniqueConstraint(repository.UniqueUsername, usernameClaim(orgID, username), "USER-021")))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// ChangeProfile replaces the human profile.
func (c *Commands) ChangeProfile(ctx context.Context, orgID, userID string, profile *domain.Profile) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user.Type != domain.UserTypeHuman {
		return nil, apperr.ThrowPreconditionFailed(nil, "USER-030", "machine users have no profile")
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserProfileChangedType, authz.GetCtxData(ctx).UserID,
			repository.UserProfileChangedPayload{
				FirstName:         profile.FirstName,
				LastName:          profile.LastName,
				NickName:          profile.NickName,
				DisplayName:       displayName(profile.FirstName, profile.LastName, user.Username),
				PreferredLanguage: profile.PreferredLanguage.String(),
				Gender:            profile.Gender,
			}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// ChangeEmail sets a new, unverified address and issues a verification code
// encrypted at rest. Passing verified true skips the code.
func (c *Commands) ChangeEmail(ctx context.Context, orgID, userID, email string, verified bool) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	if err := validators.Email(email, "USER-040"); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	commands := []*eventstore.Command{
		eventstore.NewCommand(user.aggregate(), repository.UserEmailChangedType, authz.GetCtxData(ctx).UserID,
			repository.UserEmailChangedPayload{Email: email}),
	}
	if verified {
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserEmailVerifiedType, authz.GetCtxData(ctx).UserID, nil))
	} else {
		code, err := c.newVerificationCode(ctx)
		if err != nil {
			return nil, err
		}
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserEmailCodeAddedType, authz.GetCtxData(ctx).UserID,
				repository.UserEmailCodeAddedPayload{Code: code, Expiry: c.codeLifetime}))
	}
	if err := c.pushAppendAndReduce(ctx, user, commands...); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// VerifyEmail checks the pending code.
func (c *Commands) VerifyEmail(ctx context.Context, orgID, userID, code string) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user.EmailVerified {
		return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
	}
	if err := c.checkVerificationCode(ctx, user.EmailCode, code, "USER-041"); err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserEmailVerifiedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// ChangePhone sets a new, unverified number and issues a code.
func (c *Commands) ChangePhone(ctx context.Context, orgID, userID, phone string, verified bool) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	if err := validators.Phone(phone, "USER-050"); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	commands := []*eventstore.Command{
		eventstore.NewCommand(user.aggregate(), repository.UserPhoneChangedType, authz.GetCtxData(ctx).UserID,
			repository.UserPhoneChangedPayload{Phone: phone}),
	}
	if verified {
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserPhoneVerifiedType, authz.GetCtxData(ctx).UserID, nil))
	} else {
		code, err := c.newVerificationCode(ctx)
		if err != nil {
			return nil, err
		}
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserPhoneCodeAddedType, authz.GetCtxData(ctx).UserID,
				repository.UserPhoneCodeAddedPayload{Code: code, Expiry: c.codeLifetime}))
	}
	if err := c.pushAppendAndReduce(ctx, user, commands...); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// VerifyPhone checks the pending code.
func (c *Commands) VerifyPhone(ctx context.Context, orgID, userID, code string) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user.PhoneVerified {
		return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
	}
	if err := c.checkVerificationCode(ctx, user.PhoneCode, code, "USER-051"); err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserPhoneVerifiedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// RemovePhone clears the number.
func (c *Commands) RemovePhone(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	if err := authz.SelfOrPermission(ctx, c.checker, userID, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user.Phone == "" {
		return nil, apperr.ThrowNotFound(nil, "USER-052", "phone not set")
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), repository.UserPhoneRemovedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// DeactivateUser transitions active → inactive.
func (c *Commands) DeactivateUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	return c.userLifecycle(ctx, orgID, userID, repository.UserDeactivatedType,
		func(state domain.UserState) error {
			if state == domain.UserStateInactive {
				return apperr.ThrowPreconditionFailed(nil, "USER-060", "user already inactive")
			}
			return nil
		})
}

// ReactivateUser transitions inactive → active.
func (c *Commands) ReactivateUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	return c.userLifecycle(ctx, orgID, userID, repository.UserReactivatedType,
		func(state domain.UserState) error {
			if state != domain.UserStateInactive {
				return apperr.ThrowPreconditionFailed(nil, "USER-061", "user is not inactive")
			}
			return nil
		})
}

// LockUser blocks authentication until unlocked.
func (c *Commands) LockUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	return c.userLifecycle(ctx, orgID, userID, repository.UserLockedType,
		func(state domain.UserState) error {
			if state == domain.UserStateLocked {
				return apperr.ThrowPreconditionFailed(nil, "USER-062", "user already locked")
			}
			return nil
		})
}

// UnlockUser lifts a lock.
func (c *Commands) UnlockUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	return c.userLifecycle(ctx, orgID, userID, repository.UserUnlockedType,
		func(state domain.UserState) error {
			if state != domain.UserStateLocked {
				return apperr.ThrowPreconditionFailed(nil, "USER-063", "user is not locked")
			}
			return nil
		})
}

func (c *Commands) userLifecycle(ctx context.Context, orgID, userID string, eventType eventstore.EventType, check func(domain.UserState) error) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if err := check(user.State); err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, user,
		eventstore.NewCommand(user.aggregate(), eventType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// RemoveUser deletes the user, releases its username, and cascades the
// removal of its external identity links in the same push.
func (c *Commands) RemoveUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionUserWrite, orgID); err != nil {
		return nil, err
	}
	user, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	creator := authz.GetCtxData(ctx).UserID
	commands := make([]*eventstore.Command, 0, 1+len(user.IDPLinks))
	for _, link := range user.IDPLinks {
		commands = append(commands,
			eventstore.NewCommand(user.aggregate(), repository.UserIDPLinkCascadeRemovedType, creator, link))
	}
	commands = append(commands,
		eventstore.NewCommand(user.aggregate(), repository.UserRemovedType, creator,
			repository.UserRemovedPayload{Username: user.Username},
			eventstore.NewRemoveUniqueConstraint(repository.UniqueUsername, usernameClaim(orgID, user.Username))))
	if err := c.pushAppendAndReduce(ctx, user, commands...); err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&user.WriteModel), nil
}

// existingUser loads the write model and requires a live user.
func (c *Commands) existingUser(ctx context.Context, orgID, userID string) (*userWriteModel, error) {
	user := newUserWriteModel(authz.GetInstance(ctx), orgID, userID)
	if err := user.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !user.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "USER-070", "user does not exist")
	}
	return user, nil
}

func displayName(first, last, username string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return username
	}
	return name
}
