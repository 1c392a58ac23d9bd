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

type projectWriteModel struct {
	eventstore.WriteModel

	State domain.ProjectState
	Name  string
	// Roles by key.
	Roles map[string]repository.ProjectRolePayload
}

func newProjectWriteModel(instanceID, orgID, projectID string) *projectWriteModel {
	return &projectWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   projectID,
			ResourceOwner: orgID,
			InstanceID:    instanceID,
		},
		Roles: map[string]repository.ProjectRolePayload{},
	}
}

func (wm *projectWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.ProjectAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *projectWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.ProjectAddedType:
			var payload repository.ProjectAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.ProjectStateActive
			wm.Name = payload.Name

		case repository.ProjectChangedType:
			var payload repository.ProjectChangedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			if payload.Name != nil {
				wm.Name = *payload.Name
			}

		case repository.ProjectDeactivatedType:
			wm.State = domain.ProjectStateInactive
		case repository.ProjectReactivatedType:
			wm.State = domain.ProjectStateActive
		case repository.ProjectRemovedType:
			wm.State = domain.ProjectStateRemoved

		case repository.ProjectRoleAddedType, repository.ProjectRoleChangedType:
			var payload repository.ProjectRolePayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.Roles[payload.Key] = payload

		case repository.ProjectRoleRemovedType:
			var payload repository.ProjectRoleRemovedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			delete(wm.Roles, payload.Key)
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *projectWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.ProjectAggregate)
}

// AddProject input.
type AddProject struct {
	OrgID                  string
	Name                   string
	ProjectRoleAssertion   bool
	ProjectRoleCheck       bool
	HasProjectCheck        bool
	PrivateLabelingSetting domain.PrivateLabelingSetting
}

// AddProject creates a project in the org.
func (c *Commands) AddProject(ctx context.Context, project *AddProject) (string, *domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, project.OrgID); err != nil {
		return "", nil, err
	}
	project.Name = strings.TrimSpace(project.Name)
	if err := validators.Required(project.Name, "name", "PROJ-101"); err != nil {
		return "", nil, err
	}
	instanceID := authz.GetInstance(ctx)
	org := newOrgWriteModel(instanceID, project.OrgID)
	if err := org.load(ctx, c.es); err != nil {
		return "", nil, err
	}
	if !org.State.Exists() {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "PROJ-102", "org does not exist")
	}
	projectID := c.nextID()
	model := newProjectWriteModel(instanceID, project.OrgID, projectID)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.ProjectAddedType, authz.GetCtxData(ctx).UserID,
			repository.ProjectAddedPayload{
				Name:                   project.Name,
				ProjectRoleAssertion:   project.ProjectRoleAssertion,
				ProjectRoleCheck:       project.ProjectRoleCheck,
				HasProjectCheck:        project.HasProjectCheck,
				PrivateLabelingSetting: project.PrivateLabelingSetting,
			}))
	if err != nil {
		return "", nil, err
	}
	return projectID, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// ChangeProject patches project settings; nil fields stay untouched.
func (c *Commands) ChangeProject(ctx context.Context, orgID, projectID string, changes *repository.ProjectChangedPayload) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if changes == nil || *changes == (repository.ProjectChangedPayload{}) {
		return nil, apperr.ThrowInvalidArgument(nil, "PROJ-110", "no changes")
	}
	if changes.Name != nil && strings.TrimSpace(*changes.Name) == "" {
		return nil, apperr.ThrowInvalidArgument(nil, "PROJ-111", "name must not be empty")
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectChangedType, authz.GetCtxData(ctx).UserID, changes))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

// DeactivateProject transitions active → inactive.
func (c *Commands) DeactivateProject(ctx context.Context, orgID, projectID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if project.State == domain.ProjectStateInactive {
		return nil, apperr.ThrowPreconditionFailed(nil, "PROJ-120", "project already inactive")
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectDeactivatedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

// ReactivateProject transitions inactive → active.
func (c *Commands) ReactivateProject(ctx context.Context, orgID, projectID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if project.State != domain.ProjectStateInactive {
		return nil, apperr.ThrowPreconditionFailed(nil, "PROJ-121", "project is not inactive")
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectReactivatedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

// RemoveProject removes the project terminally.
func (c *Commands) RemoveProject(ctx context.Context, orgID, projectID string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectRemovedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

// AddProjectRole registers a role key on the project.
func (c *Commands) AddProjectRole(ctx context.Context, orgID, projectID, key, displayName, group string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	if err := validators.Required(key, "key", "PROJ-130"); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if _, ok := project.Roles[key]; ok {
		return nil, apperr.ThrowAlreadyExists(nil, "PROJ-131", "role already exists")
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectRoleAddedType, authz.GetCtxData(ctx).UserID,
			repository.ProjectRolePayload{Key: key, DisplayName: displayName, Group: group}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

// ChangeProjectRole updates display name and group of a role.
func (c *Commands) ChangeProjectRole(ctx context.Context, orgID, projectID, key, displayName, group string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if _, ok := project.Roles[key]; !ok {
		return nil, apperr.ThrowNotFound(nil, "PROJ-132", "role not found")
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectRoleChangedType, authz.GetCtxData(ctx).UserID,
			repository.ProjectRolePayload{Key: key, DisplayName: displayName, Group: group}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

// RemoveProjectRole drops a role key.
func (c *Commands) RemoveProjectRole(ctx context.Context, orgID, projectID, key string) (*domain.ObjectDetails, error) {
	if err := c.checker.CheckPermission(ctx, authz.PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}
	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if _, ok := project.Roles[key]; !ok {
		return nil, apperr.ThrowNotFound(nil, "PROJ-133", "role not found")
	}
	err = c.pushAppendAndReduce(ctx, project,
		eventstore.NewCommand(project.aggregate(), repository.ProjectRoleRemovedType, authz.GetCtxData(ctx).UserID,
			repository.ProjectRoleRemovedPayload{Key: key}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&project.WriteModel), nil
}

func (c *Commands) existingProject(ctx context.Context, orgID, projectID string) (*projectWriteModel, error) {
	project := newProjectWriteModel(authz.GetInstance(ctx), orgID, projectID)
	if err := project.load(ctx, c.es); err != nil {
		return nil, err
	}
	if !project.State.Exists() {
		return nil, apperr.ThrowNotFound(nil, "PROJ-100", "project does not exist")
	}
	return project, nil
}
