package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
)

func TestCtxDataRoundTrip(t *testing.T) {
	ctx := authz.WithCtxData(context.Background(), authz.CtxData{
		InstanceID: "i1",
		OrgID:      "o1",
		UserID:     "u1",
		Roles:      []string{"ORG_OWNER"},
	})

	data := authz.GetCtxData(ctx)
	assert.Equal(t, "i1", data.InstanceID)
	assert.Equal(t, "o1", data.OrgID)
	assert.Equal(t, "u1", data.UserID)

	assert.Empty(t, authz.GetCtxData(context.Background()).InstanceID)
}

func TestSystemContext(t *testing.T) {
	ctx := authz.NewSystemContext(context.Background(), "i1")
	data := authz.GetCtxData(ctx)

	assert.Equal(t, "i1", data.InstanceID)
	assert.Equal(t, "i1", data.OrgID)
	assert.Equal(t, authz.SystemUserID, data.UserID)

	checker := authz.NewRolePermissionChecker(nil)
	assert.NoError(t, checker.CheckPermission(ctx, authz.PermissionInstanceWrite, "i1"))
}

func TestCheckPermission(t *testing.T) {
	checker := authz.NewRolePermissionChecker(nil)

	tests := []struct {
		name       string
		roles      []string
		permission string
		wantDenied bool
	}{
		{"org owner writes users", []string{"ORG_OWNER"}, authz.PermissionUserWrite, false},
		{"org owner cannot write instance", []string{"ORG_OWNER"}, authz.PermissionInstanceWrite, true},
		{"user manager writes users", []string{"ORG_USER_MANAGER"}, authz.PermissionUserWrite, false},
		{"user manager cannot write projects", []string{"ORG_USER_MANAGER"}, authz.PermissionProjectWrite, true},
		{"no roles denied", nil, authz.PermissionUserWrite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := authz.WithCtxData(context.Background(), authz.CtxData{
				InstanceID: "i1", OrgID: "o1", UserID: "u1", Roles: tt.roles,
			})
			err := checker.CheckPermission(ctx, tt.permission, "o1")
			if tt.wantDenied {
				assert.True(t, apperr.IsPermissionDenied(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSelfOrPermission(t *testing.T) {
	checker := authz.NewRolePermissionChecker(nil)
	ctx := authz.WithCtxData(context.Background(), authz.CtxData{
		InstanceID: "i1", OrgID: "o1", UserID: "u1",
	})

	assert.NoError(t, authz.SelfOrPermission(ctx, checker, "u1", authz.PermissionUserWrite, "o1"))
	assert.Error(t, authz.SelfOrPermission(ctx, checker, "u2", authz.PermissionUserWrite, "o1"))
}
