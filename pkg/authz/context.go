// Package authz carries the request context (instance, org, user, roles)
// and the permission checks every command runs before mutating state.
package authz

import (
	"context"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// CtxData identifies who is acting and in which tenant scope. It is
// required on every command.
type CtxData struct {
	InstanceID string
	OrgID      string
	UserID     string
	Roles      []string
	RequestID  string
}

// SystemUserID is the creator recorded for system-context commands.
const SystemUserID = "system"

// RoleSystem bypasses all permission checks.
const RoleSystem = "SYSTEM"

type contextKey string

const ctxDataKey contextKey = "authz_ctx_data"

// WithCtxData attaches request identity to the context.
func WithCtxData(ctx context.Context, data CtxData) context.Context {
	return context.WithValue(ctx, ctxDataKey, data)
}

// GetCtxData retrieves the request identity. Missing identity means the
// caller skipped the façade; treat it as empty rather than panicking.
func GetCtxData(ctx context.Context) CtxData {
	data, _ := ctx.Value(ctxDataKey).(CtxData)
	return data
}

// GetInstance returns the instance id of the request.
func GetInstance(ctx context.Context) string {
	return GetCtxData(ctx).InstanceID
}

// NewSystemContext returns a context acting as the system user of instance.
func NewSystemContext(ctx context.Context, instanceID string) context.Context {
	return WithCtxData(ctx, CtxData{
		InstanceID: instanceID,
		OrgID:      instanceID,
		UserID:     SystemUserID,
		Roles:      []string{RoleSystem},
	})
}

// CheckInstance validates that a request carries an instance scope.
func CheckInstance(ctx context.Context) error {
	if GetCtxData(ctx).InstanceID == "" {
		return apperr.ThrowUnauthenticated(nil, "AUTHZ-001", "instance not set on request")
	}
	return nil
}
