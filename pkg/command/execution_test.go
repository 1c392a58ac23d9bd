package command_test

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/command"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/repository"
)

func (f *fixture) addTarget(t *testing.T, name string) *command.AddedTarget {
	t.Helper()
	target, err := f.AddTarget(f.ctx, &command.AddTarget{
		Name:       name,
		TargetType: domain.TargetTypeWebhook,
		Endpoint:   "https://hooks.example.com/" + name,
		Timeout:    10 * time.Second,
	})
	require.NoError(t, err)
	return target
}

func TestAddTarget(t *testing.T) {
	f := newFixture(t)

	target := f.addTarget(t, "audit-log")
	assert.NotEmpty(t, target.TargetID)

	// The signing key is 32 bytes, handed out exactly once.
	key, err := base64.StdEncoding.DecodeString(target.SigningKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	// Target names are claimed instance-wide.
	_, err = f.AddTarget(f.ctx, &command.AddTarget{
		Name:       "audit-log",
		TargetType: domain.TargetTypeWebhook,
		Endpoint:   "https://hooks.example.com/other",
		Timeout:    10 * time.Second,
	})
	assert.True(t, apperr.IsAlreadyExists(err))

	// Removal releases the claim.
	_, err = f.RemoveTarget(f.ctx, target.TargetID)
	require.NoError(t, err)
	f.addTarget(t, "audit-log")
}

func TestTargetTimeoutBounds(t *testing.T) {
	f := newFixture(t)

	for _, timeout := range []time.Duration{0, -time.Second, 6 * time.Minute} {
		_, err := f.AddTarget(f.ctx, &command.AddTarget{
			Name:       "t",
			TargetType: domain.TargetTypeWebhook,
			Endpoint:   "https://hooks.example.com/t",
			Timeout:    timeout,
		})
		assert.True(t, apperr.IsInvalidArgument(err), "timeout %v", timeout)
	}
}

func TestRotateTargetSigningKey(t *testing.T) {
	f := newFixture(t)
	target := f.addTarget(t, "audit-log")

	key, _, err := f.RotateTargetSigningKey(f.ctx, target.TargetID)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.NotEqual(t, target.SigningKey, key)
}

func TestChangeTargetRename(t *testing.T) {
	f := newFixture(t)
	target := f.addTarget(t, "audit-log")

	name := "compliance-log"
	_, err := f.ChangeTarget(f.ctx, target.TargetID, &repository.TargetChangedPayload{Name: &name})
	require.NoError(t, err)

	// The old name is free again.
	f.addTarget(t, "audit-log")
}

func TestSetExecution(t *testing.T) {
	f := newFixture(t)
	target := f.addTarget(t, "audit-log")

	_, err := f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: "bogus",
		Condition:     "v1.users.add",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindTarget, Target: target.TargetID}},
	})
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "v1.users.add",
	})
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "v1.users.add",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindTarget, Target: "missing"}},
	})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "v1.users.add",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindTarget, Target: target.TargetID}},
	})
	require.NoError(t, err)

	_, err = f.DeleteExecution(f.ctx, domain.ExecutionTypeRequest, "v1.users.add")
	require.NoError(t, err)
	_, err = f.DeleteExecution(f.ctx, domain.ExecutionTypeRequest, "v1.users.add")
	assert.True(t, apperr.IsNotFound(err))
}

func TestExecutionIncludeChain(t *testing.T) {
	f := newFixture(t)
	target := f.addTarget(t, "audit-log")

	// chain-0 calls the target; chain-1..3 each include the previous one.
	setCondition := func(condition string, ref repository.ExecutionTargetRef) error {
		_, err := f.SetExecution(f.ctx, &command.SetExecution{
			ExecutionType: domain.ExecutionTypeRequest,
			Condition:     condition,
			Targets:       []repository.ExecutionTargetRef{ref},
		})
		return err
	}
	require.NoError(t, setCondition("chain-0",
		repository.ExecutionTargetRef{Kind: repository.ExecutionTargetKindTarget, Target: target.TargetID}))
	for i := 1; i <= 3; i++ {
		require.NoError(t, setCondition(fmt.Sprintf("chain-%d", i),
			repository.ExecutionTargetRef{
				Kind:   repository.ExecutionTargetKindInclude,
				Target: fmt.Sprintf("request/chain-%d", i-1),
			}))
	}

	// A fourth include hop exceeds the depth bound.
	err := setCondition("chain-4", repository.ExecutionTargetRef{
		Kind:   repository.ExecutionTargetKindInclude,
		Target: "request/chain-3",
	})
	assert.True(t, apperr.IsPreconditionFailed(err))
}

func TestExecutionIncludeCycles(t *testing.T) {
	f := newFixture(t)
	target := f.addTarget(t, "audit-log")

	_, err := f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "a",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindTarget, Target: target.TargetID}},
	})
	require.NoError(t, err)

	// Direct self include.
	_, err = f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "b",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindInclude, Target: "request/b"}},
	})
	assert.True(t, apperr.IsPreconditionFailed(err))

	// a <- b, then closing the loop b <- a is refused.
	_, err = f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "b",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindInclude, Target: "request/a"}},
	})
	require.NoError(t, err)
	_, err = f.SetExecution(f.ctx, &command.SetExecution{
		ExecutionType: domain.ExecutionTypeRequest,
		Condition:     "a",
		Targets:       []repository.ExecutionTargetRef{{Kind: repository.ExecutionTargetKindInclude, Target: "request/b"}},
	})
	assert.True(t, apperr.IsPreconditionFailed(err))
}
