package command

import (
	"context"

	"github.com/goliatone/go-bulkedit/core"
	gocmd "github.com/goliatone/go-command"
)

type MutatingEngine interface {
	Apply(ctx context.Context, req core.ApplyRequest) (core.ApplyResult, error)
	Rollback(ctx context.Context, shop string) error
	RotateCredential(ctx context.Context, req core.RotateCredentialRequest) (core.RotateCredentialResult, error)
}

type ApplyBulkCommand struct {
	engine MutatingEngine
}

func NewApplyBulkCommand(engine MutatingEngine) *ApplyBulkCommand {
	return &ApplyBulkCommand{engine: engine}
}

// Execute stores the apply result even when a batch failure stopped the run,
// so callers can report the partial outcome next to the error.
func (c *ApplyBulkCommand) Execute(ctx context.Context, msg ApplyBulkMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: apply engine is required")
	}
	out, err := c.engine.Apply(ctx, msg.Request)
	if out.Total > 0 || out.BatchID != "" {
		storeResult(ctx, out)
	}
	return err
}

type RollbackCommand struct {
	engine MutatingEngine
}

func NewRollbackCommand(engine MutatingEngine) *RollbackCommand {
	return &RollbackCommand{engine: engine}
}

func (c *RollbackCommand) Execute(ctx context.Context, msg RollbackMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: rollback engine is required")
	}
	return c.engine.Rollback(ctx, msg.Shop)
}

type RotateCredentialCommand struct {
	engine MutatingEngine
}

func NewRotateCredentialCommand(engine MutatingEngine) *RotateCredentialCommand {
	return &RotateCredentialCommand{engine: engine}
}

func (c *RotateCredentialCommand) Execute(ctx context.Context, msg RotateCredentialMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: rotate credential engine is required")
	}
	out, err := c.engine.RotateCredential(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
