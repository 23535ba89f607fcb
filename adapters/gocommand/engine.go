package gocommand

import (
	"fmt"

	"github.com/goliatone/go-bulkedit/command"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/query"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// Subscriptions holds the dispatcher handles created by RegisterEngine.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterEngine wires the bulk edit commands and queries for engine into the
// registry and the global dispatcher.
func RegisterEngine(adapter *RegistryAdapter, engine *core.Engine, runnerOpts ...runner.Option) (Subscriptions, error) {
	if engine == nil {
		return nil, fmt.Errorf("gocommand: engine is required")
	}
	subs := Subscriptions{}
	register := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if err := register(RegisterAndSubscribe[command.ApplyBulkMessage](adapter, command.NewApplyBulkCommand(engine), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[command.RollbackMessage](adapter, command.NewRollbackCommand(engine), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe[command.RotateCredentialMessage](adapter, command.NewRotateCredentialCommand(engine), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery[query.PreviewMessage, []core.PreviewNote](adapter, query.NewPreviewQuery(engine), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery[query.LatestRunMessage, core.RunRecord](adapter, query.NewLatestRunQuery(engine), runnerOpts...)); err != nil {
		return nil, err
	}
	return subs, nil
}
