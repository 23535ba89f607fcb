package command

import (
	"github.com/goliatone/go-bulkedit/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[ApplyBulkMessage]        = (*ApplyBulkCommand)(nil)
	_ gocmd.Commander[RollbackMessage]         = (*RollbackCommand)(nil)
	_ gocmd.Commander[RotateCredentialMessage] = (*RotateCredentialCommand)(nil)
	_ MutatingEngine                           = (*core.Engine)(nil)
)
