package command

import (
	"strings"

	"github.com/goliatone/go-bulkedit/core"
)

const (
	TypeApplyBulk        = "bulkedit.command.apply"
	TypeRollback         = "bulkedit.command.rollback"
	TypeRotateCredential = "bulkedit.command.credential.rotate"
)

type ApplyBulkMessage struct {
	Request core.ApplyRequest
}

func (ApplyBulkMessage) Type() string { return TypeApplyBulk }

func (m ApplyBulkMessage) Validate() error {
	if strings.TrimSpace(m.Request.Shop) == "" {
		return commandValidationError("shop", "shop is required")
	}
	if len(m.Request.Changes) == 0 {
		return commandValidationError("changes", "no changes")
	}
	return nil
}

type RollbackMessage struct {
	Shop string
}

func (RollbackMessage) Type() string { return TypeRollback }

func (m RollbackMessage) Validate() error {
	if strings.TrimSpace(m.Shop) == "" {
		return commandValidationError("shop", "shop is required")
	}
	return nil
}

type RotateCredentialMessage struct {
	Request core.RotateCredentialRequest
}

func (RotateCredentialMessage) Type() string { return TypeRotateCredential }

func (m RotateCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Request.Shop) == "" {
		return commandValidationError("shop", "shop is required")
	}
	if m.Request.KeyVersion <= 0 {
		return commandValidationError("key_version", "key version must be positive")
	}
	return nil
}
