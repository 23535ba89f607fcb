package query

import (
	"strings"

	"github.com/goliatone/go-bulkedit/core"
)

const (
	TypePreview   = "bulkedit.query.preview"
	TypeLatestRun = "bulkedit.query.run.latest"
)

type PreviewMessage struct {
	Changes []core.Change
}

func (PreviewMessage) Type() string { return TypePreview }

func (m PreviewMessage) Validate() error {
	if m.Changes == nil {
		return queryValidationError("changes", "changes are required")
	}
	return nil
}

type LatestRunMessage struct {
	Shop string
}

func (LatestRunMessage) Type() string { return TypeLatestRun }

func (m LatestRunMessage) Validate() error {
	if strings.TrimSpace(m.Shop) == "" {
		return queryValidationError("shop", "shop is required")
	}
	return nil
}
