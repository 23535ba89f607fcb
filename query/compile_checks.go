package query

import (
	"github.com/goliatone/go-bulkedit/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[PreviewMessage, []core.PreviewNote] = (*PreviewQuery)(nil)
	_ gocmd.Querier[LatestRunMessage, core.RunRecord]   = (*LatestRunQuery)(nil)
	_ PreviewReader                                     = (*core.Engine)(nil)
	_ RunReader                                         = (*core.Engine)(nil)
)
