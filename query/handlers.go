package query

import (
	"context"

	"github.com/goliatone/go-bulkedit/core"
)

type PreviewReader interface {
	Preview(ctx context.Context, changes []core.Change) []core.PreviewNote
}

type RunReader interface {
	LatestRun(ctx context.Context, shop string) (core.RunRecord, error)
}

type PreviewQuery struct {
	reader PreviewReader
}

func NewPreviewQuery(reader PreviewReader) *PreviewQuery {
	return &PreviewQuery{reader: reader}
}

func (q *PreviewQuery) Query(ctx context.Context, msg PreviewMessage) ([]core.PreviewNote, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: preview reader is required")
	}
	return q.reader.Preview(ctx, msg.Changes), nil
}

type LatestRunQuery struct {
	reader RunReader
}

func NewLatestRunQuery(reader RunReader) *LatestRunQuery {
	return &LatestRunQuery{reader: reader}
}

func (q *LatestRunQuery) Query(ctx context.Context, msg LatestRunMessage) (core.RunRecord, error) {
	if q == nil || q.reader == nil {
		return core.RunRecord{}, queryDependencyError("query: run reader is required")
	}
	return q.reader.LatestRun(ctx, msg.Shop)
}
