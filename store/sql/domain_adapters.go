package sqlstore

import (
	"time"

	"github.com/goliatone/go-bulkedit/core"
)

func (r *shopCredentialRecord) toDomain() core.CredentialBlob {
	if r == nil {
		return core.CredentialBlob{}
	}
	return core.CredentialBlob{
		Shop:       r.Shop,
		Blob:       r.AccessTokenBlob,
		KeyVersion: r.KeyVersion,
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func newRunRecord(in core.RunRecord, id string, now time.Time) *runRecord {
	createdAt := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		createdAt = now
	}
	return &runRecord{
		ID:               id,
		Shop:             in.Shop,
		Description:      in.Description,
		PayloadJSON:      in.PayloadJSON,
		ResultsJSON:      in.ResultsJSON,
		Checksum:         in.Checksum,
		PayloadTruncated: in.PayloadTruncated,
		SuccessCount:     in.SuccessCount,
		ErrorCount:       in.ErrorCount,
		Total:            in.Total,
		ChunkCount:       in.ChunkCount,
		CreatedAt:        createdAt,
	}
}

func (r *runRecord) toDomain() core.RunRecord {
	if r == nil {
		return core.RunRecord{}
	}
	return core.RunRecord{
		ID:               r.ID,
		Shop:             r.Shop,
		Description:      r.Description,
		PayloadJSON:      r.PayloadJSON,
		ResultsJSON:      r.ResultsJSON,
		Checksum:         r.Checksum,
		PayloadTruncated: r.PayloadTruncated,
		SuccessCount:     r.SuccessCount,
		ErrorCount:       r.ErrorCount,
		Total:            r.Total,
		ChunkCount:       r.ChunkCount,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}
