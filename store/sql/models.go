package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type shopCredentialRecord struct {
	bun.BaseModel `bun:"table:bulkedit_shop_credentials,alias:bsc"`

	ID              string    `bun:"id,pk"`
	Shop            string    `bun:"shop,notnull"`
	AccessTokenBlob string    `bun:"access_token_blob,notnull"`
	KeyVersion      int       `bun:"key_version,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type runRecord struct {
	bun.BaseModel `bun:"table:bulkedit_runs,alias:br"`

	ID               string    `bun:"id,pk"`
	Shop             string    `bun:"shop,notnull"`
	Description      string    `bun:"description,notnull"`
	PayloadJSON      string    `bun:"payload_json,notnull"`
	ResultsJSON      string    `bun:"results_json,notnull"`
	Checksum         string    `bun:"checksum,notnull"`
	PayloadTruncated bool      `bun:"payload_truncated,notnull"`
	SuccessCount     int       `bun:"success_count,notnull"`
	ErrorCount       int       `bun:"error_count,notnull"`
	Total            int       `bun:"total,notnull"`
	ChunkCount       int       `bun:"chunk_count,notnull"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
