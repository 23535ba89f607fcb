package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type RunRecordInput struct {
	Shop            string
	Description     string
	Changes         []Change
	Results         []OperationResult
	ChunkCount      int
	MaxPayloadBytes int
	CreatedAt       time.Time
}

// NewRunRecord builds the immutable audit record for one run. The checksum
// covers the full serialized change list even when the stored payload is
// truncated.
func NewRunRecord(input RunRecordInput) (RunRecord, error) {
	shop := strings.TrimSpace(input.Shop)
	if shop == "" {
		return RunRecord{}, ErrMissingShop
	}
	changes := input.Changes
	if changes == nil {
		changes = []Change{}
	}
	results := input.Results
	if results == nil {
		results = []OperationResult{}
	}

	payload, err := json.Marshal(changes)
	if err != nil {
		return RunRecord{}, fmt.Errorf("core: serialize changes: %w", err)
	}
	encodedResults, err := json.Marshal(results)
	if err != nil {
		return RunRecord{}, fmt.Errorf("core: serialize results: %w", err)
	}

	maxBytes := input.MaxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	stored, truncated := truncatePayload(string(payload), maxBytes)

	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = DefaultDescription
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var totals Totals
	totals.Add(results)

	return RunRecord{
		Shop:             shop,
		Description:      description,
		PayloadJSON:      stored,
		ResultsJSON:      string(encodedResults),
		Checksum:         Checksum(payload),
		PayloadTruncated: truncated,
		SuccessCount:     totals.Success,
		ErrorCount:       totals.Failed,
		Total:            totals.Processed,
		ChunkCount:       input.ChunkCount,
		CreatedAt:        createdAt.UTC(),
	}, nil
}

func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// truncatePayload cuts value to at most maxBytes without splitting a UTF-8
// sequence.
func truncatePayload(value string, maxBytes int) (string, bool) {
	if len(value) <= maxBytes {
		return value, false
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut], true
}
