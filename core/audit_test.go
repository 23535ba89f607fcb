package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNewRunRecord_ChecksumCoversChangesOnly(t *testing.T) {
	changes := testChanges(2)
	first, err := NewRunRecord(RunRecordInput{
		Shop:    "demo.myshopify.com",
		Changes: changes,
		Results: []OperationResult{{ItemID: changes[0].ItemID, OK: true}},
	})
	if err != nil {
		t.Fatalf("new run record: %v", err)
	}
	second, err := NewRunRecord(RunRecordInput{
		Shop:    "demo.myshopify.com",
		Changes: changes,
		Results: []OperationResult{{ItemID: changes[0].ItemID, OK: false, Errors: []UserError{{Message: "x"}}}},
	})
	if err != nil {
		t.Fatalf("new run record: %v", err)
	}
	if first.Checksum != second.Checksum {
		t.Fatalf("expected checksum to ignore results")
	}
	if len(first.Checksum) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %q", first.Checksum)
	}
	payload, _ := json.Marshal(changes)
	if first.Checksum != Checksum(payload) {
		t.Fatalf("expected checksum over serialized changes")
	}
	if first.Description != DefaultDescription {
		t.Fatalf("expected default description, got %q", first.Description)
	}
	if first.SuccessCount != 1 || second.ErrorCount != 1 {
		t.Fatalf("unexpected counts %#v %#v", first, second)
	}
}

func TestNewRunRecord_TruncatesPayloadOnRuneBoundary(t *testing.T) {
	changes := []Change{{ItemID: "gid://shopify/ProductVariant/1", SKU: NewFieldValue(strings.Repeat("é", 100))}}
	full, _ := json.Marshal(changes)

	record, err := NewRunRecord(RunRecordInput{
		Shop:            "demo.myshopify.com",
		Changes:         changes,
		MaxPayloadBytes: 64,
		CreatedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("new run record: %v", err)
	}
	if !record.PayloadTruncated {
		t.Fatalf("expected payload to be truncated")
	}
	if len(record.PayloadJSON) > 64 {
		t.Fatalf("expected at most 64 bytes, got %d", len(record.PayloadJSON))
	}
	if !utf8.ValidString(record.PayloadJSON) {
		t.Fatalf("expected truncated payload to remain valid utf-8")
	}
	if record.Checksum != Checksum(full) {
		t.Fatalf("expected checksum over the untruncated payload")
	}
}

func TestNewRunRecord_RequiresShop(t *testing.T) {
	if _, err := NewRunRecord(RunRecordInput{Changes: testChanges(1)}); err != ErrMissingShop {
		t.Fatalf("expected missing shop error, got %v", err)
	}
}
