package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestPlan_SeventyFiveChangesMakeThreeBatches(t *testing.T) {
	batches, err := Plan(testChanges(75), 25)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, batch := range batches {
		if batch.Index != i {
			t.Fatalf("expected batch index %d, got %d", i, batch.Index)
		}
		if batch.Len() != 25 {
			t.Fatalf("expected 25 changes in batch %d, got %d", i, batch.Len())
		}
		if batch.Offset != i*25 {
			t.Fatalf("expected offset %d, got %d", i*25, batch.Offset)
		}
	}
}

func TestPlan_PartitionsAndPreservesOrder(t *testing.T) {
	for n := 0; n <= 23; n++ {
		for c := 1; c <= 7; c++ {
			changes := testChanges(n)
			batches, err := Plan(changes, c)
			if err != nil {
				t.Fatalf("plan n=%d c=%d: %v", n, c, err)
			}
			expected := (n + c - 1) / c
			if len(batches) != expected {
				t.Fatalf("n=%d c=%d: expected %d batches, got %d", n, c, expected, len(batches))
			}
			joined := make([]Change, 0, n)
			for i, batch := range batches {
				if batch.Len() == 0 {
					t.Fatalf("n=%d c=%d: empty batch %d", n, c, i)
				}
				if i < len(batches)-1 && batch.Len() != c {
					t.Fatalf("n=%d c=%d: batch %d has %d changes", n, c, i, batch.Len())
				}
				joined = append(joined, batch.Changes...)
			}
			if !reflect.DeepEqual(joined, changes) {
				t.Fatalf("n=%d c=%d: concatenated batches differ from input", n, c)
			}
		}
	}
}

func TestPlan_RejectsNonPositiveChunkSize(t *testing.T) {
	if _, err := Plan(testChanges(3), 0); !errors.Is(err, ErrInvalidChunkSize) {
		t.Fatalf("expected invalid chunk size error, got %v", err)
	}
}

func TestBuildRequest_KeysByPositionAndOmitsUnsetFields(t *testing.T) {
	batch := Batch{
		Index:  1,
		Offset: 25,
		Changes: []Change{
			{ItemID: "gid://shopify/ProductVariant/1", Price: NewFieldValue("10.00")},
			{ItemID: "gid://shopify/ProductVariant/2", SKU: NewFieldValue("SKU-2"), Weight: NewFieldValue("1.5")},
			{ItemID: "gid://shopify/ProductVariant/3", Price: NewFieldValue("3"), SKU: NewFieldValue("S3"), Weight: NewFieldValue("0")},
		},
	}
	req, err := BuildRequest(batch)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if req.BatchIndex != 1 {
		t.Fatalf("expected batch index 1, got %d", req.BatchIndex)
	}
	if got := req.Keys(); !reflect.DeepEqual(got, []string{"v0", "v1", "v2"}) {
		t.Fatalf("unexpected keys %v", got)
	}
	if fields := req.Operations[0].Fields; len(fields) != 1 || fields[0].Name != FieldPrice {
		t.Fatalf("expected only price on v0, got %#v", fields)
	}
	if fields := req.Operations[1].Fields; len(fields) != 2 || fields[0].Name != FieldSKU || fields[1].Name != FieldWeight {
		t.Fatalf("expected sku and weight on v1, got %#v", fields)
	}
	if len(req.Operations[2].Fields) != 3 {
		t.Fatalf("expected three fields on v2, got %#v", req.Operations[2].Fields)
	}
	if req.Operations[1].ItemID != "gid://shopify/ProductVariant/2" {
		t.Fatalf("unexpected item id %q", req.Operations[1].ItemID)
	}
}

func TestBuildRequest_RejectsChangeWithoutFields(t *testing.T) {
	batch := Batch{Changes: []Change{{ItemID: "gid://shopify/ProductVariant/1"}}}
	if _, err := BuildRequest(batch); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected no fields error, got %v", err)
	}
}
