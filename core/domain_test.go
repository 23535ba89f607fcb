package core

import (
	"encoding/json"
	"testing"
)

func TestChangeJSON_AcceptsStringsAndNumbers(t *testing.T) {
	var change Change
	if err := json.Unmarshal([]byte(`{"variantId":"gid://shopify/ProductVariant/9","price":19.90,"sku":"AB-1","weight":"2"}`), &change); err != nil {
		t.Fatalf("decode change: %v", err)
	}
	if change.Price.String() != "19.90" {
		t.Fatalf("expected number literal to be kept verbatim, got %q", change.Price.String())
	}
	fields := change.Fields()
	if len(fields) != 3 || fields[0].Name != FieldPrice || fields[1].Name != FieldSKU || fields[2].Name != FieldWeight {
		t.Fatalf("unexpected fields %#v", fields)
	}

	encoded, err := json.Marshal(Change{ItemID: "gid://shopify/ProductVariant/9", SKU: NewFieldValue("AB-1")})
	if err != nil {
		t.Fatalf("encode change: %v", err)
	}
	if string(encoded) != `{"variantId":"gid://shopify/ProductVariant/9","sku":"AB-1"}` {
		t.Fatalf("expected unset fields to be omitted, got %s", encoded)
	}
}

func TestFieldValue_RejectsObjects(t *testing.T) {
	var change Change
	if err := json.Unmarshal([]byte(`{"variantId":"x","price":{"amount":1}}`), &change); err == nil {
		t.Fatalf("expected object price to be rejected")
	}
}
