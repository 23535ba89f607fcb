package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultChunkSize       = 25
	DefaultMaxPayloadBytes = 500000
	DefaultDescription     = "bulk update"

	SubOperationKeyPrefix = "v"
)

type FieldName string

const (
	FieldPrice  FieldName = "price"
	FieldSKU    FieldName = "sku"
	FieldWeight FieldName = "weight"
)

// FieldValue keeps the operator supplied value verbatim. JSON numbers and
// strings are both accepted so numeric columns exported from spreadsheets
// survive the round trip.
type FieldValue string

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("core: empty field value")
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("core: decode field value: %w", err)
		}
		*v = FieldValue(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("core: field value must be a string or number")
	}
	*v = FieldValue(number.String())
	return nil
}

func (v FieldValue) String() string {
	return string(v)
}

func NewFieldValue(value string) *FieldValue {
	fv := FieldValue(value)
	return &fv
}

type FieldUpdate struct {
	Name  FieldName
	Value string
}

type Change struct {
	ItemID string      `json:"variantId"`
	Price  *FieldValue `json:"price,omitempty"`
	SKU    *FieldValue `json:"sku,omitempty"`
	Weight *FieldValue `json:"weight,omitempty"`
}

// Fields returns the updates present on the change in a stable order.
func (c Change) Fields() []FieldUpdate {
	fields := make([]FieldUpdate, 0, 3)
	if c.Price != nil {
		fields = append(fields, FieldUpdate{Name: FieldPrice, Value: strings.TrimSpace(c.Price.String())})
	}
	if c.SKU != nil {
		fields = append(fields, FieldUpdate{Name: FieldSKU, Value: c.SKU.String()})
	}
	if c.Weight != nil {
		fields = append(fields, FieldUpdate{Name: FieldWeight, Value: strings.TrimSpace(c.Weight.String())})
	}
	return fields
}

type Batch struct {
	Index   int
	Offset  int
	Changes []Change
}

func (b Batch) Len() int {
	return len(b.Changes)
}

type SubOperation struct {
	Key    string
	Index  int
	ItemID string
	Fields []FieldUpdate
}

type AggregateRequest struct {
	BatchIndex int
	Operations []SubOperation
}

func (r AggregateRequest) Keys() []string {
	keys := make([]string, 0, len(r.Operations))
	for _, op := range r.Operations {
		keys = append(keys, op.Key)
	}
	return keys
}

type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
}

func (e UserError) String() string {
	if len(e.Field) == 0 {
		return e.Message
	}
	return strings.Join(e.Field, ".") + ": " + e.Message
}

type OperationResult struct {
	ItemID string      `json:"variantId"`
	OK     bool        `json:"ok"`
	Errors []UserError `json:"errors,omitempty"`
}

// MutationReply is the structured reply for one aggregate call. Results is
// keyed by sub-operation key; keys the remote service omitted are absent.
type MutationReply struct {
	StatusCode int
	Results    map[string][]UserError
	UserErrors []UserError
	Attempts   int
	ItemErrors bool
	Metadata   map[string]any
}

type RunRecord struct {
	ID               string    `json:"id"`
	Shop             string    `json:"shop"`
	Description      string    `json:"description"`
	PayloadJSON      string    `json:"payloadJson"`
	ResultsJSON      string    `json:"resultsJson"`
	Checksum         string    `json:"checksum"`
	PayloadTruncated bool      `json:"payloadTruncated"`
	SuccessCount     int       `json:"successCount"`
	ErrorCount       int       `json:"errorCount"`
	Total            int       `json:"total"`
	ChunkCount       int       `json:"chunkCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

type CredentialBlob struct {
	Shop       string
	Blob       string
	KeyVersion int
	UpdatedAt  time.Time
}

type ApplyRequest struct {
	Shop        string   `json:"shop"`
	Description string   `json:"description"`
	Changes     []Change `json:"changes"`
}

type Failure struct {
	Message  string `json:"message"`
	TextCode string `json:"code"`
	Batch    int    `json:"batch"`
}

type ApplyResult struct {
	OK           bool              `json:"ok"`
	SuccessCount int               `json:"successCount"`
	ErrorCount   int               `json:"errorCount"`
	Total        int               `json:"total"`
	BatchID      string            `json:"batchId"`
	ChunkCount   int               `json:"chunkCount"`
	Results      []OperationResult `json:"results"`
	Failure      *Failure          `json:"failure,omitempty"`
}

type PreviewNote struct {
	Change
	Errors []string `json:"errors"`
}

type RotateCredentialRequest struct {
	Shop       string
	KeyVersion int
}

type RotateCredentialResult struct {
	Shop            string
	PreviousVersion int
	KeyVersion      int
}
