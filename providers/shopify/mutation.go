package shopify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/transport"
)

const (
	MutationOperationName = "BulkVariantUpdate"

	variantInputType = "ProductVariantInput!"
	variantMutation  = "productVariantUpdate"
)

// RenderMutation builds one aliased productVariantUpdate per sub-operation.
// Each alias is the sub-operation key so replies correlate by position.
func RenderMutation(req core.AggregateRequest) (string, map[string]any, error) {
	if len(req.Operations) == 0 {
		return "", nil, fmt.Errorf("providers/shopify: aggregate request has no operations")
	}
	declarations := make([]string, 0, len(req.Operations))
	selections := make([]string, 0, len(req.Operations))
	variables := make(map[string]any, len(req.Operations))
	for _, op := range req.Operations {
		input, err := variantInput(op)
		if err != nil {
			return "", nil, err
		}
		declarations = append(declarations, fmt.Sprintf("$%s: %s", op.Key, variantInputType))
		selections = append(selections, fmt.Sprintf(
			"  %s: %s(input: $%s) { productVariant { id } userErrors { field message } }",
			op.Key, variantMutation, op.Key,
		))
		variables[op.Key] = input
	}

	var b strings.Builder
	b.WriteString("mutation ")
	b.WriteString(MutationOperationName)
	b.WriteString("(")
	b.WriteString(strings.Join(declarations, ", "))
	b.WriteString(") {\n")
	b.WriteString(strings.Join(selections, "\n"))
	b.WriteString("\n}")
	return b.String(), variables, nil
}

func variantInput(op core.SubOperation) (map[string]any, error) {
	if strings.TrimSpace(op.ItemID) == "" {
		return nil, fmt.Errorf("providers/shopify: %s: %w", op.Key, core.ErrMissingItemID)
	}
	if len(op.Fields) == 0 {
		return nil, fmt.Errorf("providers/shopify: %s: %w", op.Key, core.ErrNoFields)
	}
	input := map[string]any{"id": op.ItemID}
	for _, field := range op.Fields {
		switch field.Name {
		case core.FieldPrice:
			input["price"] = strings.TrimSpace(field.Value)
		case core.FieldSKU:
			input["sku"] = field.Value
		case core.FieldWeight:
			weight, err := strconv.ParseFloat(strings.TrimSpace(field.Value), 64)
			if err != nil {
				return nil, fmt.Errorf("providers/shopify: %s: weight %q: %w", op.Key, field.Value, err)
			}
			input["weight"] = weight
		default:
			return nil, fmt.Errorf("providers/shopify: %s: unsupported field %q", op.Key, field.Name)
		}
	}
	return input, nil
}

// DecodeKeyedResults returns the userErrors under each alias present in the
// reply data. Aliases the remote omitted are left out of the map.
func DecodeKeyedResults(data json.RawMessage) (map[string][]core.UserError, error) {
	results := map[string][]core.UserError{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return results, nil
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("providers/shopify: decode mutation data: %w", err)
	}
	for key, raw := range keyed {
		userErrors, err := transport.ExtractUserErrors(raw)
		if err != nil {
			return nil, fmt.Errorf("providers/shopify: decode %s: %w", key, err)
		}
		results[key] = userErrors
	}
	return results, nil
}
