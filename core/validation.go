package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const variantGIDPrefix = "gid://shopify/ProductVariant/"

var (
	decimalPattern   = regexp.MustCompile(`^\d*\.?\d+$`)
	numericIDPattern = regexp.MustCompile(`^\d+$`)
)

const (
	NotePriceNotNumber  = "price not a number"
	NoteWeightNotNumber = "weight not a number"
	NoteWeightNegative  = "weight must not be negative"
	NoteMissingItemID   = "variantId is required"
	NoteMalformedItemID = "variantId is malformed"
	NoteNoFields        = "no fields to update"
)

// NormalizeItemID trims the id and expands bare numeric ids into variant GIDs.
func NormalizeItemID(id string) string {
	id = strings.TrimSpace(id)
	if numericIDPattern.MatchString(id) {
		return variantGIDPrefix + id
	}
	return id
}

func validItemID(id string) bool {
	if id == "" {
		return false
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return false
	}
	if strings.HasPrefix(id, "gid://") {
		return len(id) > len("gid://")
	}
	return true
}

// ValidPrice reports whether value is an unsigned decimal.
func ValidPrice(value string) bool {
	return decimalPattern.MatchString(strings.TrimSpace(value))
}

func ValidWeight(value string) bool {
	value = strings.TrimSpace(value)
	if !decimalPattern.MatchString(value) {
		return false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	return err == nil && parsed >= 0
}

// ValidateChange returns the structural problems found on one change. An
// empty slice means the change can be sent.
func ValidateChange(change Change) []string {
	notes := []string{}
	id := NormalizeItemID(change.ItemID)
	switch {
	case id == "":
		notes = append(notes, NoteMissingItemID)
	case !validItemID(id):
		notes = append(notes, NoteMalformedItemID)
	}
	if len(change.Fields()) == 0 {
		notes = append(notes, NoteNoFields)
	}
	if change.Price != nil && !ValidPrice(change.Price.String()) {
		notes = append(notes, NotePriceNotNumber)
	}
	if change.Weight != nil {
		weight := strings.TrimSpace(change.Weight.String())
		if strings.HasPrefix(weight, "-") {
			if _, err := strconv.ParseFloat(weight, 64); err == nil {
				notes = append(notes, NoteWeightNegative)
			} else {
				notes = append(notes, NoteWeightNotNumber)
			}
		} else if !ValidWeight(weight) {
			notes = append(notes, NoteWeightNotNumber)
		}
	}
	return notes
}

// Preview validates changes locally without contacting the remote service.
func Preview(changes []Change) []PreviewNote {
	notes := make([]PreviewNote, 0, len(changes))
	for _, change := range changes {
		normalized := change
		normalized.ItemID = NormalizeItemID(change.ItemID)
		notes = append(notes, PreviewNote{
			Change: normalized,
			Errors: ValidateChange(change),
		})
	}
	return notes
}

// ValidateChanges normalizes item ids and rejects the whole list when any
// change is structurally invalid.
func ValidateChanges(changes []Change) ([]Change, error) {
	if len(changes) == 0 {
		return nil, NewPreconditionError(ErrEmptyChanges.Error(), nil)
	}
	out := make([]Change, len(changes))
	invalid := map[string]any{}
	for i, change := range changes {
		if notes := ValidateChange(change); len(notes) > 0 {
			invalid[strconv.Itoa(i)] = strings.Join(notes, "; ")
		}
		out[i] = change
		out[i].ItemID = NormalizeItemID(change.ItemID)
	}
	if len(invalid) > 0 {
		return nil, NewPreconditionError(
			fmt.Sprintf("core: %d of %d changes are invalid", len(invalid), len(changes)),
			map[string]any{"invalid": invalid},
		)
	}
	return out, nil
}
