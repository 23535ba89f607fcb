package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goliatone/go-bulkedit/core"
)

const userErrorsKey = "userErrors"

type jsonMember struct {
	key   string
	value json.RawMessage
}

// ExtractUserErrors collects every userErrors entry found in raw, depth
// first in document order. An object's own userErrors come before those of
// its children. Entries without a message are skipped.
func ExtractUserErrors(raw json.RawMessage) ([]core.UserError, error) {
	out := []core.UserError{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if err := walkUserErrors(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkUserErrors(raw json.RawMessage, out *[]core.UserError) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '{':
		members, err := decodeMembers(raw)
		if err != nil {
			return err
		}
		for _, member := range members {
			if member.key == userErrorsKey {
				*out = append(*out, decodeUserErrorList(member.value)...)
			}
		}
		for _, member := range members {
			if err := walkUserErrors(member.value, out); err != nil {
				return err
			}
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("transport: decode array: %w", err)
		}
		for _, item := range items {
			if err := walkUserErrors(item, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeMembers keeps object members in document order.
func decodeMembers(raw json.RawMessage) ([]jsonMember, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("transport: decode object: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("transport: expected object")
	}
	members := []jsonMember{}
	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("transport: decode object key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("transport: object key is not a string")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("transport: decode member %q: %w", key, err)
		}
		members = append(members, jsonMember{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("transport: decode object end: %w", err)
	}
	return members, nil
}

type rawUserError struct {
	Field   json.RawMessage `json:"field"`
	Message string          `json:"message"`
}

func decodeUserErrorList(raw json.RawMessage) []core.UserError {
	var entries []rawUserError
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	out := make([]core.UserError, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Message) == "" {
			continue
		}
		out = append(out, core.UserError{
			Field:   decodeFieldPath(entry.Field),
			Message: entry.Message,
		})
	}
	return out
}

// decodeFieldPath accepts a path array (strings or indexes) or a single
// string.
func decodeFieldPath(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var parts []any
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	path := make([]string, 0, len(parts))
	for _, part := range parts {
		switch typed := part.(type) {
		case string:
			path = append(path, typed)
		case float64:
			path = append(path, strconv.FormatFloat(typed, 'f', -1, 64))
		case nil:
		default:
			path = append(path, fmt.Sprint(typed))
		}
	}
	return path
}
