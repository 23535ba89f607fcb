package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func shopCredentialHandlers() repository.ModelHandlers[*shopCredentialRecord] {
	return repository.ModelHandlers[*shopCredentialRecord]{
		NewRecord: func() *shopCredentialRecord {
			return &shopCredentialRecord{}
		},
		GetID: func(record *shopCredentialRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *shopCredentialRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "shop"
		},
		GetIdentifierValue: func(record *shopCredentialRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.Shop)
		},
	}
}

func runHandlers() repository.ModelHandlers[*runRecord] {
	return repository.ModelHandlers[*runRecord]{
		NewRecord: func() *runRecord {
			return &runRecord{}
		},
		GetID: func(record *runRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *runRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *runRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
