package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one encrypted access token blob per shop.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*shopCredentialRecord]
	now  func() time.Time
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*shopCredentialRecord](db, shopCredentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid shop credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *CredentialStore) FindByShop(ctx context.Context, shop string) (core.CredentialBlob, error) {
	if s == nil || s.db == nil {
		return core.CredentialBlob{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	shop = normalizeShop(shop)
	if shop == "" {
		return core.CredentialBlob{}, core.ErrMissingShop
	}
	record, err := findShopCredential(ctx, s.db, shop)
	if err != nil {
		return core.CredentialBlob{}, err
	}
	if record == nil {
		return core.CredentialBlob{}, core.NewNotFoundError("shop credential not found", map[string]any{"shop": shop})
	}
	return record.toDomain(), nil
}

func (s *CredentialStore) Upsert(ctx context.Context, shop string, blob string, keyVersion int) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	shop = normalizeShop(shop)
	if shop == "" {
		return core.ErrMissingShop
	}
	if strings.TrimSpace(blob) == "" {
		return fmt.Errorf("sqlstore: credential blob is required")
	}
	if keyVersion <= 0 {
		keyVersion = 1
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findShopCredential(ctx, tx, shop)
		if err != nil {
			return err
		}
		if record == nil {
			_, createErr := s.repo.CreateTx(ctx, tx, &shopCredentialRecord{
				ID:              uuid.NewString(),
				Shop:            shop,
				AccessTokenBlob: blob,
				KeyVersion:      keyVersion,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			return createErr
		}
		_, updateErr := tx.NewUpdate().
			Model((*shopCredentialRecord)(nil)).
			Set("access_token_blob = ?", blob).
			Set("key_version = ?", keyVersion).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

// Delete removes the credential of an uninstalled shop.
func (s *CredentialStore) Delete(ctx context.Context, shop string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*shopCredentialRecord)(nil)).
		Where("shop = ?", normalizeShop(shop)).
		Exec(ctx)
	return err
}

// ListShops returns the shops holding a credential sealed with keyVersion,
// or every shop when keyVersion is zero.
func (s *CredentialStore) ListShops(ctx context.Context, keyVersion int) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	selectors := []repository.SelectCriteria{repository.OrderBy("shop ASC")}
	if keyVersion > 0 {
		selectors = append(selectors, repository.SelectBy("key_version", "=", strconv.Itoa(keyVersion)))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	shops := make([]string, 0, len(records))
	for _, record := range records {
		shops = append(shops, record.Shop)
	}
	return shops, nil
}

func findShopCredential(ctx context.Context, db bun.IDB, shop string) (*shopCredentialRecord, error) {
	record := &shopCredentialRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.shop = ?", shop).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeShop(shop string) string {
	return strings.ToLower(strings.TrimSpace(shop))
}
