package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultRunPageSize = 25

// RunLogStore appends audit records. Records are never updated.
type RunLogStore struct {
	db   *bun.DB
	repo repository.Repository[*runRecord]
	now  func() time.Time
}

type RunFilter struct {
	Shop    string
	Page    int
	PerPage int
}

type RunPage struct {
	Items   []core.RunRecord
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

func NewRunLogStore(db *bun.DB) (*RunLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*runRecord](db, runHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid run repository wiring: %w", err)
		}
	}
	return &RunLogStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *RunLogStore) Create(ctx context.Context, in core.RunRecord) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("sqlstore: run log store is not configured")
	}
	shop := normalizeShop(in.Shop)
	if shop == "" {
		return "", core.ErrMissingShop
	}
	in.Shop = shop
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, newRunRecord(in, id, s.now()))
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (s *RunLogStore) FindLatest(ctx context.Context, shop string) (core.RunRecord, error) {
	if s == nil || s.db == nil {
		return core.RunRecord{}, fmt.Errorf("sqlstore: run log store is not configured")
	}
	shop = normalizeShop(shop)
	if shop == "" {
		return core.RunRecord{}, core.ErrMissingShop
	}
	record := &runRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.shop = ?", shop).
		OrderExpr("?TableAlias.created_at DESC").
		OrderExpr("?TableAlias.id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.RunRecord{}, core.ErrNoRunRecorded
		}
		return core.RunRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *RunLogStore) Get(ctx context.Context, id string) (core.RunRecord, error) {
	if s == nil || s.db == nil {
		return core.RunRecord{}, fmt.Errorf("sqlstore: run log store is not configured")
	}
	record := &runRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.RunRecord{}, core.NewNotFoundError("run not found", map[string]any{"batch_id": id})
		}
		return core.RunRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *RunLogStore) List(ctx context.Context, filter RunFilter) (RunPage, error) {
	if s == nil || s.repo == nil {
		return RunPage{}, fmt.Errorf("sqlstore: run log store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultRunPageSize
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if shop := normalizeShop(filter.Shop); shop != "" {
		selectors = append(selectors, repository.SelectBy("shop", "=", shop))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return RunPage{}, err
	}
	items := make([]core.RunRecord, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return RunPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}
