package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-bulkedit/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-bulkedit::shop_credential::v1"

// CachedCredentialStore memoizes FindByShop and drops the entry on Upsert.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(base core.CredentialStore, cacheService repositorycache.CacheService) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns go-bulkedit::shop_credential::v1::<shop> with
// the shop URL-path escaped after normalization.
func CredentialCacheKey(shop string) (string, error) {
	normalized := normalizeShop(shop)
	if normalized == "" {
		return "", core.ErrMissingShop
	}
	return strings.Join([]string{credentialCacheKeyPrefix, url.PathEscape(normalized)}, "::"), nil
}

func (s *CachedCredentialStore) FindByShop(ctx context.Context, shop string) (core.CredentialBlob, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CredentialBlob{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(shop)
	if err != nil {
		return core.CredentialBlob{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.CredentialBlob, error) {
		return s.base.FindByShop(ctx, normalizeShop(shop))
	})
}

func (s *CachedCredentialStore) Upsert(ctx context.Context, shop string, blob string, keyVersion int) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(shop)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, shop, blob, keyVersion); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.CredentialStore = (*CachedCredentialStore)(nil)
