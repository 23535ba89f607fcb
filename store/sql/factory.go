package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-bulkedit/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	credentialStore *CredentialStore
	cachedStore     *CachedCredentialStore
	runLogStore     *RunLogStore
}

type FactoryOption func(*RepositoryFactory)

// WithCredentialCache puts credential reads behind the given cache.
func WithCredentialCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.runLogStore != nil {
		return nil
	}
	return f.initStores()
}

// CredentialStore returns the cached store when a cache was configured.
func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	return f.credentialStore
}

func (f *RepositoryFactory) SQLCredentialStore() *CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) RunLogStore() *RunLogStore {
	if f == nil {
		return nil
	}
	return f.runLogStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db)
	if err != nil {
		return err
	}
	runLogStore, err := NewRunLogStore(f.db)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore
	f.runLogStore = runLogStore
	if f.cache != nil {
		cached, err := NewCachedCredentialStore(credentialStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
