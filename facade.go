package bulkedit

import (
	"fmt"
	"os"

	bulkcommand "github.com/goliatone/go-bulkedit/command"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/providers/shopify"
	bulkquery "github.com/goliatone/go-bulkedit/query"
	"github.com/goliatone/go-bulkedit/security"
	sqlstore "github.com/goliatone/go-bulkedit/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Commands struct {
	ApplyBulk        *bulkcommand.ApplyBulkCommand
	Rollback         *bulkcommand.RollbackCommand
	RotateCredential *bulkcommand.RotateCredentialCommand
}

type Queries struct {
	Preview   *bulkquery.PreviewQuery
	LatestRun *bulkquery.LatestRunQuery
}

// Facade bundles a wired engine with its command and query handlers.
type Facade struct {
	engine   *core.Engine
	stores   *sqlstore.RepositoryFactory
	codec    *security.CredentialCodec
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	keyRing       security.KeyRing
	codecOptions  []security.Option
	cache         repositorycache.CacheService
	clientOptions []shopify.ClientFactoryOption
	engineOptions []core.Option
}

// WithKeyRing replaces the key ring read from the process environment.
func WithKeyRing(ring security.KeyRing) FacadeOption {
	return func(options *facadeOptions) {
		options.keyRing = ring
	}
}

func WithCodecOptions(opts ...security.Option) FacadeOption {
	return func(options *facadeOptions) {
		options.codecOptions = append(options.codecOptions, opts...)
	}
}

func WithCredentialCache(cache repositorycache.CacheService) FacadeOption {
	return func(options *facadeOptions) {
		options.cache = cache
	}
}

func WithClientOptions(opts ...shopify.ClientFactoryOption) FacadeOption {
	return func(options *facadeOptions) {
		options.clientOptions = append(options.clientOptions, opts...)
	}
}

func WithEngineOptions(opts ...core.Option) FacadeOption {
	return func(options *facadeOptions) {
		options.engineOptions = append(options.engineOptions, opts...)
	}
}

// New wires the SQL stores, the credential codec, the Shopify client factory
// and the engine. persistenceClient is a *persistence.Client or a *bun.DB
// with the bulk edit schema applied.
func New(cfg Config, persistenceClient any, opts ...FacadeOption) (*Facade, error) {
	if persistenceClient == nil {
		return nil, fmt.Errorf("bulkedit: persistence client is required")
	}
	options := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}
	if options.keyRing == nil {
		options.keyRing = security.KeyRingFromEnviron(os.Environ())
	}

	factoryOpts := []sqlstore.FactoryOption{}
	if options.cache != nil {
		factoryOpts = append(factoryOpts, sqlstore.WithCredentialCache(options.cache))
	}
	stores := sqlstore.NewRepositoryFactory(factoryOpts...)
	if err := stores.BuildStores(persistenceClient); err != nil {
		return nil, err
	}

	resolved, err := core.ResolveConfig(cfg, options.engineOptions...)
	if err != nil {
		return nil, err
	}
	codec := security.NewCredentialCodec(options.keyRing, options.codecOptions...)
	clients := shopify.NewClientFactory(resolved, options.clientOptions...)

	engineOpts := []core.Option{
		core.WithCredentialStore(stores.CredentialStore()),
		core.WithRunLogStore(stores.RunLogStore()),
		core.WithCredentialCodec(codec),
		core.WithMutationClientFactory(clients),
	}
	engineOpts = append(engineOpts, options.engineOptions...)
	engine, err := core.NewEngine(resolved, engineOpts...)
	if err != nil {
		return nil, err
	}
	return NewFacade(engine, stores, codec)
}

// NewFacade builds the handlers around an already wired engine. stores and
// codec may be nil.
func NewFacade(engine *core.Engine, stores *sqlstore.RepositoryFactory, codec *security.CredentialCodec) (*Facade, error) {
	if engine == nil {
		return nil, fmt.Errorf("bulkedit: engine is required")
	}
	return &Facade{
		engine: engine,
		stores: stores,
		codec:  codec,
		commands: Commands{
			ApplyBulk:        bulkcommand.NewApplyBulkCommand(engine),
			Rollback:         bulkcommand.NewRollbackCommand(engine),
			RotateCredential: bulkcommand.NewRotateCredentialCommand(engine),
		},
		queries: Queries{
			Preview:   bulkquery.NewPreviewQuery(engine),
			LatestRun: bulkquery.NewLatestRunQuery(engine),
		},
	}, nil
}

func (f *Facade) Engine() *core.Engine {
	if f == nil {
		return nil
	}
	return f.engine
}

func (f *Facade) Stores() *sqlstore.RepositoryFactory {
	if f == nil {
		return nil
	}
	return f.stores
}

func (f *Facade) Codec() *security.CredentialCodec {
	if f == nil {
		return nil
	}
	return f.codec
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}
