package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type engineBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	credentialStore CredentialStore
	runLogStore     RunLogStore
	credentialCodec CredentialCodec
	clientFactory   MutationClientFactory
	pacer           Pacer
	now             func() time.Time
}

type Option func(*engineBuilder)

func WithLogger(logger Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *engineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *engineBuilder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *engineBuilder) {
		b.credentialStore = store
	}
}

func WithRunLogStore(store RunLogStore) Option {
	return func(b *engineBuilder) {
		b.runLogStore = store
	}
}

func WithCredentialCodec(codec CredentialCodec) Option {
	return func(b *engineBuilder) {
		b.credentialCodec = codec
	}
}

func WithMutationClientFactory(factory MutationClientFactory) Option {
	return func(b *engineBuilder) {
		b.clientFactory = factory
	}
}

func WithPacer(pacer Pacer) Option {
	return func(b *engineBuilder) {
		b.pacer = pacer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *engineBuilder) {
		b.now = now
	}
}

func defaultEngineBuilder(runtime Config) engineBuilder {
	loggerProvider, logger := glog.Resolve("bulkedit", nil, nil)
	return engineBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             time.Now,
	}
}

// ResolveConfig layers cfg over the loaded config and defaults the same way
// NewEngine does, so collaborators built before the engine see the final
// values. Only the config related options take effect.
func ResolveConfig(cfg Config, opts ...Option) (Config, error) {
	builder := defaultEngineBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}
	return builder.resolveConfig()
}

func (b engineBuilder) resolveConfig() (Config, error) {
	provider := b.configProvider
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	resolver := b.optionsResolver
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(context.Background(), defaults)
	if err != nil {
		return Config{}, MapError(err)
	}
	resolved, err := resolver.Resolve(defaults, loaded, b.runtimeConfig)
	if err != nil {
		return Config{}, MapError(err)
	}
	return resolved, nil
}

type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded and runtime config in that order
// of precedence. The loaded layer is complete, since providers build it over
// the defaults, so an explicit zero there wins. Zero values in the runtime
// layer mean unset; use the loaded layer to configure a zero.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, true),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.ChunkSize > 0 {
		layer["chunk_size"] = cfg.ChunkSize
	}
	if includeZero || cfg.InterBatchPauseMS > 0 {
		layer["inter_batch_pause_ms"] = cfg.InterBatchPauseMS
	}
	if includeZero || cfg.MaxPayloadBytes > 0 {
		layer["max_payload_bytes"] = cfg.MaxPayloadBytes
	}
	if includeZero || strings.TrimSpace(cfg.APIVersion) != "" {
		layer["api_version"] = cfg.APIVersion
	}
	if includeZero || cfg.RequestTimeoutMS > 0 {
		layer["request_timeout_ms"] = cfg.RequestTimeoutMS
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxRetries > 0 {
		retry["max_retries"] = cfg.Retry.MaxRetries
	}
	if includeZero || cfg.Retry.BaseDelayMS > 0 {
		retry["base_delay_ms"] = cfg.Retry.BaseDelayMS
	}
	if includeZero || cfg.Retry.Factor > 0 {
		retry["factor"] = cfg.Retry.Factor
	}
	if includeZero || cfg.Retry.MaxDelayMS > 0 {
		retry["max_delay_ms"] = cfg.Retry.MaxDelayMS
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	pacing := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Pacing.Mode) != "" {
		pacing["mode"] = cfg.Pacing.Mode
	}
	if includeZero || cfg.Pacing.RequestsPerSecond > 0 {
		pacing["requests_per_second"] = cfg.Pacing.RequestsPerSecond
	}
	if includeZero || cfg.Pacing.Burst > 0 {
		pacing["burst"] = cfg.Pacing.Burst
	}
	if len(pacing) > 0 {
		layer["pacing"] = pacing
	}
	return layer
}
