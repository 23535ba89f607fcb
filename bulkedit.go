package bulkedit

import (
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/security"
)

type Config = core.Config
type RetryConfig = core.RetryConfig
type PacingConfig = core.PacingConfig

type Engine = core.Engine
type EngineOption = core.Option

type Change = core.Change
type ApplyRequest = core.ApplyRequest
type ApplyResult = core.ApplyResult
type PreviewNote = core.PreviewNote
type RunRecord = core.RunRecord
type RotateCredentialRequest = core.RotateCredentialRequest
type RotateCredentialResult = core.RotateCredentialResult

type KeyRing = security.KeyRing

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithConfigProvider        = core.WithConfigProvider
	WithCredentialStore       = core.WithCredentialStore
	WithRunLogStore           = core.WithRunLogStore
	WithCredentialCodec       = core.WithCredentialCodec
	WithMutationClientFactory = core.WithMutationClientFactory
	WithPacer                 = core.WithPacer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	return core.NewEngine(cfg, opts...)
}
