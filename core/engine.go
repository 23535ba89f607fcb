package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Engine runs bulk mutations: it plans batches, sends them one at a time
// through the shop's mutation client, aggregates per-item results and
// records one run log entry per invocation.
type Engine struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	credentialStore CredentialStore
	runLogStore     RunLogStore
	credentialCodec CredentialCodec
	clientFactory   MutationClientFactory
	// pacer is only set through WithPacer; otherwise each Apply call builds
	// its own from config so concurrent runs do not share pacing state.
	pacer           Pacer
	now             func() time.Time
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	builder := defaultEngineBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("bulkedit", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("bulkedit"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	finalConfig, err := builder.resolveConfig()
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		credentialStore: builder.credentialStore,
		runLogStore:     builder.runLogStore,
		credentialCodec: builder.credentialCodec,
		clientFactory:   builder.clientFactory,
		pacer:           builder.pacer,
		now:             builder.now,
	}, nil
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) Logger() Logger {
	if e == nil {
		return glog.Nop()
	}
	return e.logger
}

// Preview validates changes locally. It never contacts the remote service.
func (e *Engine) Preview(_ context.Context, changes []Change) []PreviewNote {
	return Preview(changes)
}

// Apply runs every planned batch in order, stopping at the first batch that
// fails as a whole. Item level errors do not stop the run. When a batch
// failure stops the run, the partial result is returned alongside the error.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	if e == nil {
		return ApplyResult{}, fmt.Errorf("core: engine is nil")
	}
	if err := e.requireCollaborators(); err != nil {
		return ApplyResult{}, err
	}

	shop := strings.TrimSpace(req.Shop)
	if shop == "" {
		return ApplyResult{}, NewPreconditionError(ErrMissingShop.Error(), nil)
	}
	changes, err := ValidateChanges(req.Changes)
	if err != nil {
		return ApplyResult{}, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = DefaultDescription
	}

	client, err := e.clientForShop(ctx, shop)
	if err != nil {
		return ApplyResult{}, err
	}

	batches, err := Plan(changes, e.config.ChunkSize)
	if err != nil {
		return ApplyResult{}, NewPreconditionError(err.Error(), nil)
	}
	if len(batches) == 0 {
		return ApplyResult{}, NewPreconditionError(ErrEmptyChanges.Error(), nil)
	}

	logger := e.logger.WithContext(ctx)
	logger.Info("bulk apply started", "shop", shop, "changes", len(changes), "batches", len(batches))

	results := make([]OperationResult, 0, len(changes))
	var totals Totals
	var failure *Failure
	var failureErr error
	pacer := e.runPacer()

	for _, batch := range batches {
		if batch.Index > 0 {
			if err := pacer.Wait(ctx); err != nil {
				failure, failureErr = e.batchFailure(batch, err)
				logger.Warn("bulk apply interrupted", "shop", shop, "batch", batch.Index, "error", err.Error())
				break
			}
		}

		batchResults, err := e.runBatch(ctx, client, shop, batch)
		totals.Add(batchResults)
		results = append(results, batchResults...)
		if err != nil {
			failure, failureErr = e.batchFailure(batch, err)
			logger.Error("bulk batch failed", "shop", shop, "batch", batch.Index, "error", failure.Message)
			break
		}
	}

	result := ApplyResult{
		OK:           failure == nil && totals.Failed == 0,
		SuccessCount: totals.Success,
		ErrorCount:   totals.Failed,
		Total:        totals.Processed,
		ChunkCount:   len(batches),
		Results:      results,
		Failure:      failure,
	}

	// Items already sent stay in result when the run log cannot be written.
	record, err := NewRunRecord(RunRecordInput{
		Shop:            shop,
		Description:     description,
		Changes:         changes,
		Results:         results,
		ChunkCount:      len(batches),
		MaxPayloadBytes: e.config.MaxPayloadBytes,
		CreatedAt:       e.now(),
	})
	if err != nil {
		result.OK = false
		return result, MapError(err)
	}
	// the run log is written even when the caller's context is already done.
	batchID, err := e.runLogStore.Create(context.WithoutCancel(ctx), record)
	if err != nil {
		logger.Error("bulk run log write failed", "shop", shop, "error", err.Error())
		result.OK = false
		return result, goerrors.Wrap(err, goerrors.CategoryInternal, "core: record run log").
			WithTextCode(ErrorInternal)
	}
	result.BatchID = batchID

	logger.Info("bulk apply finished",
		"shop", shop,
		"batch_id", batchID,
		"ok", result.OK,
		"success", result.SuccessCount,
		"errors", result.ErrorCount,
		"total", result.Total,
	)
	if failureErr != nil {
		return result, failureErr
	}
	return result, nil
}

func (e *Engine) runPacer() Pacer {
	if e.pacer != nil {
		return e.pacer
	}
	return PacerFromConfig(e.config)
}

func (e *Engine) runBatch(ctx context.Context, client MutationClient, shop string, batch Batch) ([]OperationResult, error) {
	tags := map[string]string{"shop": shop}
	startedAt := e.now()

	req, err := BuildRequest(batch)
	if err != nil {
		return FailBatch(batch, err.Error()), err
	}
	reply, err := client.Mutate(ctx, req)

	elapsed := e.now().Sub(startedAt)
	e.metricsRecorder.ObserveHistogram(ctx, MetricBatchDurationMS, float64(elapsed.Milliseconds()), cloneTags(tags))
	if err != nil {
		batchTags := cloneTags(tags)
		batchTags["outcome"] = "failed"
		e.metricsRecorder.IncCounter(ctx, MetricBatches, 1, batchTags)
		failed := FailBatch(batch, errorMessage(err))
		e.recordItems(ctx, tags, failed)
		return failed, err
	}

	results := Aggregate(batch, reply.Results)
	batchTags := cloneTags(tags)
	batchTags["outcome"] = "done"
	if reply.ItemErrors {
		batchTags["outcome"] = "item_errors"
	}
	e.metricsRecorder.IncCounter(ctx, MetricBatches, 1, batchTags)
	e.recordItems(ctx, tags, results)

	e.logger.Debug("bulk batch done",
		"shop", shop,
		"batch", batch.Index,
		"items", batch.Len(),
		"attempts", reply.Attempts,
		"duration_ms", elapsed.Milliseconds(),
	)
	return results, nil
}

func (e *Engine) recordItems(ctx context.Context, tags map[string]string, results []OperationResult) {
	var totals Totals
	totals.Add(results)
	if totals.Success > 0 {
		okTags := cloneTags(tags)
		okTags["outcome"] = "ok"
		e.metricsRecorder.IncCounter(ctx, MetricItems, int64(totals.Success), okTags)
	}
	if totals.Failed > 0 {
		failedTags := cloneTags(tags)
		failedTags["outcome"] = "failed"
		e.metricsRecorder.IncCounter(ctx, MetricItems, int64(totals.Failed), failedTags)
	}
}

func (e *Engine) batchFailure(batch Batch, err error) (*Failure, error) {
	mapped := MapError(err)
	return &Failure{
		Message:  errorMessage(err),
		TextCode: mapped.TextCode,
		Batch:    batch.Index,
	}, mapped
}

func (e *Engine) clientForShop(ctx context.Context, shop string) (MutationClient, error) {
	blob, err := e.credentialStore.FindByShop(ctx, shop)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewNotInstalledError(shop)
		}
		return nil, MapError(err)
	}
	if strings.TrimSpace(blob.Blob) == "" {
		return nil, NewNotInstalledError(shop)
	}
	token, _, err := e.credentialCodec.Decrypt(blob.Blob)
	if err != nil {
		e.logger.Error("credential decode failed", "shop", shop, "key_version", blob.KeyVersion, "error", errorMessage(err))
		return nil, MapError(err)
	}
	client, err := e.clientFactory.NewMutationClient(ctx, shop, token)
	if err != nil {
		return nil, MapError(err)
	}
	return client, nil
}

// Rollback never reverses a run. It reports whether a run exists so callers
// can tell "nothing to roll back" from "not supported".
func (e *Engine) Rollback(ctx context.Context, shop string) error {
	if e == nil || e.runLogStore == nil {
		return fmt.Errorf("core: run log store is not configured")
	}
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return NewPreconditionError(ErrMissingShop.Error(), nil)
	}
	latest, err := e.runLogStore.FindLatest(ctx, shop)
	if err != nil {
		if IsNotFound(err) {
			return NewNotFoundError("no change log", map[string]any{"shop": shop})
		}
		return MapError(err)
	}
	e.logger.Info("bulk rollback rejected", "shop", shop, "batch_id", latest.ID)
	return NewRollbackUnsupportedError(latest.ID)
}

func (e *Engine) LatestRun(ctx context.Context, shop string) (RunRecord, error) {
	if e == nil || e.runLogStore == nil {
		return RunRecord{}, fmt.Errorf("core: run log store is not configured")
	}
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return RunRecord{}, NewPreconditionError(ErrMissingShop.Error(), nil)
	}
	latest, err := e.runLogStore.FindLatest(ctx, shop)
	if err != nil {
		if IsNotFound(err) {
			return RunRecord{}, NewNotFoundError("no change log", map[string]any{"shop": shop})
		}
		return RunRecord{}, MapError(err)
	}
	return latest, nil
}

// RotateCredential re-encrypts the shop's stored credential under a new key
// version.
func (e *Engine) RotateCredential(ctx context.Context, req RotateCredentialRequest) (RotateCredentialResult, error) {
	if e == nil || e.credentialStore == nil || e.credentialCodec == nil {
		return RotateCredentialResult{}, fmt.Errorf("core: credential store and codec are required")
	}
	shop := strings.TrimSpace(req.Shop)
	if shop == "" {
		return RotateCredentialResult{}, NewPreconditionError(ErrMissingShop.Error(), nil)
	}
	if req.KeyVersion <= 0 {
		return RotateCredentialResult{}, NewPreconditionError("core: key version must be positive", map[string]any{
			"key_version": req.KeyVersion,
		})
	}
	current, err := e.credentialStore.FindByShop(ctx, shop)
	if err != nil {
		if IsNotFound(err) {
			return RotateCredentialResult{}, NewNotInstalledError(shop)
		}
		return RotateCredentialResult{}, MapError(err)
	}
	rotated, err := e.credentialCodec.Rotate(current.Blob, req.KeyVersion)
	if err != nil {
		return RotateCredentialResult{}, MapError(err)
	}
	if err := e.credentialStore.Upsert(ctx, shop, rotated, req.KeyVersion); err != nil {
		return RotateCredentialResult{}, MapError(err)
	}
	e.logger.Info("credential rotated",
		"shop", shop,
		"previous_version", current.KeyVersion,
		"key_version", req.KeyVersion,
	)
	return RotateCredentialResult{
		Shop:            shop,
		PreviousVersion: current.KeyVersion,
		KeyVersion:      req.KeyVersion,
	}, nil
}

func (e *Engine) requireCollaborators() error {
	missing := []string{}
	if e.credentialStore == nil {
		missing = append(missing, "credential store")
	}
	if e.runLogStore == nil {
		missing = append(missing, "run log store")
	}
	if e.credentialCodec == nil {
		missing = append(missing, "credential codec")
	}
	if e.clientFactory == nil {
		missing = append(missing, "mutation client factory")
	}
	if len(missing) == 0 {
		return nil
	}
	return goerrors.New("core: engine is missing "+strings.Join(missing, ", "), goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && strings.TrimSpace(rich.Message) != "" {
		return rich.Message
	}
	return err.Error()
}
