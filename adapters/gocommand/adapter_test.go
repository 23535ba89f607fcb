package gocommand

import (
	"context"
	"testing"

	bulkcommand "github.com/goliatone/go-bulkedit/command"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/query"
	"github.com/goliatone/go-command"
)

type stubMutatingEngine struct {
	result  core.ApplyResult
	err     error
	applied []core.ApplyRequest
}

func (s *stubMutatingEngine) Apply(_ context.Context, req core.ApplyRequest) (core.ApplyResult, error) {
	s.applied = append(s.applied, req)
	return s.result, s.err
}

func (s *stubMutatingEngine) Rollback(context.Context, string) error {
	return nil
}

func (s *stubMutatingEngine) RotateCredential(context.Context, core.RotateCredentialRequest) (core.RotateCredentialResult, error) {
	return core.RotateCredentialResult{}, nil
}

type stubPreviewReader struct {
	calls int
}

func (s *stubPreviewReader) Preview(_ context.Context, changes []core.Change) []core.PreviewNote {
	s.calls++
	return core.Preview(changes)
}

func TestRegisterAndSubscribe_ApplyBulkMessage(t *testing.T) {
	engine := &stubMutatingEngine{result: core.ApplyResult{OK: true, SuccessCount: 1, Total: 1, BatchID: "run_1"}}
	adapter := NewRegistryAdapter(command.NewRegistry())

	sub, err := RegisterAndSubscribe[bulkcommand.ApplyBulkMessage](adapter, bulkcommand.NewApplyBulkCommand(engine))
	if err != nil {
		t.Fatalf("register apply command: %v", err)
	}
	defer sub.Unsubscribe()

	collector := command.NewResult[core.ApplyResult]()
	ctx := command.ContextWithResult(context.Background(), collector)
	err = Dispatch(ctx, bulkcommand.ApplyBulkMessage{Request: core.ApplyRequest{
		Shop:    "demo.myshopify.com",
		Changes: []core.Change{{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("9.99")}},
	}})
	if err != nil {
		t.Fatalf("dispatch apply: %v", err)
	}
	if len(engine.applied) != 1 || engine.applied[0].Shop != "demo.myshopify.com" {
		t.Fatalf("expected engine to receive the request, got %#v", engine.applied)
	}
	result, ok := collector.Load()
	if !ok || result.BatchID != "run_1" {
		t.Fatalf("expected stored apply result, got %#v stored=%v", result, ok)
	}
}

func TestRegisterAndSubscribe_ApplyBulkMessageRejectsMissingShop(t *testing.T) {
	engine := &stubMutatingEngine{}
	adapter := NewRegistryAdapter(command.NewRegistry())

	sub, err := RegisterAndSubscribe[bulkcommand.ApplyBulkMessage](adapter, bulkcommand.NewApplyBulkCommand(engine))
	if err != nil {
		t.Fatalf("register apply command: %v", err)
	}
	defer sub.Unsubscribe()

	err = Dispatch(context.Background(), bulkcommand.ApplyBulkMessage{Request: core.ApplyRequest{
		Changes: []core.Change{{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("9.99")}},
	}})
	if err == nil {
		t.Fatalf("expected validation error for missing shop")
	}
	if len(engine.applied) != 0 {
		t.Fatalf("engine must not run for invalid messages, got %#v", engine.applied)
	}
}

func TestRegisterAndSubscribeQuery_PreviewMessage(t *testing.T) {
	reader := &stubPreviewReader{}
	adapter := NewRegistryAdapter(command.NewRegistry())

	sub, err := RegisterAndSubscribeQuery[query.PreviewMessage, []core.PreviewNote](adapter, query.NewPreviewQuery(reader))
	if err != nil {
		t.Fatalf("register preview query: %v", err)
	}
	defer sub.Unsubscribe()

	notes, err := Query[query.PreviewMessage, []core.PreviewNote](context.Background(), query.PreviewMessage{
		Changes: []core.Change{
			{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("10.00")},
			{ItemID: "gid://shopify/ProductVariant/2", Weight: core.NewFieldValue("-1")},
		},
	})
	if err != nil {
		t.Fatalf("preview query: %v", err)
	}
	if reader.calls != 1 || len(notes) != 2 {
		t.Fatalf("expected two notes from one preview, got %#v calls=%d", notes, reader.calls)
	}
	if len(notes[0].Errors) != 0 || len(notes[1].Errors) == 0 {
		t.Fatalf("expected only the negative weight to be flagged, got %#v", notes)
	}

	if _, err := Query[query.PreviewMessage, []core.PreviewNote](context.Background(), query.PreviewMessage{}); err == nil {
		t.Fatalf("expected preview without changes to fail validation")
	}
}

func TestRegisterAndSubscribe_RegistryFailureUnsubscribes(t *testing.T) {
	engine := &stubMutatingEngine{}
	registry := command.NewRegistry()
	if err := registry.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	adapter := NewRegistryAdapter(registry)

	if _, err := RegisterAndSubscribe[bulkcommand.ApplyBulkMessage](adapter, bulkcommand.NewApplyBulkCommand(engine)); err == nil {
		t.Fatalf("expected registration on an initialized registry to fail")
	}
	err := Dispatch(context.Background(), bulkcommand.ApplyBulkMessage{Request: core.ApplyRequest{
		Shop:    "demo.myshopify.com",
		Changes: []core.Change{{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("9.99")}},
	}})
	if err == nil {
		t.Fatalf("expected dispatch to find no handlers")
	}
	if len(engine.applied) != 0 {
		t.Fatalf("expected the subscription to be rolled back, got %#v", engine.applied)
	}
}

func TestRegistryAdapter_RequiresRegistry(t *testing.T) {
	var adapter *RegistryAdapter
	if adapter.Registry() != nil {
		t.Fatalf("expected nil registry from nil adapter")
	}
	if _, err := RegisterAndSubscribe[bulkcommand.ApplyBulkMessage](adapter, bulkcommand.NewApplyBulkCommand(&stubMutatingEngine{})); err == nil {
		t.Fatalf("expected nil adapter to fail")
	}
	if _, err := RegisterAndSubscribeQuery[query.PreviewMessage, []core.PreviewNote](NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected nil query to fail")
	}
}
