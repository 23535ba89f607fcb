package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

type memoryCredentialStore struct {
	mu    sync.Mutex
	blobs map[string]CredentialBlob
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{blobs: map[string]CredentialBlob{}}
}

func (s *memoryCredentialStore) FindByShop(_ context.Context, shop string) (CredentialBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[shop]
	if !ok {
		return CredentialBlob{}, NewNotFoundError("credential not found", map[string]any{"shop": shop})
	}
	return blob, nil
}

func (s *memoryCredentialStore) Upsert(_ context.Context, shop string, blob string, keyVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[shop] = CredentialBlob{Shop: shop, Blob: blob, KeyVersion: keyVersion, UpdatedAt: time.Now()}
	return nil
}

type memoryRunLogStore struct {
	mu        sync.Mutex
	records   []RunRecord
	createErr error
}

func (s *memoryRunLogStore) Create(_ context.Context, record RunRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	record.ID = fmt.Sprintf("run_%d", len(s.records)+1)
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *memoryRunLogStore) FindLatest(_ context.Context, shop string) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Shop == shop {
			return s.records[i], nil
		}
	}
	return RunRecord{}, ErrNoRunRecorded
}

// plainCodec stores "v<version>:<plain>" so tests can assert on rotation.
type plainCodec struct {
	missingVersion int
}

func (c plainCodec) Encrypt(plain string, keyVersion int) (string, error) {
	return fmt.Sprintf("v%d:%s", keyVersion, plain), nil
}

func (c plainCodec) Decrypt(blob string) (string, int, error) {
	version, plain, ok := strings.Cut(blob, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed blob")
	}
	var parsed int
	if _, err := fmt.Sscanf(version, "v%d", &parsed); err != nil {
		return "", 0, err
	}
	if parsed == c.missingVersion {
		return "", 0, goerrors.New("missing key", goerrors.CategoryAuth).
			WithCode(401).
			WithTextCode(ErrorMissingKey)
	}
	return plain, parsed, nil
}

func (c plainCodec) Rotate(blob string, newVersion int) (string, error) {
	plain, _, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plain, newVersion)
}

type scriptedReply struct {
	reply MutationReply
	err   error
}

type scriptedClient struct {
	mu       sync.Mutex
	replies  map[int]scriptedReply
	requests []AggregateRequest
}

func (c *scriptedClient) Mutate(_ context.Context, req AggregateRequest) (MutationReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	scripted, ok := c.replies[req.BatchIndex]
	if !ok {
		return MutationReply{StatusCode: 200, Results: map[string][]UserError{}, Attempts: 1}, nil
	}
	return scripted.reply, scripted.err
}

type scriptedFactory struct {
	client *scriptedClient
	tokens []string
}

func (f *scriptedFactory) NewMutationClient(_ context.Context, _ string, accessToken string) (MutationClient, error) {
	f.tokens = append(f.tokens, accessToken)
	return f.client, nil
}

type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return p.err
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]int64{}, histograms: map[string]int{}}
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+"|"+tags["outcome"]] += value
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name]++
}

func testChanges(n int) []Change {
	changes := make([]Change, 0, n)
	for i := 0; i < n; i++ {
		changes = append(changes, Change{
			ItemID: fmt.Sprintf("gid://shopify/ProductVariant/%d", 1000+i),
			Price:  NewFieldValue(fmt.Sprintf("%d.99", i)),
		})
	}
	return changes
}
