package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// MutationClient sends one aggregate request to the remote catalog.
type MutationClient interface {
	Mutate(ctx context.Context, req AggregateRequest) (MutationReply, error)
}

type MutationClientFactory interface {
	NewMutationClient(ctx context.Context, shop string, accessToken string) (MutationClient, error)
}

type CredentialCodec interface {
	Encrypt(plain string, keyVersion int) (string, error)
	Decrypt(blob string) (string, int, error)
	Rotate(blob string, newVersion int) (string, error)
}

type CredentialStore interface {
	FindByShop(ctx context.Context, shop string) (CredentialBlob, error)
	Upsert(ctx context.Context, shop string, blob string, keyVersion int) error
}

type RunLogStore interface {
	Create(ctx context.Context, record RunRecord) (string, error)
	FindLatest(ctx context.Context, shop string) (RunRecord, error)
}

type Pacer interface {
	Wait(ctx context.Context) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider
