package core

import (
	"context"
	"io"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Task is a unit of work executed by a worker.
type Task func(ctx context.Context)

// WorkerPool is the shared worker budget every module runs on.
type WorkerPool interface {
	Name() string
	Capacity() int
	Submit(ctx context.Context, task Task) error
	Every(ctx context.Context, delay time.Duration, task Task) error
}

// StreamWriter delivers an already framed payload on a persistent connection.
type StreamWriter interface {
	WriteMessage(ctx context.Context, module ModuleKind, payload []byte) error
}

type IdentityProvider struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type CredentialManager interface {
	RegisterIdentityProvider(ctx context.Context, provider IdentityProvider) error
}

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

// TransportResponse hands the unread body to the caller, which must close it.
type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       io.ReadCloser
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// Credentials are the identity values modules forward with requests.
type Credentials struct {
	ClientID         string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret     string `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURL      string `koanf:"redirect_url" mapstructure:"redirect_url"`
	UserAgent        string `koanf:"user_agent" mapstructure:"user_agent"`
	DefaultAuthToken string `koanf:"default_auth_token" mapstructure:"default_auth_token"`
}
