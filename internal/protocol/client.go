package protocol

import (
	"context"
	"time"
)

// Config is the read-only configuration view handed to clients at Init.
// *config.Resolver satisfies it.
type Config interface {
	String(key, def string) string
	Int(key string, def int) (int, error)
	Int64(key string, def int64) (int64, error)
	Float64(key string, def float64) (float64, error)
	Bool(key string, def bool) (bool, error)
	Duration(key string, def time.Duration) (time.Duration, error)
}

// Client is implemented once per wire protocol.
// Execute must be safe for concurrent use once Init has returned.
type Client interface {
	// Init configures the client. It is called exactly once per registry.
	Init(cfg Config) error

	// Execute performs the call described by req.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Protocol returns the upper-case protocol name.
	Protocol() string

	// Close releases pooled resources.
	Close() error
}

// Factory constructs an uninitialised client.
type Factory func() Client

// Descriptor declares one pluggable client implementation.
type Descriptor struct {
	Protocol    string
	Description string
	New         Factory
}
