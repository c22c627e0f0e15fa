package scenario

import (
	"context"
	"io/fs"
	"time"

	"apiprobe/internal/protocol"
)

// Dispatcher executes a request with the named protocol client.
// *protocol.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, protocolName string, req *protocol.Request) (*protocol.Response, error)
}

// Observer is told about every response a scenario receives.
type Observer interface {
	ObserveResponse(protocolName string, resp *protocol.Response)
}

// Info identifies the scenario a Context belongs to.
type Info struct {
	ID   string
	Name string
	URI  string
	Tags []string
}

// Context holds the state of one running scenario. It is confined to the
// goroutine running the scenario and is not safe for concurrent use.
type Context struct {
	cfg        protocol.Config
	dispatcher Dispatcher
	observer   Observer
	resources  fs.FS

	info    Info
	started time.Time

	request     *protocol.Request
	response    *protocol.Response
	bag         map[string]any
	attachments []Attachment
}

// Option configures a Context.
type Option func(*Context)

// WithObserver reports every response to o.
func WithObserver(o Observer) Option {
	return func(c *Context) { c.observer = o }
}

// WithResources sets the resource root used to read request bodies from files.
func WithResources(fsys fs.FS) Option {
	return func(c *Context) { c.resources = fsys }
}

// WithInfo sets the scenario identity.
func WithInfo(info Info) Option {
	return func(c *Context) { c.info = info }
}

// NewContext creates the context for one scenario. cfg and dispatcher are
// shared across scenarios and are never closed by the context.
func NewContext(cfg protocol.Config, dispatcher Dispatcher, opts ...Option) *Context {
	c := &Context{
		cfg:        cfg,
		dispatcher: dispatcher,
		bag:        make(map[string]any),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the shared configuration.
func (c *Context) Config() protocol.Config { return c.cfg }

// Resources returns the resource root, or nil when none was configured.
func (c *Context) Resources() fs.FS { return c.resources }

// Info returns the scenario identity.
func (c *Context) Info() Info { return c.info }

// SetInfo replaces the scenario identity.
func (c *Context) SetInfo(info Info) {
	c.info = info
	c.started = time.Now()
}

// Elapsed returns the time since the scenario started.
func (c *Context) Elapsed() time.Duration { return time.Since(c.started) }

// NewRequest replaces the current request with an empty one and returns it.
func (c *Context) NewRequest() *protocol.Request {
	c.request = protocol.NewRequest()
	return c.request
}

// CurrentRequest returns the request under construction, creating one if needed.
func (c *Context) CurrentRequest() *protocol.Request {
	if c.request == nil {
		return c.NewRequest()
	}
	return c.request
}

// LastResponse returns the most recent response, or nil.
func (c *Context) LastResponse() *protocol.Response { return c.response }

func (c *Context) SetLastResponse(resp *protocol.Response) { c.response = resp }

// Execute sends the current request with the named protocol client and
// stores the result as the last response. On error the last response is
// left unchanged.
func (c *Context) Execute(ctx context.Context, protocolName string) (*protocol.Response, error) {
	resp, err := c.dispatcher.Dispatch(ctx, protocolName, c.CurrentRequest())
	if err != nil {
		return nil, err
	}
	c.response = resp
	if c.observer != nil {
		c.observer.ObserveResponse(protocolName, resp)
	}
	return resp, nil
}

// Attach records an attachment for the scenario report.
func (c *Context) Attach(a Attachment) {
	c.attachments = append(c.attachments, a)
}

// Attachments returns the attachments recorded so far.
func (c *Context) Attachments() []Attachment {
	out := make([]Attachment, len(c.attachments))
	copy(out, c.attachments)
	return out
}

// Cleanup resets the scenario state. Shared protocol clients stay open;
// they belong to the registry and are closed when the suite ends.
func (c *Context) Cleanup() {
	c.bag = make(map[string]any)
	c.request = nil
	c.response = nil
	c.attachments = nil
}
