package protocol

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"apiprobe/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// Registry maps protocol names to client factories and caches the
// initialised clients for the life of the process.
type Registry struct {
	cfg     Config
	metrics *Metrics

	mu        sync.RWMutex
	factories map[string]Descriptor
	clients   map[string]Client

	group singleflight.Group
}

// NewRegistry creates a registry and discovers every descriptor in the given catalogues.
func NewRegistry(cfg Config, catalogues ...[]Descriptor) *Registry {
	r := &Registry{
		cfg:       cfg,
		factories: make(map[string]Descriptor),
		clients:   make(map[string]Client),
	}
	for _, c := range catalogues {
		r.Discover(c)
	}
	return r
}

// SetMetrics attaches Prometheus collectors. A nil value disables metrics.
func (r *Registry) SetMetrics(m *Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Register stores a factory under the upper-cased name. Later registrations win.
func (r *Registry) Register(name string, factory Factory) {
	r.registerDescriptor(Descriptor{Protocol: name, New: factory})
}

// Discover registers every descriptor of a catalogue.
func (r *Registry) Discover(catalogue []Descriptor) {
	for _, d := range catalogue {
		r.registerDescriptor(d)
	}
}

func (r *Registry) registerDescriptor(d Descriptor) {
	name := normalize(d.Protocol)
	d.Protocol = name

	r.mu.Lock()
	_, replaced := r.factories[name]
	r.factories[name] = d
	r.mu.Unlock()

	if replaced {
		logging.Info("registry", "Replaced protocol client factory for %s", name)
		return
	}
	logging.Info("registry", "Registered protocol client factory for %s", name)
}

// Alias registers name with the factory already registered for driver.
func (r *Registry) Alias(name, driver string) error {
	r.mu.RLock()
	d, ok := r.factories[normalize(driver)]
	r.mu.RUnlock()
	if !ok {
		return &UnknownProtocolError{Protocol: normalize(driver), Available: r.Protocols()}
	}
	d.Protocol = name
	d.Description = fmt.Sprintf("alias of %s", normalize(driver))
	r.registerDescriptor(d)
	return nil
}

// Protocols returns the registered protocol names, sorted.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the registered descriptors sorted by protocol.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.factories))
	for _, d := range r.factories {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Protocol < out[j].Protocol })
	return out
}

// Live returns the names of initialised clients, sorted.
func (r *Registry) Live() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) cached(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Client returns the initialised client for name, constructing it on first use.
// Concurrent callers for the same name share one initialisation. A failed
// initialisation is not cached, so the next call starts over.
func (r *Registry) Client(ctx context.Context, name string) (Client, error) {
	name = normalize(name)
	if c, ok := r.cached(name); ok {
		return c, nil
	}

	ch := r.group.DoChan(name, func() (interface{}, error) {
		// Another flight may have completed between the cache check and here.
		if c, ok := r.cached(name); ok {
			return c, nil
		}
		return r.initClient(name)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Client), nil
	}
}

func (r *Registry) initClient(name string) (client Client, err error) {
	r.mu.RLock()
	d, ok := r.factories[name]
	metrics := r.metrics
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownProtocolError{Protocol: name, Available: r.Protocols()}
	}

	defer func() {
		if p := recover(); p != nil {
			client = nil
			err = &ClientInitError{Protocol: name, Err: fmt.Errorf("panic: %v", p)}
		}
		metrics.RecordInit(name, err)
	}()

	logging.Debug("registry", "Initialising %s client", name)
	c := d.New()
	if c == nil {
		return nil, &ClientInitError{Protocol: name, Err: fmt.Errorf("factory returned no client")}
	}
	if err := c.Init(r.cfg); err != nil {
		return nil, &ClientInitError{Protocol: name, Err: err}
	}

	r.mu.Lock()
	r.clients[name] = c
	live := len(r.clients)
	r.mu.Unlock()
	metrics.SetLiveClients(live)

	logging.Info("registry", "Initialised %s client", name)
	return c, nil
}

// Dispatch executes req with the named client and records metrics.
func (r *Registry) Dispatch(ctx context.Context, name string, req *Request) (*Response, error) {
	client, err := r.Client(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	metrics := r.metrics
	r.mu.RUnlock()

	start := time.Now()
	resp, err := client.Execute(ctx, req)
	metrics.RecordRequest(normalize(name), err, time.Since(start))
	return resp, err
}

// CloseAll closes every initialised client and empties the cache.
// Individual close errors are logged and suppressed.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]Client)
	metrics := r.metrics
	r.mu.Unlock()

	for name, c := range clients {
		if err := closeClient(c); err != nil {
			logging.Error("registry", err, "Failed to close %s client", name)
			continue
		}
		logging.Debug("registry", "Closed %s client", name)
	}
	metrics.SetLiveClients(0)
}

func closeClient(c Client) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during close: %v", p)
		}
	}()
	return c.Close()
}
