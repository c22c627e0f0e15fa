package protocol

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfig struct{}

func (stubConfig) String(_, def string) string                    { return def }
func (stubConfig) Int(_ string, def int) (int, error)             { return def, nil }
func (stubConfig) Int64(_ string, def int64) (int64, error)       { return def, nil }
func (stubConfig) Float64(_ string, def float64) (float64, error) { return def, nil }
func (stubConfig) Bool(_ string, def bool) (bool, error)          { return def, nil }
func (stubConfig) Duration(_ string, def time.Duration) (time.Duration, error) {
	return def, nil
}

type fakeClient struct {
	name     string
	inits    *int32
	initErr  error
	initWait time.Duration
	closeErr error
	closed   int32
}

func (c *fakeClient) Init(Config) error {
	atomic.AddInt32(c.inits, 1)
	if c.initWait > 0 {
		time.Sleep(c.initWait)
	}
	return c.initErr
}

func (c *fakeClient) Execute(_ context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return NewResponseBuilder().StatusCode(200).Body(req.Endpoint).Build(), nil
}

func (c *fakeClient) Protocol() string { return c.name }

func (c *fakeClient) Close() error {
	atomic.AddInt32(&c.closed, 1)
	return c.closeErr
}

func TestRegistry_ConcurrentClientInitialisesOnce(t *testing.T) {
	var inits int32
	r := NewRegistry(stubConfig{})
	r.Register("rest", func() Client {
		return &fakeClient{name: "REST", inits: &inits, initWait: 20 * time.Millisecond}
	})

	const callers = 50
	var wg sync.WaitGroup
	results := make([]Client, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			c, err := r.Client(context.Background(), "REST")
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&inits))
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, []string{"REST"}, r.Live())
}

func TestRegistry_NamesAreCaseInsensitive(t *testing.T) {
	var inits int32
	r := NewRegistry(stubConfig{}, []Descriptor{{
		Protocol: "Rest",
		New:      func() Client { return &fakeClient{name: "REST", inits: &inits} },
	}})

	a, err := r.Client(context.Background(), "rest")
	require.NoError(t, err)
	b, err := r.Client(context.Background(), "REST")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, []string{"REST"}, r.Protocols())
}

func TestRegistry_UnknownProtocol(t *testing.T) {
	var inits int32
	r := NewRegistry(stubConfig{})
	r.Register("REST", func() Client { return &fakeClient{name: "REST", inits: &inits} })

	_, err := r.Client(context.Background(), "mqtt")

	var unknown *UnknownProtocolError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "MQTT", unknown.Protocol)
	assert.Equal(t, []string{"REST"}, unknown.Available)
	assert.Equal(t, int32(0), inits)
}

func TestRegistry_FailedInitIsNotCached(t *testing.T) {
	var inits int32
	fail := true
	r := NewRegistry(stubConfig{})
	r.Register("REST", func() Client {
		c := &fakeClient{name: "REST", inits: &inits}
		if fail {
			c.initErr = errors.New("bad base url")
		}
		return c
	})

	_, err := r.Client(context.Background(), "REST")
	var initErr *ClientInitError
	require.True(t, errors.As(err, &initErr))
	assert.Equal(t, "REST", initErr.Protocol)
	assert.EqualError(t, errors.Unwrap(err), "bad base url")
	assert.Empty(t, r.Live())

	fail = false
	c, err := r.Client(context.Background(), "REST")
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, int32(2), inits)
}

func TestRegistry_FactoryPanicBecomesInitError(t *testing.T) {
	r := NewRegistry(stubConfig{})
	r.Register("REST", func() Client { panic("boom") })

	_, err := r.Client(context.Background(), "REST")
	var initErr *ClientInitError
	require.True(t, errors.As(err, &initErr))
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	var first, second int32
	r := NewRegistry(stubConfig{})
	r.Register("REST", func() Client { return &fakeClient{name: "first", inits: &first} })
	r.Register("rest", func() Client { return &fakeClient{name: "second", inits: &second} })

	c, err := r.Client(context.Background(), "REST")
	require.NoError(t, err)
	assert.Equal(t, "second", c.Protocol())
	assert.Equal(t, int32(0), first)
}

func TestRegistry_CloseAllSuppressesErrors(t *testing.T) {
	var inits int32
	failing := &fakeClient{name: "A", inits: &inits, closeErr: errors.New("close failed")}
	healthy := &fakeClient{name: "B", inits: &inits}

	r := NewRegistry(stubConfig{})
	r.Register("A", func() Client { return failing })
	r.Register("B", func() Client { return healthy })

	_, err := r.Client(context.Background(), "A")
	require.NoError(t, err)
	_, err = r.Client(context.Background(), "B")
	require.NoError(t, err)

	r.CloseAll()

	assert.Equal(t, int32(1), atomic.LoadInt32(&failing.closed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthy.closed))
	assert.Empty(t, r.Live())

	// A second call has nothing left to close.
	r.CloseAll()
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthy.closed))
}

func TestRegistry_DispatchRecordsMetrics(t *testing.T) {
	var inits int32
	reg := prometheus.NewRegistry()
	r := NewRegistry(stubConfig{})
	r.SetMetrics(NewMetrics(reg))
	r.Register("REST", func() Client { return &fakeClient{name: "REST", inits: &inits} })

	resp, err := r.Dispatch(context.Background(), "rest", NewRequest().WithMethod("GET").WithEndpoint("/ping"))
	require.NoError(t, err)
	assert.Equal(t, "/ping", resp.Body())

	_, err = r.Dispatch(context.Background(), "rest", NewRequest())
	var shape *RequestShapeError
	assert.True(t, errors.As(err, &shape))

	m := r.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("REST", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("REST", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientInits.WithLabelValues("REST", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveClients))
}

func TestRegistry_ClientHonoursCancelledContext(t *testing.T) {
	var inits int32
	r := NewRegistry(stubConfig{})
	r.Register("SLOW", func() Client {
		return &fakeClient{name: "SLOW", inits: &inits, initWait: 200 * time.Millisecond}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Client(ctx, "SLOW")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_ApplyDescriptorFile(t *testing.T) {
	var inits int32
	r := NewRegistry(stubConfig{})
	r.Register("REST", func() Client { return &fakeClient{name: "REST", inits: &inits} })

	fsys := fstest.MapFS{
		DescriptorFile: {Data: []byte("protocols:\n  - protocol: http\n    driver: rest\n")},
	}
	require.NoError(t, r.ApplyDescriptorFile(fsys))
	assert.Equal(t, []string{"HTTP", "REST"}, r.Protocols())

	c, err := r.Client(context.Background(), "HTTP")
	require.NoError(t, err)
	assert.Equal(t, "REST", c.Protocol())

	bad := fstest.MapFS{
		DescriptorFile: {Data: []byte("protocols:\n  - protocol: amqp\n    driver: kafka\n")},
	}
	var unknown *UnknownProtocolError
	assert.True(t, errors.As(r.ApplyDescriptorFile(bad), &unknown))

	// A missing file is not an error.
	assert.NoError(t, r.ApplyDescriptorFile(fstest.MapFS{}))
}
