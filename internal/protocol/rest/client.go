// Package rest implements the REST protocol client on net/http.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"apiprobe/internal/protocol"
	"apiprobe/pkg/logging"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// Protocol is the registry name of the REST client.
const Protocol = "REST"

const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxIdleConns = 100

	// BaseURLExtra overrides the configured base URL for a single request.
	BaseURLExtra = "rest.base-url"
	// RawResponseExtra holds the *http.Response in the response extras.
	RawResponseExtra = "raw"
)

// Methods lists the accepted HTTP methods.
var Methods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
}

var placeholderPattern = regexp.MustCompile(`\{([^{}/]+)\}`)

// Client implements protocol.Client for HTTP/REST.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	bufPool sync.Pool
}

// New returns an uninitialised REST client.
func New() protocol.Client {
	return &Client{}
}

// Descriptor declares the REST client for the protocol catalogue.
func Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Protocol:    Protocol,
		Description: "HTTP/REST over net/http",
		New:         New,
	}
}

func (c *Client) Protocol() string {
	return Protocol
}

// Init reads rest.* settings and builds the transport.
func (c *Client) Init(cfg protocol.Config) error {
	base, err := url.Parse(cfg.String("rest.base-url", DefaultBaseURL))
	if err != nil {
		return fmt.Errorf("invalid rest.base-url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid rest.base-url %q: scheme and host are required", base.String())
	}

	relaxed, err := cfg.Bool("rest.relaxed-https", false)
	if err != nil {
		return err
	}
	timeoutMs, err := cfg.Int64("rest.timeout-ms", DefaultTimeout.Milliseconds())
	if err != nil {
		return err
	}
	useHTTP2, err := cfg.Bool("rest.http2", false)
	if err != nil {
		return err
	}
	maxIdle, err := cfg.Int("rest.max-idle-conns", DefaultMaxIdleConns)
	if err != nil {
		return err
	}
	followRedirects, err := cfg.Bool("rest.follow-redirects", true)
	if err != nil {
		return err
	}
	rps, err := cfg.Float64("rest.rate-limit", 0)
	if err != nil {
		return err
	}

	c.baseURL = base
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeout.Milliseconds()
	}
	c.timeout = time.Duration(timeoutMs) * time.Millisecond

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: c.timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: relaxed,
		},
	}
	if useHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return fmt.Errorf("failed to enable HTTP/2: %w", err)
		}
	}

	// The read timeout is applied per request through the context.
	c.client = &http.Client{Transport: transport}
	if !followRedirects {
		c.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	c.bufPool.New = func() interface{} {
		return new(bytes.Buffer)
	}

	logging.Info("rest", "REST client initialised (base URL %s, timeout %s, relaxed HTTPS %t, HTTP/2 %t)",
		c.baseURL, c.timeout, relaxed, useHTTP2)
	return nil
}

// Execute sends req and reads the full response.
func (c *Client) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if c.client == nil {
		return nil, fmt.Errorf("REST client used before Init")
	}

	method, err := validateMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target, err := c.resolveURL(req)
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &protocol.RequestShapeError{Reason: err.Error()}
	}

	// Names are written as given; Header.Add would canonicalise them.
	for _, h := range req.Headers.All() {
		httpReq.Header[h.Key] = append(httpReq.Header[h.Key], h.Value)
	}
	if req.ContentType != "" {
		replaceHeader(httpReq.Header, "Content-Type", req.ContentType)
	}
	if auth, ok := req.Authorization(); ok {
		replaceHeader(httpReq.Header, "Authorization", auth)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &protocol.TransportError{Protocol: Protocol, Method: method, Target: target, Err: err}
		}
	}

	logging.Debug("rest", "%s %s", method, target)

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &protocol.TransportError{Protocol: Protocol, Method: method, Target: target, Err: err}
	}
	defer httpResp.Body.Close()

	buf := c.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufPool.Put(buf)

	if _, err := buf.ReadFrom(httpResp.Body); err != nil {
		return nil, &protocol.TransportError{Protocol: Protocol, Method: method, Target: target, Err: err}
	}
	elapsed := time.Since(start)

	contentType := httpResp.Header.Get("Content-Type")
	text, err := decodeBody(buf.Bytes(), contentType)
	if err != nil {
		logging.Warn("rest", "Failed to decode response body as %q, using raw bytes: %v", contentType, err)
		text = buf.String()
	}

	b := protocol.NewResponseBuilder().
		StatusCode(httpResp.StatusCode).
		StatusLine(fmt.Sprintf("%s %s", httpResp.Proto, httpResp.Status)).
		Body(text).
		ContentType(contentType).
		ResponseTime(elapsed).
		Extra(RawResponseExtra, httpResp)

	for _, name := range sortedHeaderNames(httpResp.Header) {
		for _, v := range httpResp.Header[name] {
			b.Header(name, v)
		}
	}

	logging.Debug("rest", "%s %s -> %d in %s", method, target, httpResp.StatusCode, elapsed)
	return b.Build(), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}

func validateMethod(method string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(method))
	for _, m := range Methods {
		if m == upper {
			return upper, nil
		}
	}
	if upper == "" {
		return "", &protocol.RequestShapeError{Reason: "method is empty"}
	}
	return "", &protocol.UnsupportedMethodError{Protocol: Protocol, Method: method, Allowed: Methods}
}

// resolveURL joins the endpoint with the base URL, substitutes path
// parameters and appends query parameters in insertion order.
func (c *Client) resolveURL(req *protocol.Request) (string, error) {
	endpoint, err := substitutePathParams(req.Endpoint, req.PathParams)
	if err != nil {
		return "", err
	}

	var target string
	if isAbsolute(endpoint) {
		target = endpoint
	} else {
		base := c.baseURL.String()
		if override := req.ExtraString(BaseURLExtra); override != "" {
			base = override
		}
		target = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}

	if _, err := url.Parse(target); err != nil {
		return "", &protocol.RequestShapeError{Reason: fmt.Sprintf("invalid URL %q: %v", target, err)}
	}

	if req.QueryParams.Len() > 0 {
		var q strings.Builder
		for i, p := range req.QueryParams.All() {
			if i > 0 {
				q.WriteByte('&')
			}
			q.WriteString(url.QueryEscape(p.Key))
			q.WriteByte('=')
			q.WriteString(url.QueryEscape(p.Value))
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + q.String()
	}
	return target, nil
}

func substitutePathParams(endpoint string, params protocol.Pairs) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(endpoint, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params.Get(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", &protocol.RequestShapeError{
			Reason: fmt.Sprintf("unresolved path parameters in %q: %s", endpoint, strings.Join(missing, ", ")),
		}
	}
	return out, nil
}

func isAbsolute(endpoint string) bool {
	u, err := url.Parse(endpoint)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// decodeBody converts body to UTF-8 using the charset of contentType.
func decodeBody(body []byte, contentType string) (string, error) {
	if len(body) == 0 || contentType == "" {
		return string(body), nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	label := params["charset"]
	if label == "" || strings.EqualFold(label, "utf-8") {
		return string(body), nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// net/http does not keep the server's header order, so headers are
// emitted sorted by canonical name.
func sortedHeaderNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// replaceHeader sets name to value, dropping any spelling of name already present.
func replaceHeader(h http.Header, name, value string) {
	for key := range h {
		if strings.EqualFold(key, name) {
			delete(h, key)
		}
	}
	h.Set(name, value)
}
