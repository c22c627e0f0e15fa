package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// BasicAuth holds preemptive basic-auth credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one outbound call. It is a mutable builder; every
// With method returns the receiver so calls can be chained.
type Request struct {
	Endpoint    string
	Method      string
	Headers     Pairs
	QueryParams Pairs
	PathParams  Pairs
	Body        string
	ContentType string
	// TimeoutMs of 0 means the client default.
	TimeoutMs   int64
	BearerToken string
	Basic       *BasicAuth
	Extras      map[string]any
}

// NewRequest returns an empty request.
func NewRequest() *Request {
	return &Request{Extras: make(map[string]any)}
}

func (r *Request) WithEndpoint(endpoint string) *Request {
	r.Endpoint = endpoint
	return r
}

func (r *Request) WithMethod(method string) *Request {
	r.Method = method
	return r
}

// WithHeader sets a header. Header names match case-insensitively, so
// setting "content-type" after "Content-Type" replaces the value in place.
func (r *Request) WithHeader(name, value string) *Request {
	r.Headers.SetFold(name, value)
	return r
}

func (r *Request) WithQueryParam(name, value string) *Request {
	r.QueryParams.Set(name, value)
	return r
}

func (r *Request) WithPathParam(name, value string) *Request {
	r.PathParams.Set(name, value)
	return r
}

func (r *Request) WithBody(body string) *Request {
	r.Body = body
	return r
}

func (r *Request) WithContentType(contentType string) *Request {
	r.ContentType = contentType
	return r
}

func (r *Request) WithTimeoutMs(ms int64) *Request {
	r.TimeoutMs = ms
	return r
}

func (r *Request) WithBearerToken(token string) *Request {
	r.BearerToken = token
	return r
}

func (r *Request) WithBasicAuth(username, password string) *Request {
	r.Basic = &BasicAuth{Username: username, Password: password}
	return r
}

// WithExtra stores a protocol specific value.
func (r *Request) WithExtra(key string, value any) *Request {
	if r.Extras == nil {
		r.Extras = make(map[string]any)
	}
	r.Extras[key] = value
	return r
}

// Extra returns a protocol specific value.
func (r *Request) Extra(key string) (any, bool) {
	v, ok := r.Extras[key]
	return v, ok
}

// ExtraString returns a protocol specific value when it is a non-empty string.
func (r *Request) ExtraString(key string) string {
	if s, ok := r.Extras[key].(string); ok {
		return s
	}
	return ""
}

// Authorization returns the Authorization header value implied by the
// credentials. A bearer token wins over basic auth.
func (r *Request) Authorization() (string, bool) {
	if r.BearerToken != "" {
		return "Bearer " + r.BearerToken, true
	}
	if r.Basic != nil {
		creds := r.Basic.Username + ":" + r.Basic.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)), true
	}
	return "", false
}

// Validate checks that the request can be executed.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Method) == "" {
		return &RequestShapeError{Reason: "method is empty"}
	}
	if strings.TrimSpace(r.Endpoint) == "" {
		return &RequestShapeError{Reason: "endpoint is empty"}
	}
	return nil
}

func (r *Request) String() string {
	ct := r.ContentType
	if ct == "" {
		ct = "-"
	}
	return fmt.Sprintf("%s %s (content-type: %s, body: %d bytes)", r.Method, r.Endpoint, ct, len(r.Body))
}
