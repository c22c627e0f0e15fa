package protocol

import "time"

// Response is the result of a call. Once built it is read-only.
type Response struct {
	statusCode   int
	statusLine   string
	headers      Pairs
	body         string
	responseTime time.Duration
	contentType  string
	extras       map[string]any
}

// StatusCode returns the status code, or -1 when the protocol has none.
func (r *Response) StatusCode() int { return r.statusCode }

func (r *Response) StatusLine() string { return r.statusLine }

func (r *Response) Body() string { return r.body }

func (r *Response) ContentType() string { return r.contentType }

// ResponseTime returns the wall-clock duration of the call.
func (r *Response) ResponseTime() time.Duration { return r.responseTime }

// ResponseTimeMs returns ResponseTime in whole milliseconds.
func (r *Response) ResponseTimeMs() int64 { return r.responseTime.Milliseconds() }

// Header looks a header up case-insensitively and returns the first match.
func (r *Response) Header(name string) (string, bool) {
	return r.headers.GetFold(name)
}

// HeaderValues returns every value emitted for name.
func (r *Response) HeaderValues(name string) []string {
	return r.headers.Values(name)
}

// Headers returns a copy of all headers in emission order, duplicates included.
func (r *Response) Headers() []Pair {
	return r.headers.All()
}

// Extra returns a protocol specific value, such as the raw transport response.
func (r *Response) Extra(key string) (any, bool) {
	v, ok := r.extras[key]
	return v, ok
}

// Extras returns a copy of the protocol specific values.
func (r *Response) Extras() map[string]any {
	out := make(map[string]any, len(r.extras))
	for k, v := range r.extras {
		out[k] = v
	}
	return out
}

// ResponseBuilder assembles a Response.
type ResponseBuilder struct {
	resp Response
}

// NewResponseBuilder starts a response with status code -1.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{resp: Response{statusCode: -1, extras: make(map[string]any)}}
}

func (b *ResponseBuilder) StatusCode(code int) *ResponseBuilder {
	b.resp.statusCode = code
	return b
}

func (b *ResponseBuilder) StatusLine(line string) *ResponseBuilder {
	b.resp.statusLine = line
	return b
}

// Header appends a header, keeping duplicates.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.resp.headers.Add(name, value)
	return b
}

func (b *ResponseBuilder) Body(body string) *ResponseBuilder {
	b.resp.body = body
	return b
}

func (b *ResponseBuilder) ContentType(contentType string) *ResponseBuilder {
	b.resp.contentType = contentType
	return b
}

func (b *ResponseBuilder) ResponseTime(d time.Duration) *ResponseBuilder {
	b.resp.responseTime = d
	return b
}

func (b *ResponseBuilder) Extra(key string, value any) *ResponseBuilder {
	b.resp.extras[key] = value
	return b
}

// Build returns a snapshot of the response. Later builder calls do not affect it.
func (b *ResponseBuilder) Build() *Response {
	resp := b.resp
	resp.headers = b.resp.headers.clone()
	resp.extras = make(map[string]any, len(b.resp.extras))
	for k, v := range b.resp.extras {
		resp.extras[k] = v
	}
	return &resp
}
