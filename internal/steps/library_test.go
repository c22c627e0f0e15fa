package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/cucumber/godog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

type mapExpander map[string]string

func (m mapExpander) Expand(s string) string {
	for k, v := range m {
		if s == "{{"+k+"}}" {
			return v
		}
	}
	return s
}

func TestNewLibrary_ValidatesHandlers(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			name:    "not a function",
			def:     Definition{Phrase: "x", Handler: 42},
			wantErr: "must be a function",
		},
		{
			name:    "no error result",
			def:     Definition{Phrase: "x", Handler: func() {}},
			wantErr: "exactly one error",
		},
		{
			name:    "too few arguments",
			def:     Definition{Phrase: "x {string}", Handler: func() error { return nil }},
			wantErr: "placeholders",
		},
		{
			name:    "wrong argument type",
			def:     Definition{Phrase: "x {int}", Handler: func(string) error { return nil }},
			wantErr: "placeholder needs int",
		},
		{
			name:    "wrong trailing type",
			def:     Definition{Phrase: "x:", Handler: func(string) error { return nil }},
			wantErr: "placeholders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLibrary(nil, tt.def)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLibrary_ExecuteConvertsArguments(t *testing.T) {
	var (
		gotCtx  context.Context
		gotName string
		gotN    int
		gotL    int64
		gotF    float64
		gotDoc  string
	)
	lib, err := NewLibrary(mapExpander{"who": "Ada"},
		Definition{
			Phrase: "{string} has {int} items and {long} bytes at {float}",
			Handler: func(ctx context.Context, name string, n int, l int64, f float64) error {
				gotCtx, gotName, gotN, gotL, gotF = ctx, name, n, l, f
				return nil
			},
		},
		Definition{
			Phrase: "the body is:",
			Handler: func(doc *godog.DocString) error {
				gotDoc = doc.Content
				return nil
			},
		},
	)
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	require.NoError(t, lib.Execute(ctx, `"{{who}}" has 3 items and 9000000000 bytes at 1.5`, nil))
	assert.Equal(t, ctx, gotCtx)
	assert.Equal(t, "Ada", gotName)
	assert.Equal(t, 3, gotN)
	assert.Equal(t, int64(9000000000), gotL)
	assert.Equal(t, 1.5, gotF)

	doc := &godog.DocString{Content: "{{who}}"}
	require.NoError(t, lib.Execute(ctx, "the body is:", doc))
	assert.Equal(t, "Ada", gotDoc)
	assert.Equal(t, "{{who}}", doc.Content, "caller's doc string is not modified")

	err = lib.Execute(ctx, "the body is:", nil)
	assert.ErrorContains(t, err, "needs a")
}

func TestLibrary_ExecuteReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	lib, err := NewLibrary(nil, Definition{Phrase: "it fails", Handler: func() error { return boom }})
	require.NoError(t, err)

	assert.ErrorIs(t, lib.Execute(context.Background(), "it fails", nil), boom)
}

func TestLibrary_MatchUndefinedAndAmbiguous(t *testing.T) {
	lib, err := NewLibrary(nil,
		Definition{Phrase: "I have {int} apples", Handler: func(int) error { return nil }},
		Definition{Phrase: "I have {word} apples", Handler: func(string) error { return nil }},
	)
	require.NoError(t, err)

	_, _, err = lib.Match("I have some pears")
	var undefined *UndefinedStepError
	assert.True(t, errors.As(err, &undefined))

	_, _, err = lib.Match("I have 3 apples")
	assert.ErrorContains(t, err, "ambiguous")

	def, args, err := lib.Match("I have many apples")
	require.NoError(t, err)
	assert.Equal(t, "I have {word} apples", def.Phrase)
	assert.Equal(t, []string{"many"}, args)
}

func TestCatalogue_PhrasesAreUnambiguous(t *testing.T) {
	defs, err := Catalogue()
	require.NoError(t, err)

	lib, err := NewLibrary(nil, Definitions(nil)...)
	require.NoError(t, err)

	samples := map[string]string{
		`the REST API base URL is "http://svc.test"`:                   "the REST API base URL is {string}",
		`I set header "X" to "1"`:                                      "I set header {string} to {string}",
		`I set the following headers:`:                                 "I set the following headers:",
		`I set query parameter "q" to "x"`:                             "I set query parameter {string} to {string}",
		`I set path parameter "id" to "99"`:                            "I set path parameter {string} to {string}",
		`I set request content type to "text/plain"`:                   "I set request content type to {string}",
		`I set request timeout to 500 ms`:                              "I set request timeout to {long} ms",
		`I set bearer token "abc"`:                                     "I set bearer token {string}",
		`I set basic auth with username "u" and password "p"`:          "I set basic auth with username {string} and password {string}",
		`I set the request body to:`:                                   "I set the request body to:",
		`I set the request body from file "bodies/user.json"`:          "I set the request body from file {string}",
		`I store "v" as "k"`:                                           "I store {string} as {string}",
		`I send a GET request to "/users/42"`:                          "I send a {word} request to {string}",
		`I send a POST request to "/users" with body:`:                 "I send a {word} request to {string} with body:",
		`the response status code should be 200`:                       "the response status code should be {int}",
		`the response status code should be one of "200,201"`:          "the response status code should be one of {string}",
		`the response body should contain "Ada"`:                       "the response body should contain {string}",
		`the response body should not contain "Bo"`:                    "the response body should not contain {string}",
		`the response header "Location" should be "/users/7"`:          "the response header {string} should be {string}",
		`the response header "Location" should contain "users"`:        "the response header {string} should contain {string}",
		`the response time should be less than 100 ms`:                 "the response time should be less than {long} ms",
		`the response content type should be "json"`:                   "the response content type should be {string}",
		`the JSON path "$.name" should equal "Ada"`:                    "the JSON path {string} should equal {string}",
		`the JSON path "$.id" should equal 42`:                         "the JSON path {string} should equal {int}",
		`the JSON path "$.name" should not be empty`:                   "the JSON path {string} should not be empty",
		`the JSON path "$.items" should have 2 items`:                  "the JSON path {string} should have {int} items",
		`the JSON path "$.name" should contain "d"`:                    "the JSON path {string} should contain {string}",
		`I store the JSON path "$.id" as "id"`:                         "I store the JSON path {string} as {string}",
		`I store the response header "Location" as "loc"`:              "I store the response header {string} as {string}",
		`the response body should be valid JSON`:                       "the response body should be valid JSON",
		`I print the response body`:                                    "I print the response body",
		`I call the MCP tool "echo"`:                                   "I call the MCP tool {string}",
		`I call the MCP tool "echo" with arguments:`:                   "I call the MCP tool {string} with arguments:",
		`I list the MCP tools`:                                         "I list the MCP tools",
		`I check the gRPC health of "localhost:50051"`:                 "I check the gRPC health of {string}",
		`I check the gRPC health of service "orders" at "localhost:1"`: "I check the gRPC health of service {string} at {string}",
	}

	assert.Len(t, defs, len(samples))
	for text, phrase := range samples {
		def, _, err := lib.Match(text)
		if assert.NoError(t, err, text) {
			assert.Equal(t, phrase, def.Phrase)
		}
	}
}
