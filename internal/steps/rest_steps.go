package steps

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"apiprobe/internal/protocol/rest"
	"apiprobe/internal/scenario"
	"apiprobe/pkg/logging"

	"github.com/cucumber/godog"
)

const (
	// BaseURLKey is the bag key holding the base URL set by a scenario.
	BaseURLKey = "rest.base-url.override"

	defaultContentType = "application/json"
)

// RestSteps holds the REST setup and execution steps of one scenario.
type RestSteps struct {
	sc *scenario.Context
}

// NewRestSteps binds REST steps to a scenario context.
func NewRestSteps(sc *scenario.Context) *RestSteps {
	return &RestSteps{sc: sc}
}

// Definitions returns the REST setup and execution phrases.
func (s *RestSteps) Definitions() []Definition {
	return []Definition{
		{Phrase: "the REST API base URL is {string}", Category: CategorySetup, Handler: s.setBaseURL},
		{Phrase: "I set header {string} to {string}", Category: CategorySetup, Handler: s.setHeader},
		{Phrase: "I set the following headers:", Category: CategorySetup, Handler: s.setHeaders},
		{Phrase: "I set query parameter {string} to {string}", Category: CategorySetup, Handler: s.setQueryParam},
		{Phrase: "I set path parameter {string} to {string}", Category: CategorySetup, Handler: s.setPathParam},
		{Phrase: "I set request content type to {string}", Category: CategorySetup, Handler: s.setContentType},
		{Phrase: "I set request timeout to {long} ms", Category: CategorySetup, Handler: s.setTimeout},
		{Phrase: "I set bearer token {string}", Category: CategorySetup, Handler: s.setBearerToken},
		{Phrase: "I set basic auth with username {string} and password {string}", Category: CategorySetup, Handler: s.setBasicAuth},
		{Phrase: "I set the request body to:", Category: CategorySetup, Handler: s.setBody},
		{Phrase: "I set the request body from file {string}", Category: CategorySetup, Handler: s.setBodyFromFile},
		{Phrase: "I store {string} as {string}", Category: CategorySetup, Handler: s.store},
		{Phrase: "I send a {word} request to {string}", Category: CategoryExecute, Handler: s.send},
		{Phrase: "I send a {word} request to {string} with body:", Category: CategoryExecute, Handler: s.sendWithBody},
	}
}

func (s *RestSteps) setBaseURL(baseURL string) error {
	s.sc.Set(BaseURLKey, baseURL)
	logging.Info("steps", "Base URL overridden to: %s", baseURL)
	return nil
}

func (s *RestSteps) setHeader(name, value string) error {
	s.sc.CurrentRequest().WithHeader(name, value)
	return nil
}

// setHeaders takes a two column table of name and value, one header per row.
func (s *RestSteps) setHeaders(table *godog.Table) error {
	req := s.sc.CurrentRequest()
	for i, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("header table row %d has %d cells, want 2", i+1, len(row.Cells))
		}
		req.WithHeader(s.sc.Expand(row.Cells[0].Value), s.sc.Expand(row.Cells[1].Value))
	}
	return nil
}

func (s *RestSteps) setQueryParam(name, value string) error {
	s.sc.CurrentRequest().WithQueryParam(name, value)
	return nil
}

func (s *RestSteps) setPathParam(name, value string) error {
	s.sc.CurrentRequest().WithPathParam(name, value)
	return nil
}

func (s *RestSteps) setContentType(contentType string) error {
	s.sc.CurrentRequest().WithContentType(contentType)
	return nil
}

func (s *RestSteps) setTimeout(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("request timeout must not be negative, got %d", ms)
	}
	s.sc.CurrentRequest().WithTimeoutMs(ms)
	return nil
}

func (s *RestSteps) setBearerToken(token string) error {
	s.sc.CurrentRequest().WithBearerToken(token)
	return nil
}

func (s *RestSteps) setBasicAuth(username, password string) error {
	s.sc.CurrentRequest().WithBasicAuth(username, password)
	return nil
}

func (s *RestSteps) setBody(doc *godog.DocString) error {
	s.applyBody(doc.Content)
	return nil
}

func (s *RestSteps) setBodyFromFile(path string) error {
	resources := s.sc.Resources()
	if resources == nil {
		resources = os.DirFS(".")
	}
	data, err := fs.ReadFile(resources, strings.TrimPrefix(path, "/"))
	if err != nil {
		return fmt.Errorf("failed to read request body file %s: %w", path, err)
	}
	s.applyBody(string(data))
	return nil
}

// applyBody sets the body and defaults the content type to JSON when unset.
func (s *RestSteps) applyBody(body string) {
	req := s.sc.CurrentRequest()
	req.WithBody(body)
	if req.ContentType == "" {
		req.WithContentType(defaultContentType)
	}
}

func (s *RestSteps) store(value, key string) error {
	s.sc.Set(key, value)
	return nil
}

func (s *RestSteps) send(ctx context.Context, method, endpoint string) error {
	s.sc.CurrentRequest().WithMethod(method).WithEndpoint(endpoint)
	return s.execute(ctx)
}

func (s *RestSteps) sendWithBody(ctx context.Context, method, endpoint string, doc *godog.DocString) error {
	s.sc.CurrentRequest().WithMethod(method).WithEndpoint(endpoint)
	s.applyBody(doc.Content)
	return s.execute(ctx)
}

func (s *RestSteps) execute(ctx context.Context) error {
	req := s.sc.CurrentRequest()
	if base, ok := s.sc.Get(BaseURLKey); ok {
		req.WithExtra(rest.BaseURLExtra, scenario.Stringify(base))
	}
	resp, err := s.sc.Execute(ctx, rest.Protocol)
	if err != nil {
		return err
	}
	logging.Debug("steps", "%s -> %d (%d ms)", req, resp.StatusCode(), resp.ResponseTimeMs())
	return nil
}
