package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"apiprobe/internal/config"
	"apiprobe/internal/protocol/mcp/mcptest"
	"apiprobe/internal/scenario"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersFeature = `Feature: Users API

  @smoke
  Scenario: Fetch a user
    When I send a GET request to "/users/42"
    Then the response status code should be 200
    And the JSON path "$.name" should equal "Ada"
    And I store the JSON path "$.id" as "userId"

  Scenario: Create a user
    Given I store "7" as "n"
    And I set the following headers:
      | X-Trace | t-{{n}} |
    When I send a POST request to "/users" with body:
      """
      {"name": "Ada"}
      """
    Then the response status code should be 201
    And the response header "Location" should be "/users/7"

  Scenario: Expect the wrong status
    When I send a GET request to "/users/1"
    Then the response status code should be 404
`

const undefinedFeature = `Feature: Undefined

  Scenario: Uses a step nobody wrote
    When I teleport to "/users"
`

type traceRecorder struct {
	mu     sync.Mutex
	traces []string
}

func (r *traceRecorder) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, v)
}

func (r *traceRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.traces...)
}

func newUserService(t *testing.T) (*httptest.Server, *traceRecorder) {
	t.Helper()
	rec := &traceRecorder{}
	router := mux.NewRouter()
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":`+mux.Vars(r)["id"]+`,"name":"Ada"}`)
	}).Methods(http.MethodGet)
	router.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header.Get("X-Trace"))
		w.Header().Set("Location", "/users/7")
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, rec
}

func newEngine(t *testing.T, baseURL string, features fstest.MapFS, mutate func(*Options)) (*Engine, *bytes.Buffer) {
	t.Helper()
	resources := fstest.MapFS{}
	resolver, err := config.Load(config.Options{
		Resources: resources,
		Overrides: map[string]string{"rest.base-url": baseURL},
	})
	require.NoError(t, err)

	summary := &bytes.Buffer{}
	opts := DefaultOptions()
	opts.Format = "progress"
	opts.NoColors = true
	opts.Resources = resources
	opts.Features = features
	opts.Output = io.Discard
	opts.Summary = summary
	if mutate != nil {
		mutate(&opts)
	}

	e, err := New(opts, resolver)
	require.NoError(t, err)
	return e, summary
}

func TestEngine_RunFeatures(t *testing.T) {
	srv, traces := newUserService(t)
	recorder := &scenario.Recorder{}
	reportDir := t.TempDir()

	e, summary := newEngine(t, srv.URL, fstest.MapFS{
		"features/users.feature": &fstest.MapFile{Data: []byte(usersFeature)},
	}, func(o *Options) {
		o.ReportDir = reportDir
		o.Sinks = []scenario.Sink{recorder}
	})

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, ExitFailed, result.ExitCode)
	assert.NotEmpty(t, result.RunID)

	assert.Equal(t, []string{"t-7"}, traces.all())

	byName := map[string]ScenarioResult{}
	for _, s := range result.Scenarios {
		byName[s.Name] = s
	}

	fetch := byName["Fetch a user"]
	assert.Equal(t, scenario.StatusPassed, fetch.Status)
	assert.Equal(t, []string{"@smoke"}, fetch.Tags)
	assert.Len(t, fetch.Steps, 4)
	assert.Empty(t, fetch.Attachments)

	failed := byName["Expect the wrong status"]
	assert.Equal(t, scenario.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "HTTP status code: expected 404 but was 200")
	require.Len(t, failed.Attachments, 1)
	assert.Equal(t, scenario.LastResponseAttachment, failed.Attachments[0].Name)
	assert.Equal(t, "text/plain", failed.Attachments[0].MediaType)
	assert.Equal(t, `{"id":1,"name":"Ada"}`, failed.Attachments[0].Body)

	latency, ok := result.Latency["REST"]
	require.True(t, ok)
	assert.Equal(t, int64(3), latency.Count)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.ScenariosTotal.WithLabelValues("PASSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.ScenariosTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.metrics.ActiveScenarios))
	assert.Empty(t, e.Registry().Live(), "clients are closed after the suite")

	var finished int
	for _, ev := range recorder.Events() {
		if ev.Kind == scenario.ScenarioFinished {
			finished++
		}
	}
	assert.Equal(t, 3, finished)

	assert.Contains(t, summary.String(), "2 passed")
	assert.Contains(t, summary.String(), "Expect the wrong status")
	assert.Contains(t, summary.String(), "REST")

	reports, err := filepath.Glob(filepath.Join(reportDir, "apiprobe-report-*.json"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	data, err := os.ReadFile(reports[0])
	require.NoError(t, err)
	var saved SuiteResult
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, result.RunID, saved.RunID)
	assert.Equal(t, 1, saved.Failed)
}

func TestEngine_TagFilterPasses(t *testing.T) {
	srv, _ := newUserService(t)
	e, _ := newEngine(t, srv.URL, fstest.MapFS{
		"features/users.feature": &fstest.MapFile{Data: []byte(usersFeature)},
	}, func(o *Options) {
		o.Tags = "@smoke"
		o.Reporter = ReporterQuiet
	})

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, ExitPassed, result.ExitCode)
}

func TestEngine_UndefinedStepFailsWhenStrict(t *testing.T) {
	e, _ := newEngine(t, "http://127.0.0.1:1", fstest.MapFS{
		"features/undefined.feature": &fstest.MapFile{Data: []byte(undefinedFeature)},
	}, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitFailed, result.ExitCode)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, scenario.StatusFailed, result.Scenarios[0].Status)
}

func TestEngine_MissingFeaturesIsEngineError(t *testing.T) {
	e, _ := newEngine(t, "http://127.0.0.1:1", fstest.MapFS{}, func(o *Options) {
		o.Paths = []string{"nowhere"}
		o.Reporter = ReporterNone
	})

	result, err := e.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitEngineError, result.ExitCode)
}

func TestNew_RejectsBadDescriptorFile(t *testing.T) {
	resources := fstest.MapFS{
		"config/protocols.yml": &fstest.MapFile{Data: []byte("protocols:\n  - protocol: HTTP\n    driver: SOAP\n")},
	}
	resolver, err := config.Load(config.Options{Resources: resources})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Resources = resources
	_, err = New(opts, resolver)
	assert.Error(t, err)
}

func TestNew_AppliesDescriptorAliases(t *testing.T) {
	resources := fstest.MapFS{
		"config/protocols.yml": &fstest.MapFile{Data: []byte("protocols:\n  - protocol: HTTP\n    driver: REST\n")},
	}
	resolver, err := config.Load(config.Options{Resources: resources})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Resources = resources
	e, err := New(opts, resolver)
	require.NoError(t, err)
	assert.Equal(t, []string{"GRPC", "HTTP", "MCP", "REST"}, e.Registry().Protocols())
}

const toolsFeature = `Feature: MCP tools

  Scenario: Call a scripted tool
    When I list the MCP tools
    Then the JSON path "$[0]" should equal "greet"
    When I call the MCP tool "greet" with arguments:
      """
      {"name": "Ada"}
      """
    Then the response status code should be 0
    And the JSON path "$.greeting" should equal "hello Ada"
`

func TestEngine_RunMCPFeature(t *testing.T) {
	srv, endpoint := mcptest.Start(t, mcptest.Config{
		Name: "greeter",
		Tools: []mcptest.Tool{{
			Name: "greet",
			Responses: []mcptest.ToolResponse{
				{Response: map[string]interface{}{"greeting": "hello {{name}}"}},
			},
		}},
	})

	resources := fstest.MapFS{}
	resolver, err := config.Load(config.Options{
		Resources: resources,
		Overrides: map[string]string{"mcp.endpoint": endpoint},
	})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Format = "progress"
	opts.NoColors = true
	opts.Resources = resources
	opts.Features = fstest.MapFS{
		"features/tools.feature": &fstest.MapFile{Data: []byte(toolsFeature)},
	}
	opts.Output = io.Discard
	opts.Summary = io.Discard

	e, err := New(opts, resolver)
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, ExitPassed, result.ExitCode, result.Scenarios[0].Error)
	assert.Equal(t, 1, srv.Calls("greet"))
	assert.Equal(t, int64(2), result.Latency["MCP"].Count)
}
