// Package mcptest serves scripted MCP tools over streamable HTTP so the MCP
// client and MCP feature files can be exercised without a real server.
package mcptest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"apiprobe/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

// Config describes a scripted MCP server.
type Config struct {
	Name  string `yaml:"name"`
	Tools []Tool `yaml:"tools"`
}

// Tool is a single scripted tool.
type Tool struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Responses   []ToolResponse `yaml:"responses"`
}

// ToolResponse is one scripted answer. A response without a condition is
// the fallback. Error marks the result isError with that text.
type ToolResponse struct {
	Condition map[string]interface{} `yaml:"condition,omitempty"`
	Response  interface{}            `yaml:"response,omitempty"`
	Error     string                 `yaml:"error,omitempty"`
	Delay     string                 `yaml:"delay,omitempty"`
}

// LoadConfig parses a YAML server description.
func LoadConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse mock MCP config: %w", err)
	}
	return cfg, nil
}

// Server is an mcp-go server answering with scripted tool responses.
type Server struct {
	name       string
	mcp        *server.MCPServer
	streamable *server.StreamableHTTPServer

	mu    sync.Mutex
	calls map[string]int
}

// NewServer validates cfg and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}
	if len(cfg.Tools) == 0 {
		return nil, fmt.Errorf("mock MCP server %q has no tools", cfg.Name)
	}

	s := &Server{
		name:  cfg.Name,
		calls: make(map[string]int),
	}
	s.mcp = server.NewMCPServer(
		"mock-"+cfg.Name,
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	tools := make([]server.ServerTool, 0, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("mock MCP server %q has a tool without a name", cfg.Name)
		}
		for _, r := range tool.Responses {
			if r.Delay == "" {
				continue
			}
			if _, err := time.ParseDuration(r.Delay); err != nil {
				return nil, fmt.Errorf("tool %s: invalid delay %q: %w", tool.Name, r.Delay, err)
			}
		}
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewTool(tool.Name, mcp.WithDescription(tool.Description)),
			Handler: s.handler(tool),
		})
	}
	s.mcp.AddTools(tools...)
	s.streamable = server.NewStreamableHTTPServer(s.mcp)

	logging.Debug("mcptest", "Mock MCP server %s initialised with %d tools", cfg.Name, len(tools))
	return s, nil
}

// Handler returns the streamable HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.streamable
}

// Calls reports how often a tool was invoked.
func (s *Server) Calls(tool string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[tool]
}

// Start serves cfg on a local listener for the duration of the test and
// returns the server with its endpoint URL.
func Start(t testing.TB, cfg Config) (*Server, string) {
	t.Helper()
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("mock MCP server: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL + "/mcp"
}

func (s *Server) handler(tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		s.mu.Lock()
		s.calls[tool.Name]++
		s.mu.Unlock()

		resp := selectResponse(tool.Responses, args)
		if resp == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no matching response for tool %s", tool.Name)), nil
		}

		if resp.Delay != "" {
			delay, _ := time.ParseDuration(resp.Delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if resp.Error != "" {
			return mcp.NewToolResultError(expand(resp.Error, args)), nil
		}

		text, err := render(resp.Response)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		return mcp.NewToolResultText(expand(text, args)), nil
	}
}

// selectResponse returns the first response whose condition matches args,
// falling back to the first unconditional response.
func selectResponse(responses []ToolResponse, args map[string]interface{}) *ToolResponse {
	for i := range responses {
		if len(responses[i].Condition) > 0 && matches(responses[i].Condition, args) {
			return &responses[i]
		}
	}
	for i := range responses {
		if len(responses[i].Condition) == 0 {
			return &responses[i]
		}
	}
	return nil
}

func matches(condition, args map[string]interface{}) bool {
	for key, expected := range condition {
		actual, ok := args[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(expected, actual) && fmt.Sprint(expected) != fmt.Sprint(actual) {
			return false
		}
	}
	return true
}

func render(v interface{}) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	}
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return "", fmt.Errorf("failed to encode response: %w", err)
	}
	return string(data), nil
}

// normalize turns yaml.v3 map[string]interface{} trees into JSON-encodable
// values. Nested maps with non-string keys are stringified.
func normalize(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, item := range value {
			out[k] = normalize(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, item := range value {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

// expand replaces {{name}} with the string form of the matching argument.
func expand(text string, args map[string]interface{}) string {
	if len(args) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	pairs := make([]string, 0, len(args)*2)
	for key, value := range args {
		pairs = append(pairs, "{{"+key+"}}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
