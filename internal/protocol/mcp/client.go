// Package mcp implements a protocol client that calls tools on an MCP
// server over streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"apiprobe/internal/protocol"
	"apiprobe/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Protocol is the registry name of the MCP client.
const Protocol = "MCP"

const (
	MethodCallTool  = "CALL_TOOL"
	MethodListTools = "LIST_TOOLS"

	DefaultEndpoint = "http://localhost:8090/mcp"
	DefaultTimeout  = 30 * time.Second

	// StatusToolError is the status code of a tool result flagged isError.
	StatusToolError = 1

	protocolVersion = "2024-11-05"
)

// session is the part of the mcp-go client the harness uses.
type session interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	Close() error
}

type connectFunc func(ctx context.Context, endpoint string, timeout time.Duration) (session, error)

// Client implements protocol.Client for MCP tool calls.
type Client struct {
	endpoint string
	timeout  time.Duration
	connect  connectFunc

	mu      sync.Mutex
	session session
}

// New returns an uninitialised MCP client.
func New() protocol.Client {
	return &Client{connect: dialStreamable}
}

// Descriptor declares the MCP client for the protocol catalogue.
func Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Protocol:    Protocol,
		Description: "MCP tool calls over streamable HTTP",
		New:         New,
	}
}

func (c *Client) Protocol() string {
	return Protocol
}

// Init reads mcp.* settings. The connection is opened on first use.
func (c *Client) Init(cfg protocol.Config) error {
	c.endpoint = cfg.String("mcp.endpoint", DefaultEndpoint)
	timeout, err := cfg.Duration("mcp.timeout-ms", DefaultTimeout)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.timeout = timeout
	logging.Info("mcp", "MCP client initialised (endpoint %s, timeout %s)", c.endpoint, c.timeout)
	return nil
}

// dialStreamable connects to an MCP server and performs the initialize handshake.
func dialStreamable(ctx context.Context, endpoint string, timeout time.Duration) (session, error) {
	httpClient, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}

	if err := httpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start streamable HTTP client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = protocolVersion
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "apiprobe",
		Version: "1.0.0",
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := httpClient.Initialize(initCtx, initRequest); err != nil {
		httpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}
	return httpClient, nil
}

func (c *Client) ensureSession(ctx context.Context) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}
	s, err := c.connect(ctx, c.endpoint, c.timeout)
	if err != nil {
		return nil, err
	}
	logging.Info("mcp", "Connected to MCP server at %s", c.endpoint)
	c.session = s
	return s, nil
}

// Execute maps the request onto a tool call or a tool listing.
func (c *Client) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	switch method {
	case MethodCallTool:
		if err := req.Validate(); err != nil {
			return nil, err
		}
	case MethodListTools:
	case "":
		return nil, &protocol.RequestShapeError{Reason: "method is empty"}
	default:
		return nil, &protocol.UnsupportedMethodError{
			Protocol: Protocol,
			Method:   req.Method,
			Allowed:  []string{MethodCallTool, MethodListTools},
		}
	}

	var args map[string]interface{}
	if method == MethodCallTool && strings.TrimSpace(req.Body) != "" {
		if err := json.Unmarshal([]byte(req.Body), &args); err != nil {
			return nil, &protocol.RequestShapeError{Reason: fmt.Sprintf("tool arguments must be a JSON object: %v", err)}
		}
	}

	timeout := c.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	start := time.Now()
	s, err := c.ensureSession(ctx)
	if err != nil {
		return nil, &protocol.TransportError{Protocol: Protocol, Method: method, Target: c.endpoint, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if method == MethodListTools {
		return c.listTools(callCtx, s, start)
	}
	return c.callTool(callCtx, s, req.Endpoint, args, start)
}

func (c *Client) callTool(ctx context.Context, s session, name string, args map[string]interface{}, start time.Time) (*protocol.Response, error) {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	if args != nil {
		request.Params.Arguments = args
	}

	logging.Debug("mcp", "Calling tool %s", name)
	result, err := s.CallTool(ctx, request)
	if err != nil {
		return nil, &protocol.TransportError{Protocol: Protocol, Method: MethodCallTool, Target: name, Err: err}
	}
	elapsed := time.Since(start)

	var texts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, text.Text)
		}
	}
	body := strings.Join(texts, "\n")

	status, line := 0, "OK"
	if result.IsError {
		status, line = StatusToolError, "TOOL_ERROR"
	}

	contentType := "text/plain"
	if json.Valid([]byte(body)) {
		contentType = "application/json"
	}

	return protocol.NewResponseBuilder().
		StatusCode(status).
		StatusLine(line).
		Body(body).
		ContentType(contentType).
		ResponseTime(elapsed).
		Extra("raw", result).
		Build(), nil
}

func (c *Client) listTools(ctx context.Context, s session, start time.Time) (*protocol.Response, error) {
	result, err := s.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, &protocol.TransportError{Protocol: Protocol, Method: MethodListTools, Target: c.endpoint, Err: err}
	}
	elapsed := time.Since(start)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	body, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}

	return protocol.NewResponseBuilder().
		StatusCode(0).
		StatusLine("OK").
		Body(string(body)).
		ContentType("application/json").
		ResponseTime(elapsed).
		Extra("raw", result).
		Build(), nil
}

// Close closes the MCP session if one was opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	logging.Debug("mcp", "Closing MCP connection to %s", c.endpoint)
	err := c.session.Close()
	c.session = nil
	return err
}
