package steps

import (
	"context"

	"apiprobe/internal/protocol/grpc"
	"apiprobe/internal/protocol/mcp"
	"apiprobe/internal/scenario"

	"github.com/cucumber/godog"
)

// ProtocolSteps drives the MCP and gRPC clients. Each step starts a new
// request, so REST state built earlier in the scenario is discarded.
type ProtocolSteps struct {
	sc *scenario.Context
}

// NewProtocolSteps binds MCP and gRPC steps to a scenario context.
func NewProtocolSteps(sc *scenario.Context) *ProtocolSteps {
	return &ProtocolSteps{sc: sc}
}

// Definitions returns the MCP and gRPC phrases.
func (s *ProtocolSteps) Definitions() []Definition {
	return []Definition{
		{Phrase: "I call the MCP tool {string}", Category: CategoryExecute, Handler: s.callTool},
		{Phrase: "I call the MCP tool {string} with arguments:", Category: CategoryExecute, Handler: s.callToolWithArguments},
		{Phrase: "I list the MCP tools", Category: CategoryExecute, Handler: s.listTools},
		{Phrase: "I check the gRPC health of {string}", Category: CategoryExecute, Handler: s.checkHealth},
		{Phrase: "I check the gRPC health of service {string} at {string}", Category: CategoryExecute, Handler: s.checkServiceHealth},
	}
}

func (s *ProtocolSteps) callTool(ctx context.Context, name string) error {
	s.sc.NewRequest().WithMethod(mcp.MethodCallTool).WithEndpoint(name)
	_, err := s.sc.Execute(ctx, mcp.Protocol)
	return err
}

func (s *ProtocolSteps) callToolWithArguments(ctx context.Context, name string, doc *godog.DocString) error {
	s.sc.NewRequest().
		WithMethod(mcp.MethodCallTool).
		WithEndpoint(name).
		WithBody(doc.Content).
		WithContentType(defaultContentType)
	_, err := s.sc.Execute(ctx, mcp.Protocol)
	return err
}

func (s *ProtocolSteps) listTools(ctx context.Context) error {
	s.sc.NewRequest().WithMethod(mcp.MethodListTools)
	_, err := s.sc.Execute(ctx, mcp.Protocol)
	return err
}

func (s *ProtocolSteps) checkHealth(ctx context.Context, target string) error {
	return s.checkServiceHealth(ctx, "", target)
}

func (s *ProtocolSteps) checkServiceHealth(ctx context.Context, service, target string) error {
	s.sc.NewRequest().
		WithMethod(grpc.MethodHealth).
		WithEndpoint(target).
		WithExtra(grpc.ServiceExtra, service)
	_, err := s.sc.Execute(ctx, grpc.Protocol)
	return err
}
