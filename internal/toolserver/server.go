package toolserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"MedicareCoverageChecker/internal/logging"
	"MedicareCoverageChecker/internal/usecase"
)

// Tool names exposed to clients.
const (
	ServerName         = "medicare-coverage-checker"
	ToolLookup         = "lookup_reimbursement"
	ToolTestConnection = "test_cms_api_connection"
	ToolExplain        = "explain_medicare_payments"
)

// Services is the application surface the tools dispatch to.
type Services interface {
	LookupReimbursement(ctx context.Context, code, locality string) (usecase.LookupResponse, error)
	TestConnection(ctx context.Context) usecase.ConnectionReport
	ExplainPayments() usecase.PaymentExplanation
}

// LookupArgs are the arguments of lookup_reimbursement.
type LookupArgs struct {
	Code     string `json:"code,omitempty" jsonschema:"HCPCS or CPT code to look up, e.g. G0008 or 99213"`
	Locality string `json:"locality,omitempty" jsonschema:"geographic locality for pricing; defaults to National"`
}

// NoArgs is the empty argument object of the parameterless tools.
type NoArgs struct{}

// New registers the three tools on an MCP server.
func New(svc Services, version string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = logging.Discard()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolLookup,
		Description: "Look up Medicare physician fee schedule reimbursement for a HCPCS/CPT code: " +
			"payment amounts, RVUs and patient coinsurance, fetched live from CMS data services.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args LookupArgs) (*mcp.CallToolResult, usecase.LookupResponse, error) {
		started := time.Now()
		resp, err := svc.LookupReimbursement(ctx, args.Code, args.Locality)
		if err != nil {
			logger.Warn("tool call failed", "tool", ToolLookup, "code", args.Code, "error", err)
			return nil, usecase.LookupResponse{}, err
		}
		logger.Info("tool call", "tool", ToolLookup, "code", resp.Code, "status", resp.Status, "duration", time.Since(started))
		return nil, resp, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolTestConnection,
		Description: "Check that the CMS endpoints used for lookups are reachable.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ NoArgs) (*mcp.CallToolResult, usecase.ConnectionReport, error) {
		report := svc.TestConnection(ctx)
		if report.Endpoints == nil {
			report.Endpoints = []usecase.EndpointStatus{}
		}
		logger.Info("tool call", "tool", ToolTestConnection, "status", report.Status)
		return nil, report, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolExplain,
		Description: "Explain how Medicare physician payments are calculated from RVUs, the conversion factor and geographic adjustment.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ NoArgs) (*mcp.CallToolResult, usecase.PaymentExplanation, error) {
		logger.Debug("tool call", "tool", ToolExplain)
		exp := svc.ExplainPayments()
		if exp.Sections == nil {
			exp.Sections = []usecase.ExplanationSection{}
		}
		return nil, exp, nil
	})

	return server
}

// Serve runs the server over stdin/stdout until ctx is done or the client disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
