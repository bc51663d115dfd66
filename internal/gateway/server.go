// Package gateway exposes the record store as MCP tools over streamable HTTP.
// Every tool call is validated against the tool's declared arguments before it
// touches the store; violations come back as structured error results rather
// than transport failures.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"supportmesh/internal/logx"
	"supportmesh/internal/store"
	"supportmesh/internal/types"
)

// Tool names served by the gateway.
const (
	ToolFetchRecord              = "fetch-record"
	ToolListRecords              = "list-records"
	ToolUpdateRecord             = "update-record"
	ToolCreateCase               = "create-case"
	ToolFetchHistory             = "fetch-history"
	ToolListRecordsWithOpenCases = "list-records-with-open-cases"
)

// ServerConfig configures the gateway server.
type ServerConfig struct {
	Addr    string `default:":7341"`
	Name    string `default:"supportmesh-gateway"`
	Version string `default:"1.0.0"`
}

// Server is the MCP tool gateway in front of the record store.
type Server struct {
	cfg       ServerConfig
	store     *store.Store
	mcpServer *mcpserver.MCPServer
	httpSrv   *mcpserver.StreamableHTTPServer
	log       zerolog.Logger
}

// NewServer builds the gateway and registers its tools.
func NewServer(cfg ServerConfig, st *store.Store) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(true),
		),
		log: logx.Component("gateway"),
	}
	s.registerTools()
	s.httpSrv = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	return s
}

// MCPServer exposes the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves MCP over streamable HTTP until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("gateway listening")
	return s.httpSrv.Start(s.cfg.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.fetchRecordTool(),
		s.listRecordsTool(),
		s.updateRecordTool(),
		s.createCaseTool(),
		s.fetchHistoryTool(),
		s.listRecordsWithOpenCasesTool(),
	)
}

func (s *Server) fetchRecordTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolFetchRecord,
		mcplib.WithDescription("Fetch one customer record by its numeric ID"),
		mcplib.WithNumber("customer_id",
			mcplib.Required(),
			mcplib.Description("The customer ID to look up"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFetchRecord}
}

func (s *Server) listRecordsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolListRecords,
		mcplib.WithDescription("List customer records, optionally filtered by status"),
		mcplib.WithString("status",
			mcplib.Description("Filter by customer status: active or disabled"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of records to return (default 10)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListRecords}
}

func (s *Server) updateRecordTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolUpdateRecord,
		mcplib.WithDescription("Update fields on one customer record"),
		mcplib.WithNumber("customer_id",
			mcplib.Required(),
			mcplib.Description("The customer ID to update"),
		),
		mcplib.WithObject("fields",
			mcplib.Required(),
			mcplib.Description("Field name to new value; allowed: name, email, phone, status"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleUpdateRecord}
}

func (s *Server) createCaseTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolCreateCase,
		mcplib.WithDescription("Open a new support case for an existing customer"),
		mcplib.WithNumber("customer_id",
			mcplib.Required(),
			mcplib.Description("The customer the case belongs to"),
		),
		mcplib.WithString("issue",
			mcplib.Required(),
			mcplib.Description("Free-form description of the issue"),
		),
		mcplib.WithString("priority",
			mcplib.Description("Case priority: low, medium or high (default medium)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateCase}
}

func (s *Server) fetchHistoryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolFetchHistory,
		mcplib.WithDescription("Fetch the full case history of one customer, newest first"),
		mcplib.WithNumber("customer_id",
			mcplib.Required(),
			mcplib.Description("The customer whose history to fetch"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFetchHistory}
}

func (s *Server) listRecordsWithOpenCasesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolListRecordsWithOpenCases,
		mcplib.WithDescription("List customers that currently have at least one open case"),
		mcplib.WithString("status",
			mcplib.Description("Filter by customer status: active or disabled"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListRecordsWithOpenCases}
}

func (s *Server) handleFetchRecord(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := intArg(req.GetArguments(), "customer_id", true)
	if err != nil {
		return schemaViolation(err), nil
	}
	customer, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(customer)
}

func (s *Server) handleListRecords(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	status, err := stringArg(args, "status", false)
	if err != nil {
		return schemaViolation(err), nil
	}
	limit, err := intArg(args, "limit", false)
	if err != nil {
		return schemaViolation(err), nil
	}
	customers, err := s.store.ListCustomers(ctx, status, int(limit))
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(map[string]any{"records": customers, "count": len(customers)})
}

func (s *Server) handleUpdateRecord(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	id, err := intArg(args, "customer_id", true)
	if err != nil {
		return schemaViolation(err), nil
	}
	rawFields, ok := args["fields"].(map[string]any)
	if !ok || len(rawFields) == 0 {
		return schemaViolation(fmt.Errorf("fields must be a non-empty object")), nil
	}
	fields := make(map[string]string, len(rawFields))
	for k, v := range rawFields {
		sv, ok := v.(string)
		if !ok {
			return schemaViolation(fmt.Errorf("field %q must be a string", k)), nil
		}
		fields[k] = sv
	}
	customer, err := s.store.UpdateCustomer(ctx, id, fields)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(customer)
}

func (s *Server) handleCreateCase(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.GetArguments()
	id, err := intArg(args, "customer_id", true)
	if err != nil {
		return schemaViolation(err), nil
	}
	issue, err := stringArg(args, "issue", true)
	if err != nil {
		return schemaViolation(err), nil
	}
	priority, err := stringArg(args, "priority", false)
	if err != nil {
		return schemaViolation(err), nil
	}
	created, err := s.store.CreateCase(ctx, id, issue, priority)
	if err != nil {
		return storeError(err), nil
	}
	s.log.Info().Int64("customer_id", id).Int64("case_id", created.ID).Msg("case created")
	return jsonResult(created)
}

func (s *Server) handleFetchHistory(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := intArg(req.GetArguments(), "customer_id", true)
	if err != nil {
		return schemaViolation(err), nil
	}
	history, err := s.store.CaseHistory(ctx, id)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(map[string]any{"customerId": id, "cases": history, "count": len(history)})
}

func (s *Server) handleListRecordsWithOpenCases(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status, err := stringArg(req.GetArguments(), "status", false)
	if err != nil {
		return schemaViolation(err), nil
	}
	customers, err := s.store.CustomersWithOpenCases(ctx, status)
	if err != nil {
		return storeError(err), nil
	}
	return jsonResult(map[string]any{"records": customers, "count": len(customers)})
}

func intArg(args map[string]any, name string, required bool) (int64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
}

func stringArg(args map[string]any, name string, required bool) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%s is required", name)
		}
		return "", nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	if required && v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

// schemaViolation and storeError encode the error taxonomy as a JSON body so
// callers can recover the code without parsing prose.
func schemaViolation(err error) *mcplib.CallToolResult {
	return typedError(types.CodeSchemaViolation, err.Error())
}

func storeError(err error) *mcplib.CallToolResult {
	return typedError(types.CodeStoreError, err.Error())
}

func typedError(code, message string) *mcplib.CallToolResult {
	body, _ := json.Marshal(types.ErrorDetail{Code: code, Message: message})
	return mcplib.NewToolResultError(string(body))
}
