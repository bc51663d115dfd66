package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"supportmesh/internal/logx"
	"supportmesh/internal/types"
)

// ToolError is a failed tool call with its taxonomy code preserved.
type ToolError struct {
	Code    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToolCaller is the part of the gateway client that specialists depend on.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Client talks MCP to the tool gateway over streamable HTTP.
type Client struct {
	mcp   *mcpclient.Client
	tools map[string]bool
	log   zerolog.Logger
}

// Dial connects to the gateway, performs the MCP handshake and caches the
// advertised tool list.
func Dial(ctx context.Context, url string) (*Client, error) {
	mcp, err := mcpclient.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "supportmesh",
		Version: "1.0.0",
	}
	if _, err := mcp.Initialize(ctx, initReq); err != nil {
		mcp.Close()
		return nil, fmt.Errorf("gateway handshake: %w", err)
	}

	listed, err := mcp.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		mcp.Close()
		return nil, fmt.Errorf("list gateway tools: %w", err)
	}
	tools := make(map[string]bool, len(listed.Tools))
	for i := range listed.Tools {
		tools[listed.Tools[i].Name] = true
	}

	c := &Client{mcp: mcp, tools: tools, log: logx.Component("gateway-client")}
	c.log.Info().Int("tools", len(tools)).Str("url", url).Msg("connected to gateway")
	return c, nil
}

func (c *Client) Close() error {
	return c.mcp.Close()
}

// CallTool invokes one gateway tool and decodes its JSON payload. Failed
// calls come back as *ToolError carrying the gateway's error code; a tool
// name the gateway never advertised fails without a round trip.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if !c.tools[name] {
		return nil, &ToolError{Code: types.CodeUnknownTool, Message: "unknown tool: " + name}
	}

	req := mcpprotocol.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return nil, &ToolError{Code: types.CodeStoreError, Message: err.Error()}
	}

	text := firstText(result)
	if result.IsError {
		return nil, decodeToolError(text)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &ToolError{Code: types.CodeStoreError, Message: "malformed tool payload: " + err.Error()}
	}
	return payload, nil
}

func firstText(result *mcpprotocol.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(mcpprotocol.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeToolError(text string) *ToolError {
	var detail types.ErrorDetail
	if err := json.Unmarshal([]byte(text), &detail); err == nil && detail.Code != "" {
		return &ToolError{Code: detail.Code, Message: detail.Message}
	}
	return &ToolError{Code: types.CodeStoreError, Message: text}
}
