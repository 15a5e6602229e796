// Package tools exposes the generators and the automation client as MCP tools
// over streamable HTTP.
package tools

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// NewServer creates an MCP server advertising tool support. Handler panics
// are turned into tool errors.
func NewServer(name, version string) *server.MCPServer {
	return server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
}

// Handler serves s over streamable HTTP at EndpointPath.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath(EndpointPath))
}

// optionalNumber reads a numeric argument that may be absent. Clients send
// JSON numbers, but numeric strings are accepted too.
func optionalNumber(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func optionalInt(args map[string]any, key string) *int {
	f, ok := optionalNumber(args, key)
	if !ok {
		return nil
	}
	v := int(f)
	return &v
}

func optionalFloat(args map[string]any, key string) *float64 {
	f, ok := optionalNumber(args, key)
	if !ok {
		return nil
	}
	return &f
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func jsonText(v any) *mcp.CallToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encode result: " + err.Error())
	}
	return mcp.NewToolResultText(string(raw))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
