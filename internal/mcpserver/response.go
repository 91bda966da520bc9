package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// jsonResponse marshals data as the single text content block of a
// tool result.
func jsonResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

// errorResponse reports a tool-level failure inside the result body
// with IsError set, rather than as a protocol-level error, so a
// calling model can see and self-correct on it.
func errorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	result, marshalErr := jsonResponse(map[string]interface{}{
		"success":   false,
		"operation": operation,
		"error":     err.Error(),
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	result.IsError = true
	return result, nil
}
