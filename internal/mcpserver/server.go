// Package mcpserver adapts the logscope engine onto the Model Context
// Protocol: one tool per engine operation, backed by a single Session.
// Grounded on the tool-registration and response-envelope idiom of
// internal/mcp/server.go and internal/mcp/response.go in the reference
// corpus — mcp.NewServer plus repeated AddTool calls with a
// jsonschema.Schema input schema, each paired with a
// func(ctx, *mcp.CallToolRequest) (*mcp.CallToolResult, error) handler.
package mcpserver

import (
	"context"

	"github.com/standardbeagle/logscope/internal/baseline"
	"github.com/standardbeagle/logscope/internal/config"
	"github.com/standardbeagle/logscope/internal/registry"
	"github.com/standardbeagle/logscope/internal/session"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps an MCP server bound to one logscope Session.
type Server struct {
	server   *mcp.Server
	sess     *session.Session
	cfg      *config.Config
	baselines *baseline.Store
	conns    *registry.Registry
}

// New constructs a Server over sess, persisting baselines at
// baselinePath and admitting at most cfg.Live.MaxConnections
// concurrent live connections.
func New(sess *session.Session, cfg *config.Config, baselinePath string) (*Server, error) {
	store, err := baseline.Open(baselinePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		sess:      sess,
		cfg:       cfg,
		baselines: store,
		conns:     registry.New(cfg.Live.MaxConnections),
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "logscope-mcp-server",
		Version: "0.1.0",
	}, nil)
	s.registerTools()
	return s, nil
}

// Run serves the MCP protocol over stdio until ctx is cancelled or the
// transport closes.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "info",
		Description: "Describe available tools, or a specific tool by name.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tool": {Type: "string", Description: "Tool name to describe; omit for an overview"},
			},
		},
	}, s.handleInfo)

	s.server.AddTool(&mcp.Tool{
		Name:        "open_file",
		Description: "Open a log file, building its line index and returning file info.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string", Description: "Absolute path to the log file"}},
			Required:   []string{"path"},
		},
	}, s.handleOpenFile)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_lines",
		Description: "Return a range of decoded lines from an open file, honoring its active filter if one is set.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":      {Type: "string"},
				"start":     {Type: "integer", Description: "First visible line index, 0-based"},
				"count":     {Type: "integer", Description: "Number of lines to return"},
				"with_meta": {Type: "boolean", Description: "Parse and include timestamps"},
			},
			Required: []string{"path", "start", "count"},
		},
	}, s.handleGetLines)

	s.server.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Search an open file for a literal, wildcard, or regex pattern.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":           {Type: "string"},
				"pattern":        {Type: "string"},
				"flavor":         {Type: "string", Description: "literal (default), wildcard, or regex"},
				"case_sensitive": {Type: "boolean"},
				"whole_word":     {Type: "boolean"},
				"max_matches":    {Type: "integer"},
			},
			Required: []string{"path", "pattern"},
		},
	}, s.handleSearch)

	s.server.AddTool(&mcp.Tool{
		Name:        "set_filter",
		Description: "Apply a level/include/exclude/advanced-rule filter to an open file; subsequent get_lines calls see only the projection.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":          {Type: "string"},
				"levels":        {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"include":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"exclude":       {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"context_lines": {Type: "integer"},
			},
			Required: []string{"path"},
		},
	}, s.handleSetFilter)

	s.server.AddTool(&mcp.Tool{
		Name:        "clear_filter",
		Description: "Remove the active filter from an open file.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}, s.handleClearFilter)

	s.server.AddTool(&mcp.Tool{
		Name:        "analyze",
		Description: "Detect column layout and synthesize noise/error/anomaly insights for an open file.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}, s.handleAnalyze)

	s.server.AddTool(&mcp.Tool{
		Name:        "cluster",
		Description: "Group an open file's lines into Drain templates, returning clusters with more than one member.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {Type: "string"},
				"cap":  {Type: "integer", Description: "Maximum clusters to return, default 500"},
			},
			Required: []string{"path"},
		},
	}, s.handleCluster)

	s.server.AddTool(&mcp.Tool{
		Name:        "baseline_save",
		Description: "Fingerprint an open file and save it as a named baseline.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":        {Type: "string"},
				"name":        {Type: "string"},
				"description": {Type: "string"},
				"tags":        {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
			Required: []string{"path", "name"},
		},
	}, s.handleBaselineSave)

	s.server.AddTool(&mcp.Tool{
		Name:        "baseline_compare",
		Description: "Fingerprint an open file and compare it against a saved baseline, returning severity-classified findings.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":        {Type: "string"},
				"baseline_id": {Type: "string"},
			},
			Required: []string{"path", "baseline_id"},
		},
	}, s.handleBaselineCompare)

	s.server.AddTool(&mcp.Tool{
		Name:        "baseline_list",
		Description: "List saved baselines.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleBaselineList)

	s.server.AddTool(&mcp.Tool{
		Name:        "baseline_delete",
		Description: "Delete a saved baseline by ID.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"baseline_id": {Type: "string"}},
			Required:   []string{"baseline_id"},
		},
	}, s.handleBaselineDelete)

	s.server.AddTool(&mcp.Tool{
		Name:        "bookmark_add",
		Description: "Bookmark a line in an open file.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {Type: "string"},
				"line": {Type: "integer"},
				"note": {Type: "string"},
			},
			Required: []string{"path", "line"},
		},
	}, s.handleBookmarkAdd)

	s.server.AddTool(&mcp.Tool{
		Name:        "bookmark_list",
		Description: "List bookmarks for an open file.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}, s.handleBookmarkList)

	s.server.AddTool(&mcp.Tool{
		Name:        "connect_live",
		Description: "Open a live ingest connection backed by a temp file and open it as a file in the session.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"source_kind":  {Type: "string", Description: "serial, device-log, or ssh"},
				"display_name": {Type: "string"},
				"detail":       {Type: "string"},
			},
			Required: []string{"source_kind", "display_name"},
		},
	}, s.handleConnectLive)

	s.server.AddTool(&mcp.Tool{
		Name:        "write_live",
		Description: "Append a chunk of bytes to a live connection and grow its file index.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"connection_id": {Type: "string"},
				"chunk":         {Type: "string"},
			},
			Required: []string{"connection_id", "chunk"},
		},
	}, s.handleWriteLive)

	s.server.AddTool(&mcp.Tool{
		Name:        "disconnect_live",
		Description: "Gracefully disconnect a live connection, flushing any residual bytes.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"connection_id": {Type: "string"}},
			Required:   []string{"connection_id"},
		},
	}, s.handleDisconnectLive)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_connections",
		Description: "List live connections and their state.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleListConnections)
}
