package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/logscope/internal/analyzer"
	"github.com/standardbeagle/logscope/internal/baseline"
	"github.com/standardbeagle/logscope/internal/drain"
	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/filter"
	"github.com/standardbeagle/logscope/internal/ingest"
	"github.com/standardbeagle/logscope/internal/registry"
	"github.com/standardbeagle/logscope/internal/search"
	"github.com/standardbeagle/logscope/internal/session"
	"github.com/standardbeagle/logscope/internal/timestamp"
	"github.com/standardbeagle/logscope/internal/types"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var toolDescriptions = map[string]string{
	"info":             "Describe available tools, or a specific tool by name.",
	"open_file":        "Open a log file, building its line index.",
	"get_lines":        "Return a range of decoded lines, honoring any active filter.",
	"search":           "Search an open file for a literal, wildcard, or regex pattern.",
	"set_filter":       "Apply a level/include/exclude/advanced filter to an open file.",
	"clear_filter":     "Remove the active filter from an open file.",
	"analyze":          "Detect column layout and synthesize insights.",
	"cluster":          "Group lines into Drain templates.",
	"baseline_save":    "Fingerprint and save the current file as a baseline.",
	"baseline_compare": "Compare the current file against a saved baseline.",
	"baseline_list":    "List saved baselines.",
	"baseline_delete":  "Delete a saved baseline.",
	"bookmark_add":     "Bookmark a line.",
	"bookmark_list":    "List bookmarks.",
	"connect_live":     "Open a live ingest connection backed by a temp file.",
	"write_live":       "Append bytes to a live connection.",
	"disconnect_live":  "Gracefully disconnect a live connection.",
	"list_connections": "List live connections.",
}

func unmarshalParams(req *mcp.CallToolRequest, v interface{}) error {
	return json.Unmarshal(req.Params.Arguments, v)
}

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Tool string `json:"tool"`
	}
	_ = unmarshalParams(req, &params)
	if params.Tool == "" {
		return jsonResponse(map[string]interface{}{"tools": toolDescriptions})
	}
	desc, ok := toolDescriptions[params.Tool]
	if !ok {
		return errorResponse("info", engineerr.NotFound("mcpserver.info", nil))
	}
	return jsonResponse(map[string]interface{}{"tool": params.Tool, "description": desc})
}

func (s *Server) handleOpenFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("open_file", engineerr.InvalidInput("mcpserver.open_file", err))
	}
	h, err := s.sess.OpenFile(params.Path, nil, nil)
	if err != nil {
		return errorResponse("open_file", err)
	}
	return jsonResponse(h.View.Info())
}

func (s *Server) handleGetLines(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path     string `json:"path"`
		Start    uint64 `json:"start"`
		Count    int    `json:"count"`
		WithMeta bool   `json:"with_meta"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("get_lines", engineerr.InvalidInput("mcpserver.get_lines", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("get_lines", err)
	}

	var parseTs func(string) (int64, bool)
	if params.WithMeta {
		parseTs = func(text string) (int64, bool) {
			r, ok := timestamp.Parse(text)
			return r.EpochMs, ok
		}
	}

	if !h.HasFilter {
		lines, err := h.View.GetLines(params.Start, params.Count, params.WithMeta, parseTs)
		if err != nil {
			return errorResponse("get_lines", err)
		}
		return jsonResponse(map[string]interface{}{"lines": lines})
	}

	end := params.Start + uint64(params.Count)
	if end > uint64(len(h.Filter)) {
		end = uint64(len(h.Filter))
	}
	if params.Start > end {
		return errorResponse("get_lines", engineerr.InvalidInput("mcpserver.get_lines", nil))
	}
	out := make([]types.LineRecord, 0, end-params.Start)
	for _, real := range h.Filter[params.Start:end] {
		recs, err := h.View.GetLines(real, 1, params.WithMeta, parseTs)
		if err != nil {
			return errorResponse("get_lines", err)
		}
		out = append(out, recs...)
	}
	return jsonResponse(map[string]interface{}{"lines": out})
}

func lineTextFunc(h *session.FileHandle) search.LineTextFunc {
	return func(lineNumber uint64) (string, bool) {
		recs, err := h.View.GetLines(lineNumber, 1, false, nil)
		if err != nil || len(recs) == 0 {
			return "", false
		}
		return recs[0].Text, true
	}
}

func lineInfoFunc(h *session.FileHandle) filter.LineInfoFunc {
	return func(lineNumber uint64) filter.LineInfo {
		recs, err := h.View.GetLines(lineNumber, 1, true, nil)
		if err != nil || len(recs) == 0 {
			return filter.LineInfo{}
		}
		return filter.LineInfo{Text: recs[0].Text, Level: recs[0].Level, HasLevel: recs[0].HasLevel}
	}
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path          string `json:"path"`
		Pattern       string `json:"pattern"`
		Flavor        string `json:"flavor"`
		CaseSensitive bool   `json:"case_sensitive"`
		WholeWord     bool   `json:"whole_word"`
		MaxMatches    int    `json:"max_matches"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("search", engineerr.InvalidInput("mcpserver.search", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("search", err)
	}

	flavor := search.FlavorLiteral
	switch params.Flavor {
	case string(search.FlavorRegex):
		flavor = search.FlavorRegex
	case string(search.FlavorWildcard):
		flavor = search.FlavorWildcard
	}

	maxMatches := params.MaxMatches
	if maxMatches <= 0 {
		maxMatches = s.cfg.Search.MaxMatches
	}

	opts := search.Options{
		Pattern:   params.Pattern,
		Flavor:    flavor,
		MatchCase: params.CaseSensitive,
		WholeWord: params.WholeWord,
	}
	cfg := search.Config{
		MaxMatches:      maxMatches,
		BatchLines:      s.cfg.Search.BatchLines,
		ProgressEveryMs: s.cfg.Search.ProgressEveryMs,
	}

	var restrict []uint64
	if h.HasFilter {
		restrict = h.Filter
	}

	result, err := search.Run(cfg, opts, h.View.Info().TotalLines, lineTextFunc(h), restrict, nil, nil)
	if err != nil {
		return errorResponse("search", err)
	}
	return jsonResponse(result)
}

func (s *Server) handleSetFilter(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path         string   `json:"path"`
		Levels       []string `json:"levels"`
		Include      []string `json:"include"`
		Exclude      []string `json:"exclude"`
		ContextLines int      `json:"context_lines"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("set_filter", engineerr.InvalidInput("mcpserver.set_filter", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("set_filter", err)
	}

	levels := make([]types.Level, 0, len(params.Levels))
	for _, l := range params.Levels {
		levels = append(levels, types.Level(l))
	}
	include := make([]filter.Pattern, 0, len(params.Include))
	for _, p := range params.Include {
		include = append(include, filter.Pattern{Pattern: p})
	}
	exclude := make([]filter.Pattern, 0, len(params.Exclude))
	for _, p := range params.Exclude {
		exclude = append(exclude, filter.Pattern{Pattern: p})
	}

	cfg := filter.Config{
		Levels:          levels,
		IncludePatterns: include,
		ExcludePatterns: exclude,
		ContextLines:    params.ContextLines,
	}
	rcfg := filter.RuntimeConfig{
		BatchLines:      s.cfg.Filter.BatchLines,
		ProgressEveryMs: s.cfg.Filter.ProgressEveryMs,
	}

	projection, err := filter.Run(rcfg, cfg, h.View.Info().TotalLines, lineInfoFunc(h), nil, nil)
	if err != nil {
		return errorResponse("set_filter", err)
	}
	if err := s.sess.SetFilter(params.Path, projection); err != nil {
		return errorResponse("set_filter", err)
	}
	return jsonResponse(map[string]interface{}{"visible_lines": len(projection)})
}

func (s *Server) handleClearFilter(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("clear_filter", engineerr.InvalidInput("mcpserver.clear_filter", err))
	}
	if err := s.sess.ClearFilter(params.Path); err != nil {
		return errorResponse("clear_filter", err)
	}
	return jsonResponse(map[string]interface{}{"success": true})
}

// sampleBytes reads up to n bytes from the head of path for column
// layout detection, independent of the file's line index.
func sampleBytes(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", engineerr.IOErr("mcpserver.sample", err).WithPath(path)
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return "", nil
	}
	return string(buf[:read]), nil
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("analyze", engineerr.InvalidInput("mcpserver.analyze", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("analyze", err)
	}

	sample, err := sampleBytes(params.Path, s.cfg.Analyzer.SampleBytes)
	if err != nil {
		return errorResponse("analyze", err)
	}
	layout := analyzer.DetectLayout(sample, s.cfg.Analyzer.HeaderDictionary)

	stats := analyzer.NewStats()
	total := h.View.Info().TotalLines
	const batch = 1000
	for start := uint64(0); start < total; start += batch {
		count := batch
		if remaining := total - start; remaining < uint64(batch) {
			count = int(remaining)
		}
		recs, err := h.View.GetLines(start, count, true, nil)
		if err != nil {
			return errorResponse("analyze", err)
		}
		for _, rec := range recs {
			stats.AddLine(rec.LineNumber, rec, layout, s.cfg.Analyzer.MaxPatterns)
		}
	}

	insights := analyzer.Synthesize(stats, s.cfg.Analyzer)
	return jsonResponse(map[string]interface{}{"layout": layout, "stats": stats, "insights": insights})
}

func (s *Server) handleCluster(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path string `json:"path"`
		Cap  int    `json:"cap"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("cluster", engineerr.InvalidInput("mcpserver.cluster", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("cluster", err)
	}

	tree := drain.New()
	total := h.View.Info().TotalLines
	const batch = 1000
	for start := uint64(0); start < total; start += batch {
		count := batch
		if remaining := total - start; remaining < uint64(batch) {
			count = int(remaining)
		}
		recs, err := h.View.GetLines(start, count, false, nil)
		if err != nil {
			return errorResponse("cluster", err)
		}
		for _, rec := range recs {
			tree.Add(rec.LineNumber, rec.Text, rec.Level, rec.HasLevel)
		}
	}

	capVal := params.Cap
	if capVal <= 0 {
		capVal = 500
	}
	return jsonResponse(map[string]interface{}{"clusters": tree.Clusters(capVal)})
}

func (s *Server) buildFingerprint(h *session.FileHandle, path string) (baseline.Fingerprint, error) {
	info := h.View.Info()
	b := baseline.NewBuilder(path, info.SizeBytes, "column-aware", baseline.BuilderConfig{
		MaxCrashes:            s.cfg.Baseline.MaxCrashes,
		MaxFailingComponents:  s.cfg.Baseline.MaxFailingComponents,
		MaxSampleLinesPerTier: s.cfg.Baseline.MaxSampleLinesPerTier,
		MaxComponentSamples:   s.cfg.Baseline.MaxComponentSamples,
		MaxStringBytes:        s.cfg.Baseline.MaxStringBytes,
		MaxDensityBuckets:     s.cfg.Baseline.MaxDensityBuckets,
		TotalLines:            info.TotalLines,
	})

	const batch = 1000
	for start := uint64(0); start < info.TotalLines; start += batch {
		count := batch
		if remaining := info.TotalLines - start; remaining < uint64(batch) {
			count = int(remaining)
		}
		recs, err := h.View.GetLines(start, count, true, func(text string) (int64, bool) {
			r, ok := timestamp.Parse(text)
			return r.EpochMs, ok
		})
		if err != nil {
			return baseline.Fingerprint{}, err
		}
		for _, rec := range recs {
			b.AddLine(baseline.BuildLine{
				LineNumber:   rec.LineNumber,
				Text:         rec.Text,
				Level:        rec.Level,
				HasLevel:     rec.HasLevel,
				TimestampMs:  rec.TimestampMs,
				HasTimestamp: rec.HasTimestamp,
			})
		}
	}
	return b.Build(), nil
}

func (s *Server) handleBaselineSave(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path        string   `json:"path"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("baseline_save", engineerr.InvalidInput("mcpserver.baseline_save", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("baseline_save", err)
	}

	fp, err := s.buildFingerprint(h, params.Path)
	if err != nil {
		return errorResponse("baseline_save", err)
	}
	rec, err := s.baselines.Save(params.Name, params.Description, params.Tags, params.Path, h.View.Info().TotalLines, fp)
	if err != nil {
		return errorResponse("baseline_save", err)
	}
	return jsonResponse(map[string]interface{}{"id": rec.ID, "name": rec.Name})
}

func (s *Server) handleBaselineCompare(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path       string `json:"path"`
		BaselineID string `json:"baseline_id"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("baseline_compare", engineerr.InvalidInput("mcpserver.baseline_compare", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("baseline_compare", err)
	}
	baselineRec, err := s.baselines.Get(params.BaselineID)
	if err != nil {
		return errorResponse("baseline_compare", err)
	}

	curFp, err := s.buildFingerprint(h, params.Path)
	if err != nil {
		return errorResponse("baseline_compare", err)
	}
	report := baseline.Compare(baselineRec.Fingerprint, curFp)
	return jsonResponse(report)
}

func (s *Server) handleBaselineList(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResponse(map[string]interface{}{"baselines": s.baselines.List()})
}

func (s *Server) handleBaselineDelete(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		BaselineID string `json:"baseline_id"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("baseline_delete", engineerr.InvalidInput("mcpserver.baseline_delete", err))
	}
	if err := s.baselines.Delete(params.BaselineID); err != nil {
		return errorResponse("baseline_delete", err)
	}
	return jsonResponse(map[string]interface{}{"success": true})
}

func (s *Server) handleBookmarkAdd(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path string `json:"path"`
		Line uint64 `json:"line"`
		Note string `json:"note"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("bookmark_add", engineerr.InvalidInput("mcpserver.bookmark_add", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("bookmark_add", err)
	}
	b, err := h.Sidecar.AddBookmark(params.Line, params.Note)
	if err != nil {
		return errorResponse("bookmark_add", err)
	}
	return jsonResponse(b)
}

func (s *Server) handleBookmarkList(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("bookmark_list", engineerr.InvalidInput("mcpserver.bookmark_list", err))
	}
	h, err := s.sess.Get(params.Path)
	if err != nil {
		return errorResponse("bookmark_list", err)
	}
	return jsonResponse(map[string]interface{}{"bookmarks": h.Sidecar.Bookmarks()})
}

func (s *Server) handleConnectLive(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		SourceKind  string `json:"source_kind"`
		DisplayName string `json:"display_name"`
		Detail      string `json:"detail"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("connect_live", engineerr.InvalidInput("mcpserver.connect_live", err))
	}

	backingPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s-%d.log",
		s.cfg.Live.TempDirPrefix, params.SourceKind, time.Now().UnixNano()))

	conn, err := s.conns.Connect(ctx, registry.SourceKind(params.SourceKind), params.DisplayName, params.Detail, backingPath)
	if err != nil {
		return errorResponse("connect_live", err)
	}
	if _, err := s.sess.OpenFile(backingPath, nil, nil); err != nil {
		_ = s.conns.Disconnect(conn.ID)
		return errorResponse("connect_live", err)
	}
	go s.growOnLinesAdded(conn)
	return jsonResponse(conn)
}

// growOnLinesAdded drains a connection's ingest events until disconnect,
// re-growing the session's line index on every lines-added signal.
// write_live already grows synchronously after its own write, so most of
// these are redundant with that call; this loop's job is the
// fsnotify-originated events for growth write_live didn't cause
// (spec.md §4.5's "even if a notification is dropped" case). It exits on
// the first disconnected event rather than waiting for the channel to
// close, since the stream's event channel is never closed.
func (s *Server) growOnLinesAdded(conn *registry.Connection) {
	for ev := range conn.Stream().Events() {
		switch ev.Kind {
		case ingest.EventLinesAdded:
			_ = s.sess.GrowFile(conn.BackingFilePath)
		case ingest.EventDisconnected:
			return
		}
	}
}

func (s *Server) handleWriteLive(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		ConnectionID string `json:"connection_id"`
		Chunk        string `json:"chunk"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("write_live", engineerr.InvalidInput("mcpserver.write_live", err))
	}
	conn, ok := s.conns.Get(params.ConnectionID)
	if !ok {
		return errorResponse("write_live", engineerr.NotFound("mcpserver.write_live", nil))
	}
	if err := conn.Stream().Write([]byte(params.Chunk)); err != nil {
		return errorResponse("write_live", err)
	}
	if err := s.sess.GrowFile(conn.BackingFilePath); err != nil {
		return errorResponse("write_live", err)
	}
	return jsonResponse(map[string]interface{}{"success": true})
}

func (s *Server) handleDisconnectLive(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		ConnectionID string `json:"connection_id"`
	}
	if err := unmarshalParams(req, &params); err != nil {
		return errorResponse("disconnect_live", engineerr.InvalidInput("mcpserver.disconnect_live", err))
	}
	if err := s.conns.Disconnect(params.ConnectionID); err != nil {
		return errorResponse("disconnect_live", err)
	}
	return jsonResponse(map[string]interface{}{"success": true})
}

func (s *Server) handleListConnections(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResponse(map[string]interface{}{"connections": s.conns.List()})
}
