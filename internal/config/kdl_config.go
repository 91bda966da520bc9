package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from a .logscope.kdl file in
// projectRoot. A missing file is not an error — callers fall back to
// Default().
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".logscope.kdl")

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .logscope.kdl: %w", err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Project.Root == "" {
		absRoot, err := filepath.Abs(projectRoot)
		if err == nil {
			cfg.Project.Root = absRoot
		} else {
			cfg.Project.Root = projectRoot
		}
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(projectRoot, cfg.Project.Root))
	}

	return cfg, nil
}

// parseKDL parses config text against Default(), overriding only the
// fields present in content.
func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "chunk_bytes":
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Index.ChunkBytes = int(sz)
						}
					} else if v, ok := firstIntArg(cn); ok {
						cfg.Index.ChunkBytes = v
					}
				case "line_cap_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.LineCapBytes = v
					}
				case "progress_every_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.ProgressEveryMs = v
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_matches":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxMatches = v
					}
				case "batch_lines":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.BatchLines = v
					}
				case "progress_every_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.ProgressEveryMs = v
					}
				case "external_scanner":
					if s, ok := firstStringArg(cn); ok {
						cfg.Search.ExternalScanner = s
					}
				}
			}
		case "filter":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "batch_lines":
					if v, ok := firstIntArg(cn); ok {
						cfg.Filter.BatchLines = v
					}
				case "progress_every_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Filter.ProgressEveryMs = v
					}
				}
			}
		case "analyzer":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "sample_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Analyzer.SampleBytes = v
					}
				case "max_patterns":
					if v, ok := firstIntArg(cn); ok {
						cfg.Analyzer.MaxPatterns = v
					}
				case "noise_min_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Analyzer.NoiseMinCount = v
					}
				case "noise_percent":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Analyzer.NoisePercent = v
					}
				}
			}
		case "baseline":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_crashes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Baseline.MaxCrashes = v
					}
				case "max_failing_components":
					if v, ok := firstIntArg(cn); ok {
						cfg.Baseline.MaxFailingComponents = v
					}
				case "diff_line_cap":
					if v, ok := firstIntArg(cn); ok {
						cfg.Baseline.DiffLineCap = v
					}
				}
			}
		case "live":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_connections":
					if v, ok := firstIntArg(cn); ok {
						cfg.Live.MaxConnections = v
					}
				}
			}
		case "include":
			cfg.Include = collectStringArgs(n)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}
