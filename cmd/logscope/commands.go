package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/logscope/internal/analyzer"
	"github.com/standardbeagle/logscope/internal/baseline"
	"github.com/standardbeagle/logscope/internal/drain"
	"github.com/standardbeagle/logscope/internal/filter"
	"github.com/standardbeagle/logscope/internal/search"
	"github.com/standardbeagle/logscope/internal/session"
	"github.com/standardbeagle/logscope/internal/timestamp"
	"github.com/standardbeagle/logscope/internal/types"

	"github.com/urfave/cli/v2"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requirePathArg(c *cli.Context) (string, error) {
	path := c.Args().First()
	if path == "" {
		return "", fmt.Errorf("missing required <path> argument")
	}
	return path, nil
}

var openCommand = &cli.Command{
	Name:      "open",
	Usage:     "Open a log file and build its line index",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		path, err := requirePathArg(c)
		if err != nil {
			return err
		}
		h, err := sess.OpenFile(path, nil, nil)
		if err != nil {
			return err
		}
		return printJSON(h.View.Info())
	},
}

var getLinesCommand = &cli.Command{
	Name:      "lines",
	Usage:     "Print a range of lines from an open file",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "start", Value: 0},
		&cli.IntFlag{Name: "count", Value: 100},
		&cli.BoolFlag{Name: "with-meta"},
	},
	Action: func(c *cli.Context) error {
		path, err := requirePathArg(c)
		if err != nil {
			return err
		}
		h, err := sess.Get(path)
		if err != nil {
			h, err = sess.OpenFile(path, nil, nil)
			if err != nil {
				return err
			}
		}

		var parseTs func(string) (int64, bool)
		if c.Bool("with-meta") {
			parseTs = func(text string) (int64, bool) {
				r, ok := timestamp.Parse(text)
				return r.EpochMs, ok
			}
		}
		lines, err := h.View.GetLines(c.Uint64("start"), c.Int("count"), c.Bool("with-meta"), parseTs)
		if err != nil {
			return err
		}
		return printJSON(lines)
	},
}

var searchCommand = &cli.Command{
	Name:      "search",
	Aliases:   []string{"s"},
	Usage:     "Search an open file for a pattern",
	ArgsUsage: "<path> <pattern>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "flavor", Value: "literal", Usage: "literal, wildcard, or regex"},
		&cli.BoolFlag{Name: "case-sensitive"},
		&cli.BoolFlag{Name: "whole-word"},
		&cli.IntFlag{Name: "max-matches"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return fmt.Errorf("usage: logscope search <path> <pattern>")
		}
		path, pattern := c.Args().Get(0), c.Args().Get(1)
		h, err := sess.Get(path)
		if err != nil {
			h, err = sess.OpenFile(path, nil, nil)
			if err != nil {
				return err
			}
		}

		flavor := search.FlavorLiteral
		switch c.String("flavor") {
		case string(search.FlavorRegex):
			flavor = search.FlavorRegex
		case string(search.FlavorWildcard):
			flavor = search.FlavorWildcard
		}
		maxMatches := c.Int("max-matches")
		if maxMatches <= 0 {
			maxMatches = sess.Config().Search.MaxMatches
		}

		cfg := search.Config{
			MaxMatches:      maxMatches,
			BatchLines:      sess.Config().Search.BatchLines,
			ProgressEveryMs: sess.Config().Search.ProgressEveryMs,
		}
		opts := search.Options{
			Pattern:   pattern,
			Flavor:    flavor,
			MatchCase: c.Bool("case-sensitive"),
			WholeWord: c.Bool("whole-word"),
		}
		var restrict []uint64
		if h.HasFilter {
			restrict = h.Filter
		}
		result, err := search.Run(cfg, opts, h.View.Info().TotalLines, lineTextFunc(h), restrict, nil, nil)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
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

var filterCommand = &cli.Command{
	Name:      "filter",
	Aliases:   []string{"f"},
	Usage:     "Apply a level/include/exclude filter to an open file",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "level"},
		&cli.StringSliceFlag{Name: "include"},
		&cli.StringSliceFlag{Name: "exclude"},
		&cli.IntFlag{Name: "context-lines"},
	},
	Action: func(c *cli.Context) error {
		path, err := requirePathArg(c)
		if err != nil {
			return err
		}
		h, err := sess.Get(path)
		if err != nil {
			h, err = sess.OpenFile(path, nil, nil)
			if err != nil {
				return err
			}
		}

		levels := make([]types.Level, 0)
		for _, l := range c.StringSlice("level") {
			levels = append(levels, types.Level(l))
		}
		include := make([]filter.Pattern, 0)
		for _, p := range c.StringSlice("include") {
			include = append(include, filter.Pattern{Pattern: p})
		}
		exclude := make([]filter.Pattern, 0)
		for _, p := range c.StringSlice("exclude") {
			exclude = append(exclude, filter.Pattern{Pattern: p})
		}

		fcfg := filter.Config{
			Levels:          levels,
			IncludePatterns: include,
			ExcludePatterns: exclude,
			ContextLines:    c.Int("context-lines"),
		}
		rcfg := filter.RuntimeConfig{
			BatchLines:      sess.Config().Filter.BatchLines,
			ProgressEveryMs: sess.Config().Filter.ProgressEveryMs,
		}
		projection, err := filter.Run(rcfg, fcfg, h.View.Info().TotalLines, lineInfoFunc(h), nil, nil)
		if err != nil {
			return err
		}
		if err := sess.SetFilter(path, projection); err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"visible_lines": len(projection)})
	},
}

var analyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "Detect column layout and synthesize insights for a file",
	ArgsUsage: "<path>",
	Action: func(c *cli.Context) error {
		path, err := requirePathArg(c)
		if err != nil {
			return err
		}
		h, err := sess.Get(path)
		if err != nil {
			h, err = sess.OpenFile(path, nil, nil)
			if err != nil {
				return err
			}
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		buf := make([]byte, sess.Config().Analyzer.SampleBytes)
		n, _ := f.Read(buf)
		f.Close()
		layout := analyzer.DetectLayout(string(buf[:n]), sess.Config().Analyzer.HeaderDictionary)

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
				return err
			}
			for _, rec := range recs {
				stats.AddLine(rec.LineNumber, rec, layout, sess.Config().Analyzer.MaxPatterns)
			}
		}
		insights := analyzer.Synthesize(stats, sess.Config().Analyzer)
		return printJSON(map[string]interface{}{"layout": layout, "stats": stats, "insights": insights})
	},
}

var clusterCommand = &cli.Command{
	Name:      "cluster",
	Usage:     "Group a file's lines into Drain templates",
	ArgsUsage: "<path>",
	Flags:     []cli.Flag{&cli.IntFlag{Name: "cap", Value: 500}},
	Action: func(c *cli.Context) error {
		path, err := requirePathArg(c)
		if err != nil {
			return err
		}
		h, err := sess.Get(path)
		if err != nil {
			h, err = sess.OpenFile(path, nil, nil)
			if err != nil {
				return err
			}
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
				return err
			}
			for _, rec := range recs {
				tree.Add(rec.LineNumber, rec.Text, rec.Level, rec.HasLevel)
			}
		}
		return printJSON(tree.Clusters(c.Int("cap")))
	},
}

func buildFingerprint(h *session.FileHandle, path string) (baseline.Fingerprint, error) {
	info := h.View.Info()
	bcfg := sess.Config().Baseline
	b := baseline.NewBuilder(path, info.SizeBytes, "column-aware", baseline.BuilderConfig{
		MaxCrashes:            bcfg.MaxCrashes,
		MaxFailingComponents:  bcfg.MaxFailingComponents,
		MaxSampleLinesPerTier: bcfg.MaxSampleLinesPerTier,
		MaxComponentSamples:   bcfg.MaxComponentSamples,
		MaxStringBytes:        bcfg.MaxStringBytes,
		MaxDensityBuckets:     bcfg.MaxDensityBuckets,
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

var baselineCommand = &cli.Command{
	Name:  "baseline",
	Usage: "Save, compare, list, or delete log baselines",
	Subcommands: []*cli.Command{
		{
			Name:      "save",
			ArgsUsage: "<path> <name>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "description"},
				&cli.StringSliceFlag{Name: "tag"},
			},
			Action: func(c *cli.Context) error {
				if c.Args().Len() < 2 {
					return fmt.Errorf("usage: logscope baseline save <path> <name>")
				}
				path, name := c.Args().Get(0), c.Args().Get(1)
				h, err := sess.Get(path)
				if err != nil {
					h, err = sess.OpenFile(path, nil, nil)
					if err != nil {
						return err
					}
				}
				fp, err := buildFingerprint(h, path)
				if err != nil {
					return err
				}
				store, err := baseline.Open(baselineStorePath())
				if err != nil {
					return err
				}
				rec, err := store.Save(name, c.String("description"), c.StringSlice("tag"), path, h.View.Info().TotalLines, fp)
				if err != nil {
					return err
				}
				return printJSON(rec)
			},
		},
		{
			Name:      "compare",
			ArgsUsage: "<path> <baseline-id>",
			Action: func(c *cli.Context) error {
				if c.Args().Len() < 2 {
					return fmt.Errorf("usage: logscope baseline compare <path> <baseline-id>")
				}
				path, id := c.Args().Get(0), c.Args().Get(1)
				h, err := sess.Get(path)
				if err != nil {
					h, err = sess.OpenFile(path, nil, nil)
					if err != nil {
						return err
					}
				}
				store, err := baseline.Open(baselineStorePath())
				if err != nil {
					return err
				}
				baselineRec, err := store.Get(id)
				if err != nil {
					return err
				}
				curFp, err := buildFingerprint(h, path)
				if err != nil {
					return err
				}
				return printJSON(baseline.Compare(baselineRec.Fingerprint, curFp))
			},
		},
		{
			Name: "list",
			Action: func(c *cli.Context) error {
				store, err := baseline.Open(baselineStorePath())
				if err != nil {
					return err
				}
				return printJSON(store.List())
			},
		},
		{
			Name:      "delete",
			ArgsUsage: "<baseline-id>",
			Action: func(c *cli.Context) error {
				id := c.Args().First()
				if id == "" {
					return fmt.Errorf("usage: logscope baseline delete <baseline-id>")
				}
				store, err := baseline.Open(baselineStorePath())
				if err != nil {
					return err
				}
				return store.Delete(id)
			},
		},
	},
}

func baselineStorePath() string {
	return filepath.Join(sess.Config().Project.Root, ".logscope", "baselines.json")
}
