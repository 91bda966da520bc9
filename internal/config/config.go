// Package config loads and validates the project-level logscope engine
// configuration (.logscope.kdl), providing the bounds — line cap, chunk
// sizes, column dictionaries, noise thresholds — that the rest of the
// engine treats as ambient, not hard-coded.
package config

// Config is the root configuration document.
type Config struct {
	Version     int
	Project     Project
	Index       Index
	Search      Search
	Filter      Filter
	Analyzer    Analyzer
	Baseline    Baseline
	Live        Live
	Include     []string
	Exclude     []string
}

// Project carries project identity, mirroring the teacher's shape.
type Project struct {
	Root string
	Name string
}

// Index bounds the Line Index (spec.md §4.1).
type Index struct {
	ChunkBytes       int // recommended 1 MiB scan chunk
	LineCapBytes     int // recommended 5000, truncation cap
	ProgressEveryMs  int // rate-limit for progress notifications
}

// Search bounds the Search Engine (spec.md §4.3).
type Search struct {
	MaxMatches       int // hard cap, recommended 10000
	BatchLines       int // yield granularity, recommended 1000
	ProgressEveryMs  int
	ExternalScanner  string // executable name, empty disables folder search
}

// Filter bounds the Filter Engine (spec.md §4.4).
type Filter struct {
	BatchLines      int // recommended 10000
	ProgressEveryMs int
}

// Analyzer bounds the Column-Aware Analyzer (spec.md §4.8).
type Analyzer struct {
	SampleBytes      int // bytes examined for column detection, recommended 8 KiB
	MaxPatterns      int // recommended 50000
	PatternMaxChars  int // recommended 100
	NoiseMinCount    int // recommended 100
	NoisePercent     float64 // recommended 0.01 (1%)
	ErrorGroupTop    int // recommended 15
	AnomalyMaxCount  int // recommended 2
	HeaderDictionary map[string][]string
}

// Baseline bounds the Baseline Store & Comparator (spec.md §4.9).
type Baseline struct {
	MaxCrashes            int // recommended 50
	MaxFailingComponents  int // recommended 20
	MaxSampleLinesPerTier int // recommended 10
	MaxComponentSamples   int // recommended 5
	MaxStringBytes        int // recommended 200
	MaxDensityBuckets     int // recommended 1440
	DiffLineCap           int // recommended 100000, too-large cutoff
}

// Live bounds Live Ingest / Connection Registry (spec.md §4.5, §3).
type Live struct {
	MaxConnections int // hard cap, recommended 4
	TempDirPrefix  string
}

// Default returns the engine defaults, matching the recommended values
// called out throughout spec.md.
func Default() *Config {
	return &Config{
		Version: 1,
		Index: Index{
			ChunkBytes:      1 << 20,
			LineCapBytes:    5000,
			ProgressEveryMs: 200,
		},
		Search: Search{
			MaxMatches:      10000,
			BatchLines:      1000,
			ProgressEveryMs: 50,
			ExternalScanner: "rg",
		},
		Filter: Filter{
			BatchLines:      10000,
			ProgressEveryMs: 50,
		},
		Analyzer: Analyzer{
			SampleBytes:     8 << 10,
			MaxPatterns:     50000,
			PatternMaxChars: 100,
			NoiseMinCount:   100,
			NoisePercent:    0.01,
			ErrorGroupTop:   15,
			AnomalyMaxCount: 2,
			HeaderDictionary: map[string][]string{
				"channel":   {"channel", "chan", "ch"},
				"source":    {"source", "src", "component", "module"},
				"level":     {"level", "severity", "lvl"},
				"message":   {"message", "msg", "text"},
				"timestamp": {"timestamp", "time", "ts", "date"},
			},
		},
		Baseline: Baseline{
			MaxCrashes:            50,
			MaxFailingComponents:  20,
			MaxSampleLinesPerTier: 10,
			MaxComponentSamples:   5,
			MaxStringBytes:        200,
			MaxDensityBuckets:     1440,
			DiffLineCap:           100000,
		},
		Live: Live{
			MaxConnections: 4,
			TempDirPrefix:  "logscope",
		},
	}
}
