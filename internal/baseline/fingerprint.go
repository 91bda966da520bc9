// Package baseline implements spec.md §4.9: a persisted set of named
// log fingerprints and a deterministic comparator that classifies
// drift between a baseline and the current analysis as critical,
// warning, or info findings. Atomic persistence follows the same
// write-temp-then-rename idiom the teacher uses for its index
// snapshots; fuzzy component/channel matching uses
// github.com/hbollon/go-edlib, and github.com/cespare/xxhash/v2 hashes
// each candidate sample line so a level or component's sample set never
// collects the same line text twice.
package baseline

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/logscope/internal/analyzer"
	"github.com/standardbeagle/logscope/internal/types"
)

const (
	maxCrashesDefault           = 50
	maxFailingComponentsDefault = 20
	maxSamplesPerTierDefault    = 10
	maxComponentSamplesDefault  = 5
	maxStringBytesDefault       = 200
	maxDensityBucketsDefault    = 1440
)

// Crash is a recognized crash keyword occurrence.
type Crash struct {
	Keyword   string
	LineNumber uint64
}

// FailingComponent tracks error volume attributed to one component.
type FailingComponent struct {
	Name       string
	ErrorCount int
}

// Sample is one representative line kept for a level or component.
type Sample struct {
	LineNumber uint64
	Text       string
}

// Fingerprint is the structured summary persisted per spec.md §3
// "Baseline fingerprint".
type Fingerprint struct {
	SourceFile         string
	FileSize           int64
	TotalLines         uint64
	AnalyzerName       string
	TimeRange          *types.TimeRange
	TimestampDensity   []uint32
	LevelCounts        map[types.Level]int
	LevelPercentages   map[types.Level]float64
	Crashes            []Crash
	FailingComponents  []FailingComponent
	ChannelCounts      map[string]int
	SampleLines        map[types.Level][]Sample
	ComponentSamples   map[string][]Sample
}

var channelMentionPattern = regexp.MustCompile(`\[[A-Za-z][A-Za-z0-9._\-]{1,30}\]`)

var crashKeywords = []string{"fatal", "crash", "panic", "segfault", "abort", "corrupt"}

// BuildLine is one line fed into fingerprint construction; callers
// stream these from a File View in 1000-line batches, per spec.md §4.9
// step 3.
type BuildLine struct {
	LineNumber   uint64
	Text         string
	Level        types.Level
	HasLevel     bool
	TimestampMs  int64
	HasTimestamp bool
}

// Builder accumulates a Fingerprint across streamed batches.
type Builder struct {
	sourceFile   string
	fileSize     int64
	analyzerName string

	totalLines    uint64
	levelCounts   map[types.Level]int
	channelCounts map[string]int
	crashes       []Crash
	components    map[string]int

	firstMs   int64
	hasFirst  bool
	lastMs    int64
	density   map[int]uint32

	sampleLines       map[types.Level][]Sample
	sampleInterval    uint64
	componentSamples  map[string][]Sample
	seenLevelHash     map[types.Level]map[uint64]bool
	seenComponentHash map[string]map[uint64]bool

	maxCrashes           int
	maxFailingComponents int
	maxSamplesPerTier    int
	maxComponentSamples  int
	maxStringBytes       int
	maxDensityBuckets    int
}

// BuilderConfig bounds the caps named in spec.md §4.9.
type BuilderConfig struct {
	MaxCrashes           int
	MaxFailingComponents int
	MaxSampleLinesPerTier int
	MaxComponentSamples  int
	MaxStringBytes       int
	MaxDensityBuckets    int
	TotalLines           uint64
}

// NewBuilder creates a fingerprint Builder for sourceFile.
func NewBuilder(sourceFile string, fileSize int64, analyzerName string, cfg BuilderConfig) *Builder {
	b := &Builder{
		sourceFile:           sourceFile,
		fileSize:             fileSize,
		analyzerName:         analyzerName,
		levelCounts:          make(map[types.Level]int),
		channelCounts:        make(map[string]int),
		components:           make(map[string]int),
		density:              make(map[int]uint32),
		sampleLines:          make(map[types.Level][]Sample),
		componentSamples:     make(map[string][]Sample),
		seenLevelHash:        make(map[types.Level]map[uint64]bool),
		seenComponentHash:    make(map[string]map[uint64]bool),
		maxCrashes:           orDefault(cfg.MaxCrashes, maxCrashesDefault),
		maxFailingComponents: orDefault(cfg.MaxFailingComponents, maxFailingComponentsDefault),
		maxSamplesPerTier:    orDefault(cfg.MaxSampleLinesPerTier, maxSamplesPerTierDefault),
		maxComponentSamples:  orDefault(cfg.MaxComponentSamples, maxComponentSamplesDefault),
		maxStringBytes:       orDefault(cfg.MaxStringBytes, maxStringBytesDefault),
		maxDensityBuckets:    orDefault(cfg.MaxDensityBuckets, maxDensityBucketsDefault),
	}
	if cfg.TotalLines > 0 {
		b.sampleInterval = cfg.TotalLines / 10
	}
	if b.sampleInterval == 0 {
		b.sampleInterval = 1
	}
	return b
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

// AddLine folds one line into the running fingerprint.
func (b *Builder) AddLine(l BuildLine) {
	b.totalLines++

	if l.HasLevel {
		b.levelCounts[l.Level]++
		if len(b.sampleLines[l.Level]) < b.maxSamplesPerTier && l.LineNumber%b.sampleInterval == 0 {
			text := truncate(l.Text, b.maxStringBytes)
			if b.markLevelSeen(l.Level, text) {
				b.sampleLines[l.Level] = append(b.sampleLines[l.Level], Sample{LineNumber: l.LineNumber, Text: text})
			}
		}
	}

	for _, m := range channelMentionPattern.FindAllString(l.Text, -1) {
		name := m[1 : len(m)-1]
		b.channelCounts[name]++
	}

	lowerText := strings.ToLower(l.Text)
	for _, kw := range crashKeywords {
		if strings.Contains(lowerText, kw) {
			if len(b.crashes) < b.maxCrashes {
				b.crashes = append(b.crashes, Crash{Keyword: kw, LineNumber: l.LineNumber})
			}
		}
	}

	if l.HasLevel && (l.Level == types.LevelError || l.Level == types.LevelWarn) {
		if comp, ok := extractComponent(l.Text); ok {
			b.components[comp]++
			if len(b.componentSamples[comp]) < b.maxComponentSamples {
				text := truncate(l.Text, b.maxStringBytes)
				if b.markComponentSeen(comp, text) {
					b.componentSamples[comp] = append(b.componentSamples[comp], Sample{LineNumber: l.LineNumber, Text: text})
				}
			}
		}
	}

	if l.HasTimestamp {
		if !b.hasFirst {
			b.firstMs = l.TimestampMs
			b.hasFirst = true
		}
		b.lastMs = l.TimestampMs
		bucket := int((l.TimestampMs - b.firstMs) / 60000)
		if bucket >= 0 && bucket < b.maxDensityBuckets {
			b.density[bucket]++
		}
	}
}

// markLevelSeen reports whether text is new for level, recording its
// hash so a later identical line at the same level is skipped instead
// of padding the sample set with duplicates.
func (b *Builder) markLevelSeen(level types.Level, text string) bool {
	h := xxhash.Sum64String(text)
	seen, ok := b.seenLevelHash[level]
	if !ok {
		seen = make(map[uint64]bool)
		b.seenLevelHash[level] = seen
	}
	if seen[h] {
		return false
	}
	seen[h] = true
	return true
}

// markComponentSeen is markLevelSeen's analogue for component samples.
func (b *Builder) markComponentSeen(component, text string) bool {
	h := xxhash.Sum64String(text)
	seen, ok := b.seenComponentHash[component]
	if !ok {
		seen = make(map[uint64]bool)
		b.seenComponentHash[component] = seen
	}
	if seen[h] {
		return false
	}
	seen[h] = true
	return true
}

// extractComponent pulls a bracketed channel-like token to treat as the
// failing component name, reusing the channel mention shape.
func extractComponent(text string) (string, bool) {
	loc := channelMentionPattern.FindString(text)
	if loc == "" {
		return "", false
	}
	return loc[1 : len(loc)-1], true
}

// Build finalizes the Fingerprint.
func (b *Builder) Build() Fingerprint {
	percentages := make(map[types.Level]float64, len(b.levelCounts))
	if b.totalLines > 0 {
		for lvl, c := range b.levelCounts {
			percentages[lvl] = float64(c) / float64(b.totalLines) * 100
		}
	}

	var components []FailingComponent
	for name, count := range b.components {
		components = append(components, FailingComponent{Name: name, ErrorCount: count})
	}
	sortComponentsDesc(components)
	if len(components) > b.maxFailingComponents {
		components = components[:b.maxFailingComponents]
	}

	density := make([]uint32, b.maxDensityBuckets)
	maxBucket := 0
	for idx, v := range b.density {
		if idx < len(density) {
			density[idx] = v
		}
		if idx > maxBucket {
			maxBucket = idx
		}
	}
	density = density[:min(len(density), maxBucket+1)]

	var tr *types.TimeRange
	if b.hasFirst {
		tr = &types.TimeRange{StartMs: b.firstMs, EndMs: b.lastMs}
	}

	return Fingerprint{
		SourceFile:        b.sourceFile,
		FileSize:          b.fileSize,
		TotalLines:        b.totalLines,
		AnalyzerName:      b.analyzerName,
		TimeRange:         tr,
		TimestampDensity:  density,
		LevelCounts:       b.levelCounts,
		LevelPercentages:  percentages,
		Crashes:           b.crashes,
		FailingComponents: components,
		ChannelCounts:     b.channelCounts,
		SampleLines:       b.sampleLines,
		ComponentSamples:  b.componentSamples,
	}
}

func sortComponentsDesc(c []FailingComponent) {
	for i := 1; i < len(c); i++ {
		j := i
		for j > 0 && c[j].ErrorCount > c[j-1].ErrorCount {
			c[j], c[j-1] = c[j-1], c[j]
			j--
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// FromAnalysis builds a Fingerprint directly from analyzer Stats and
// Insights, for callers that already ran the Column-Aware Analyzer
// over the file and don't want a second streaming pass.
func FromAnalysis(sourceFile string, fileSize int64, stats *analyzer.Stats, cfg BuilderConfig) Fingerprint {
	b := NewBuilder(sourceFile, fileSize, "column-aware", cfg)
	b.totalLines = stats.TotalLines
	for lvl, c := range stats.LevelCounts {
		b.levelCounts[lvl] = c
	}
	for ch, c := range stats.ChannelCounts {
		b.channelCounts[ch] = c
	}
	if stats.HasTime {
		b.hasFirst = true
		b.firstMs = stats.FirstMs
		b.lastMs = stats.LastMs
	}
	return b.Build()
}
