// Package analyzer implements spec.md §4.8: delimiter/column detection
// over a file's first bytes, a streaming counting pass, and insight
// synthesis (noise, error groups, anomalies, filter suggestions).
// Pattern extraction is grounded on other_examples' cidrx parser.go and
// quellog analysis-summary.go for placeholder-substitution style
// canonicalization; suggested-filter word stemming uses
// github.com/surgebase/porter2, the same stemmer family the teacher's
// symbol-search ranking pulls from.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/standardbeagle/logscope/internal/config"
	"github.com/standardbeagle/logscope/internal/types"
	"github.com/surgebase/porter2"
)

// ColumnRole classifies a detected column.
type ColumnRole string

const (
	RoleChannel   ColumnRole = "channel"
	RoleSource    ColumnRole = "source"
	RoleLevel     ColumnRole = "level"
	RoleMessage   ColumnRole = "message"
	RoleTimestamp ColumnRole = "timestamp"
	RoleOther     ColumnRole = "other"
)

// Column describes one detected column.
type Column struct {
	Index int
	Name  string
	Role  ColumnRole
}

// Layout is the result of Phase 1 column detection.
type Layout struct {
	Delimiter string
	HasHeader bool
	Columns   []Column
}

var delimiterCandidates = []string{"\t", ",", "|", ";", ":", "="}

var clockPattern = regexp.MustCompile(`\d{1,2}:\d{2}:\d{2}`)

// DetectLayout runs Phase 1 over sample (recommended: first 8KiB of the
// file), per spec.md §4.8.
func DetectLayout(sample string, dict map[string][]string) Layout {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return Layout{Delimiter: " "}
	}

	hasClock := hasClockTimestamps(lines)
	delim, score := bestDelimiter(lines, hasClock)
	if score <= 1 {
		delim = " "
	}

	hasHeader := looksLikeHeader(lines[0], delim)

	var headerFields []string
	if hasHeader {
		headerFields = splitColumns(lines[0], delim)
	} else if len(lines) > 0 {
		headerFields = make([]string, len(splitColumns(lines[0], delim)))
	}

	columns := make([]Column, len(headerFields))
	for i := range headerFields {
		name := ""
		if hasHeader {
			name = headerFields[i]
		}
		columns[i] = Column{Index: i, Name: name, Role: classifyColumn(name, dict)}
	}

	return Layout{Delimiter: delim, HasHeader: hasHeader, Columns: columns}
}

func sampleLines(sample string) []string {
	var out []string
	for _, line := range strings.Split(sample, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func hasClockTimestamps(lines []string) bool {
	checked := lines
	if len(checked) > 20 {
		checked = checked[:20]
	}
	count := 0
	for _, l := range checked {
		if clockPattern.MatchString(l) {
			count++
		}
	}
	return count > len(checked)/2
}

func bestDelimiter(lines []string, penalizeColon bool) (string, float64) {
	bestDelim := " "
	bestScore := 0.0
	for _, d := range delimiterCandidates {
		score := scoreDelimiter(lines, d)
		if d == ":" && penalizeColon {
			score *= 0.3
		}
		if score > bestScore {
			bestScore = score
			bestDelim = d
		}
	}
	return bestDelim, bestScore
}

func scoreDelimiter(lines []string, delim string) float64 {
	counts := make([]int, 0, len(lines))
	present := 0
	sum := 0
	for _, l := range lines {
		c := strings.Count(l, delim)
		counts = append(counts, c)
		sum += c
		if c > 0 {
			present++
		}
	}
	if len(lines) == 0 {
		return 0
	}
	avg := float64(sum) / float64(len(lines))
	if avg == 0 {
		return 0
	}
	consistent := 0
	for _, c := range counts {
		if diff := float64(c) - avg; diff >= -1 && diff <= 1 {
			consistent++
		}
	}
	consistency := float64(consistent) / float64(len(lines))
	presence := float64(present) / float64(len(lines))
	return avg * consistency * presence
}

func looksLikeHeader(line, delim string) bool {
	fields := splitColumns(line, delim)
	if len(fields) < 2 {
		return false
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return false
		}
		if isNumeric(f) {
			return false
		}
		if seen[f] {
			return false
		}
		seen[f] = true
	}
	return true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			if r != '.' && r != '-' {
				return false
			}
		}
	}
	return true
}

func splitColumns(line, delim string) []string {
	if delim == " " {
		return strings.Fields(line)
	}
	return strings.Split(line, delim)
}

func classifyColumn(name string, dict map[string][]string) ColumnRole {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return RoleOther
	}
	order := []ColumnRole{RoleTimestamp, RoleLevel, RoleChannel, RoleSource, RoleMessage}
	for _, role := range order {
		for _, kw := range dict[string(role)] {
			if strings.Contains(lower, kw) {
				return role
			}
		}
	}
	return RoleOther
}

// PatternEntry tracks one canonicalized message pattern.
type PatternEntry struct {
	Sample     string
	Count      int
	FirstLine  uint64
	LastLine   uint64
	Level      types.Level
	HasLevel   bool
	Channel    string
}

// Stats is the running Phase 2 tally.
type Stats struct {
	TotalLines    uint64
	AnalyzedLines uint64
	ChannelCounts map[string]int
	SourceCounts  map[string]int
	LevelCounts   map[types.Level]int
	Patterns      map[string]*PatternEntry
	FirstMs       int64
	LastMs        int64
	HasTime       bool
}

// NewStats creates an empty Stats accumulator.
func NewStats() *Stats {
	return &Stats{
		ChannelCounts: make(map[string]int),
		SourceCounts:  make(map[string]int),
		LevelCounts:   make(map[types.Level]int),
		Patterns:      make(map[string]*PatternEntry),
	}
}

var (
	timestampLike = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?Z?`)
	ipLike        = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	uuidLike      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexLike       = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	largeIntLike  = regexp.MustCompile(`\b\d{5,}\b`)
	bracketTriple = regexp.MustCompile(`\[[^\[\]]*\]\[[^\[\]]*\]\[[^\[\]]*\]`)

	patternMaxChars = 100
)

// CanonicalPattern replaces timestamps, IPs, UUIDs, hex, large
// integers, and bracket triples with placeholders, capped at
// patternMaxChars, per spec.md §4.8 Phase 2.
func CanonicalPattern(message string) string {
	p := message
	p = bracketTriple.ReplaceAllString(p, "[*][*][*]")
	p = timestampLike.ReplaceAllString(p, "<TS>")
	p = uuidLike.ReplaceAllString(p, "<UUID>")
	p = ipLike.ReplaceAllString(p, "<IP>")
	p = hexLike.ReplaceAllString(p, "<HEX>")
	p = largeIntLike.ReplaceAllString(p, "<N>")
	if len(p) > patternMaxChars {
		p = p[:patternMaxChars]
	}
	return p
}

// AddLine feeds one line into the running Stats, per spec.md §4.8
// Phase 2.
func (s *Stats) AddLine(lineNumber uint64, rec types.LineRecord, layout Layout, maxPatterns int) {
	s.AnalyzedLines++

	message := rec.Text
	if len(message) > 200 {
		message = message[:200]
	}

	channel, source := extractChannelSource(rec.Text, layout)
	if channel != "" {
		s.ChannelCounts[channel]++
	}
	if source != "" {
		s.SourceCounts[source]++
	}
	if rec.HasLevel {
		s.LevelCounts[rec.Level]++
	}

	if rec.HasTimestamp {
		if !s.HasTime {
			s.FirstMs = rec.TimestampMs
			s.HasTime = true
		}
		s.LastMs = rec.TimestampMs
	}

	pattern := CanonicalPattern(message)
	entry, ok := s.Patterns[pattern]
	if !ok {
		if maxPatterns > 0 && len(s.Patterns) >= maxPatterns {
			return
		}
		entry = &PatternEntry{Sample: message, FirstLine: lineNumber, Channel: channel}
		if rec.HasLevel {
			entry.Level = rec.Level
			entry.HasLevel = true
		}
		s.Patterns[pattern] = entry
	}
	entry.Count++
	entry.LastLine = lineNumber
}

func extractChannelSource(text string, layout Layout) (channel, source string) {
	for _, col := range layout.Columns {
		if col.Role != RoleChannel && col.Role != RoleSource {
			continue
		}
		fields := splitColumns(text, layout.Delimiter)
		if col.Index >= len(fields) {
			continue
		}
		val := strings.TrimSpace(fields[col.Index])
		if col.Role == RoleSource {
			if idx := strings.Index(val, "."); idx >= 0 {
				val = val[:idx]
			}
			source = val
		} else {
			channel = val
		}
	}
	return channel, source
}

// Insights is the Phase 3 synthesis output.
type Insights struct {
	NoiseCandidates   []NoiseCandidate
	ErrorGroups       []ErrorGroup
	Anomalies         []Anomaly
	FilterSuggestions []string
}

type NoiseCandidate struct {
	Pattern        string
	Count          int
	SuggestedFilter string
}

type ErrorGroup struct {
	Pattern string
	Count   int
	Level   types.Level
}

type Anomaly struct {
	Pattern string
	Count   int
	Sample  string
}

var criticalKeywords = []string{"fatal", "crash", "exception", "unauthorized", "timeout", "corrupt", "panic", "denied"}

// Synthesize builds Phase 3 insights from accumulated Stats.
func Synthesize(s *Stats, cfg config.Analyzer) Insights {
	var ins Insights

	noiseMin := cfg.NoiseMinCount
	if noiseMin <= 0 {
		noiseMin = 100
	}
	noisePct := cfg.NoisePercent
	if noisePct <= 0 {
		noisePct = 0.01
	}
	threshold := float64(noiseMin)
	if pctThreshold := noisePct * float64(s.AnalyzedLines); pctThreshold > threshold {
		threshold = pctThreshold
	}

	errorTop := cfg.ErrorGroupTop
	if errorTop <= 0 {
		errorTop = 15
	}
	anomalyMax := cfg.AnomalyMaxCount
	if anomalyMax <= 0 {
		anomalyMax = 2
	}

	var errorGroups []ErrorGroup
	errorCount := 0
	for pattern, entry := range s.Patterns {
		if float64(entry.Count) >= threshold {
			ins.NoiseCandidates = append(ins.NoiseCandidates, NoiseCandidate{
				Pattern:         pattern,
				Count:           entry.Count,
				SuggestedFilter: suggestedFilterWords(entry.Sample),
			})
		}
		if entry.HasLevel && (entry.Level == types.LevelError || entry.Level == types.LevelWarn) {
			errorGroups = append(errorGroups, ErrorGroup{Pattern: pattern, Count: entry.Count, Level: entry.Level})
			if entry.Level == types.LevelError {
				errorCount += entry.Count
			}
		}
		if entry.Count <= anomalyMax && containsCriticalKeyword(entry.Sample) {
			ins.Anomalies = append(ins.Anomalies, Anomaly{Pattern: pattern, Count: entry.Count, Sample: entry.Sample})
		}
	}

	sortGroupsByCountDesc(errorGroups)
	if len(errorGroups) > errorTop {
		errorGroups = errorGroups[:errorTop]
	}
	ins.ErrorGroups = errorGroups
	sortNoiseByCountDesc(ins.NoiseCandidates)

	ins.FilterSuggestions = buildFilterSuggestions(s, errorCount)
	return ins
}

func suggestedFilterWords(sample string) string {
	words := strings.Fields(sample)
	var chosen []string
	for _, w := range words {
		w = strings.Trim(w, ".,:;[](){}")
		if w == "" || isTrivialWord(w) {
			continue
		}
		chosen = append(chosen, porter2.Stem(strings.ToLower(w)))
		if len(chosen) == 3 {
			break
		}
	}
	return strings.Join(chosen, " ")
}

var trivialWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "was": true, "for": true, "to": true, "of": true, "in": true, "on": true, "at": true,
}

func isTrivialWord(w string) bool {
	return trivialWords[strings.ToLower(w)]
}

func containsCriticalKeyword(sample string) bool {
	lower := strings.ToLower(sample)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func buildFilterSuggestions(s *Stats, errorCount int) []string {
	var out []string
	if noisy := topNoisePatterns(s); len(noisy) > 0 {
		out = append(out, "hide: "+strings.Join(noisy, ", "))
	}
	if s.AnalyzedLines > 0 && float64(errorCount)/float64(s.AnalyzedLines) < 0.5 && errorCount > 0 {
		out = append(out, "show errors only")
	}
	if topChannel := topChannelByErrors(s); topChannel != "" {
		out = append(out, "focus on channel: "+topChannel)
	}
	if debugDominates(s) {
		out = append(out, "hide debug/trace")
	}
	return out
}

func topNoisePatterns(s *Stats) []string {
	var top []string
	type kv struct {
		pattern string
		count   int
	}
	var all []kv
	for p, e := range s.Patterns {
		if e.Count >= 100 {
			all = append(all, kv{p, e.Count})
		}
	}
	for i := 1; i < len(all); i++ {
		j := i
		for j > 0 && all[j].count > all[j-1].count {
			all[j], all[j-1] = all[j-1], all[j]
			j--
		}
	}
	for i, kv := range all {
		if i >= 3 {
			break
		}
		top = append(top, kv.pattern)
	}
	return top
}

func topChannelByErrors(s *Stats) string {
	errorsByChannel := make(map[string]int)
	for _, e := range s.Patterns {
		if e.Channel != "" && e.HasLevel && e.Level == types.LevelError {
			errorsByChannel[e.Channel] += e.Count
		}
	}
	best := ""
	bestCount := 0
	for ch, c := range errorsByChannel {
		if c > bestCount {
			best = ch
			bestCount = c
		}
	}
	return best
}

func debugDominates(s *Stats) bool {
	total := 0
	for _, c := range s.LevelCounts {
		total += c
	}
	if total == 0 {
		return false
	}
	debugCount := s.LevelCounts[types.LevelDebug] + s.LevelCounts[types.LevelTrace]
	return float64(debugCount)/float64(total) > 0.5
}

func sortGroupsByCountDesc(g []ErrorGroup) {
	for i := 1; i < len(g); i++ {
		j := i
		for j > 0 && g[j].Count > g[j-1].Count {
			g[j], g[j-1] = g[j-1], g[j]
			j--
		}
	}
}

func sortNoiseByCountDesc(n []NoiseCandidate) {
	for i := 1; i < len(n); i++ {
		j := i
		for j > 0 && n[j].Count > n[j-1].Count {
			n[j], n[j-1] = n[j-1], n[j]
			j--
		}
	}
}
