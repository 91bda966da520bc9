// Package search implements spec.md §4.3: full-file pattern search
// (literal, regex, wildcard, whole-word, case-sensitive, column-scoped)
// with cancellation and rate-limited progress, batching lines the same
// way the teacher's search engine batches candidate files
// (standardbeagle-lci/internal/search/engine.go, search_coordinator.go).
package search

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/standardbeagle/logscope/internal/debug"
	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/types"
)

// Flavor selects the pattern matching engine.
type Flavor string

const (
	FlavorLiteral  Flavor = "literal"
	FlavorRegex    Flavor = "regex"
	FlavorWildcard Flavor = "wildcard"
)

// ColumnScope restricts matching to a subset of delimiter-separated
// columns, per spec.md §4.3 "Column scope".
type ColumnScope struct {
	Delimiter      string
	VisibleColumns []int
}

// Options configures one search invocation.
type Options struct {
	Pattern     string
	Flavor      Flavor
	MatchCase   bool
	WholeWord   bool
	ColumnScope *ColumnScope

	// DisableLiteralFallback turns a regex/wildcard compile failure into
	// an invalid-input error instead of silently falling back to literal
	// matching, per spec.md §8 "Regex compile failure with literal-
	// fallback disabled."
	DisableLiteralFallback bool
}

// Config bounds batching/limits (spec.md §4.3 "Limits").
type Config struct {
	MaxMatches      int
	BatchLines      int
	ProgressEveryMs int
}

// Result is the outcome of a Search call.
type Result struct {
	Matches        []types.Match
	CountExceeded  bool
}

// LineTextFunc returns the text of lineNumber, and whether it exists.
type LineTextFunc func(lineNumber uint64) (string, bool)

// compiled holds the matcher built from Options.
type compiled struct {
	re        *regexp.Regexp
	literal   string
	useRE     bool
	matchCase bool
}

// compile builds a matcher for opts, falling back to literal matching
// when a regex/wildcard pattern fails to compile, with a warning
// signal returned via fellBack.
func compile(opts Options) (*compiled, bool, error) {
	if opts.Pattern == "" {
		return &compiled{literal: "", matchCase: opts.MatchCase}, false, nil
	}

	switch opts.Flavor {
	case FlavorRegex, FlavorWildcard:
		pattern := opts.Pattern
		if opts.Flavor == FlavorWildcard {
			pattern = wildcardToRegex(pattern)
		}
		flags := ""
		if !opts.MatchCase {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + pattern)
		if err != nil {
			if opts.DisableLiteralFallback {
				debug.LogSearch("ERROR: compile %q: %v\n", opts.Pattern, err)
				return nil, false, engineerr.InvalidInput("search.compile", err)
			}
			// Fall back to literal matching with a warning, per
			// spec.md §4.3 "regex ... on compilation failure, fall
			// back to literal matching with warning."
			debug.LogSearch("pattern %q failed to compile, falling back to literal: %v\n", opts.Pattern, err)
			return &compiled{literal: opts.Pattern, matchCase: opts.MatchCase}, true, nil
		}
		return &compiled{re: re, useRE: true}, false, nil
	default:
		return &compiled{literal: opts.Pattern, matchCase: opts.MatchCase}, false, nil
	}
}

// wildcardToRegex converts '*' -> '.*', '?' -> '.', and literalizes
// everything else, per spec.md §4.3.
func wildcardToRegex(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

func isWordByte(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// findInText returns (column, length) pairs of matches within text,
// honoring whole-word boundaries.
func findInText(text string, c *compiled, wholeWord bool) [][2]int {
	var spans [][2]int
	if c.useRE {
		for _, loc := range c.re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1] - loc[0]})
		}
	} else if c.literal != "" {
		search := text
		target := c.literal
		if !c.matchCase {
			search = strings.ToLower(search)
			target = strings.ToLower(target)
		}
		start := 0
		for start <= len(search) {
			idx := strings.Index(search[start:], target)
			if idx < 0 {
				break
			}
			pos := start + idx
			spans = append(spans, [2]int{pos, len(target)})
			start = pos + len(target)
		}
	}

	if !wholeWord {
		return spans
	}

	var filtered [][2]int
	runes := []rune(text)
	byteToRune := buildByteToRuneIndex(text)
	for _, sp := range spans {
		startRune := byteToRune[sp[0]]
		endRune := byteToRune[sp[0]+sp[1]]
		okStart := startRune == 0 || !isWordByte(runes[startRune-1])
		okEnd := endRune == len(runes) || !isWordByte(runes[endRune])
		if okStart && okEnd {
			filtered = append(filtered, sp)
		}
	}
	return filtered
}

func buildByteToRuneIndex(s string) map[int]int {
	idx := make(map[int]int, len(s)+1)
	runeIdx := 0
	for byteIdx := range s {
		idx[byteIdx] = runeIdx
		runeIdx++
	}
	idx[len(s)] = runeIdx
	return idx
}

// columnRanges splits text by delim and returns the byte [start,end)
// range of each visible column, in original-text coordinates.
func columnRanges(text string, scope *ColumnScope) []([2]int) {
	if scope == nil || scope.Delimiter == "" {
		return []([2]int){{0, len(text)}}
	}
	visible := make(map[int]bool, len(scope.VisibleColumns))
	for _, c := range scope.VisibleColumns {
		visible[c] = true
	}
	var ranges [][2]int
	pos := 0
	col := 0
	for {
		idx := strings.Index(text[pos:], scope.Delimiter)
		var end int
		if idx < 0 {
			end = len(text)
		} else {
			end = pos + idx
		}
		if len(visible) == 0 || visible[col] {
			ranges = append(ranges, [2]int{pos, end})
		}
		if idx < 0 {
			break
		}
		pos = end + len(scope.Delimiter)
		col++
	}
	return ranges
}

// Run executes a search across totalLines using lineText, honoring an
// optional restriction to specific line numbers (an active filter
// projection, per spec.md §4.3), cancellation and rate-limited
// progress.
func Run(cfg Config, opts Options, totalLines uint64, lineText LineTextFunc, restrict []uint64, cancel *types.CancelToken, progress types.ProgressFunc) (Result, error) {
	if opts.Pattern == "" {
		return Result{Matches: []types.Match{}}, nil
	}

	c, _, err := compile(opts)
	if err != nil {
		return Result{}, err
	}

	maxMatches := cfg.MaxMatches
	if maxMatches <= 0 {
		maxMatches = 10000
	}
	batch := cfg.BatchLines
	if batch <= 0 {
		batch = 1000
	}
	progressEvery := time.Duration(cfg.ProgressEveryMs) * time.Millisecond
	if progressEvery <= 0 {
		progressEvery = 50 * time.Millisecond
	}

	lineNumbers := restrict
	scanAll := lineNumbers == nil

	var out []types.Match
	exceeded := false
	var lastReport time.Time
	scanned := 0
	total := int(totalLines)
	if !scanAll {
		total = len(lineNumbers)
	}

	emit := func(lineNumber uint64, text string) bool {
		for _, rng := range columnRanges(text, opts.ColumnScope) {
			sub := text[rng[0]:rng[1]]
			for _, sp := range findInText(sub, c, opts.WholeWord) {
				if len(out) >= maxMatches {
					exceeded = true
					return false
				}
				col := rng[0] + sp[0]
				snippetEnd := col + sp[1]
				if snippetEnd > len(text) {
					snippetEnd = len(text)
				}
				out = append(out, types.Match{
					LineNumber: lineNumber,
					Column:     col,
					Length:     sp[1],
					Snippet:    text[col:snippetEnd],
				})
			}
		}
		return true
	}

	batchCount := 0
	for i := 0; i < total; i++ {
		if cancel.Cancelled() {
			return Result{}, engineerr.Cancelled("search.run")
		}

		var ln uint64
		if scanAll {
			ln = uint64(i)
		} else {
			ln = lineNumbers[i]
		}

		text, ok := lineText(ln)
		if ok {
			if !emit(ln, text) {
				break
			}
		}

		scanned++
		batchCount++
		if batchCount >= batch {
			batchCount = 0
			now := time.Now()
			if progress != nil && now.Sub(lastReport) >= progressEvery {
				progress(types.Progress{
					Percent: percentOf(scanned, total),
					Scanned: uint64(scanned),
					Total:   uint64(total),
				})
				lastReport = now
			}
		}
	}

	if progress != nil {
		progress(types.Progress{Percent: 100, Scanned: uint64(scanned), Total: uint64(total)})
	}

	// Ascending (line_number, column) order, per spec.md §4.3 "Result
	// ordering" — already guaranteed by the scan order when scanAll or
	// restrict is sorted, but multi-column-range matches within one
	// line can interleave, so sort defensively.
	sortMatches(out)

	debug.LogSearch("pattern %q: %d matches (exceeded=%v)\n", opts.Pattern, len(out), exceeded)
	return Result{Matches: out, CountExceeded: exceeded}, nil
}

func percentOf(scanned, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(scanned) / float64(total) * 100
}

func sortMatches(m []types.Match) {
	// Small-n insertion sort keeps this allocation-free for the common
	// case and stable for equal (line, column) pairs.
	for i := 1; i < len(m); i++ {
		j := i
		for j > 0 && less(m[j], m[j-1]) {
			m[j], m[j-1] = m[j-1], m[j]
			j--
		}
	}
}

func less(a, b types.Match) bool {
	if a.LineNumber != b.LineNumber {
		return a.LineNumber < b.LineNumber
	}
	return a.Column < b.Column
}
