// Package filter implements spec.md §4.4: composite predicate
// evaluation over all lines of a file, producing a visible-lines
// projection. Batching and cancellation follow the same cooperative-
// yield pattern as internal/lineindex and internal/search, grounded on
// standardbeagle-lci's pipeline_scanner.go / pipeline_progress.go.
package filter

import (
	"regexp"
	"time"

	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/types"
)

// Pattern is one include/exclude predicate.
type Pattern struct {
	Pattern     string
	CaseSensitive bool
}

// GroupOp selects how a rule group's members combine.
type GroupOp string

const (
	GroupAnd GroupOp = "and"
	GroupOr  GroupOp = "or"
)

// Role selects whether a rule must match (positive) or must not
// (negative); invalid regex in a positive role evaluates false, in a
// negative role evaluates true, per spec.md §4.4.
type Role string

const (
	RolePositive Role = "positive"
	RoleNegative Role = "negative"
)

// Rule is one advanced-mode predicate.
type Rule struct {
	Pattern       string
	CaseSensitive bool
	Role          Role
}

// Group is a set of rules combined by Op; groups are AND-combined
// across the whole advanced config.
type Group struct {
	Op    GroupOp
	Rules []Rule
}

// Config is a FilterConfig per spec.md §4.4.
type Config struct {
	Levels          []types.Level
	IncludePatterns []Pattern
	ExcludePatterns []Pattern
	ContextLines    int
	Advanced        []Group
}

// RuntimeConfig bounds batching (spec.md §4.4 "Performance").
type RuntimeConfig struct {
	BatchLines      int
	ProgressEveryMs int
}

// LineInfo is what the filter needs per line; supplied by the caller
// (fileview) via LineInfoFunc so this package stays decoupled from
// fileview.
type LineInfo struct {
	Text     string
	Level    types.Level
	HasLevel bool
}

// LineInfoFunc returns the info for lineNumber.
type LineInfoFunc func(lineNumber uint64) LineInfo

type compiledPattern struct {
	re            *regexp.Regexp
	valid         bool
	caseSensitive bool
}

func compilePattern(p Pattern) compiledPattern {
	flags := "(?i)"
	if p.CaseSensitive {
		flags = ""
	}
	re, err := regexp.Compile(flags + p.Pattern)
	if err != nil {
		return compiledPattern{valid: false, caseSensitive: p.CaseSensitive}
	}
	return compiledPattern{re: re, valid: true, caseSensitive: p.CaseSensitive}
}

func (c compiledPattern) matches(text string) bool {
	if !c.valid {
		return false
	}
	return c.re.MatchString(text)
}

type compiledRule struct {
	compiledPattern
	role Role
}

func (r compiledRule) eval(text string) bool {
	if !r.valid {
		// Invalid regex: positive role is unsatisfiable (false),
		// negative role is trivially satisfied (true).
		return r.role == RoleNegative
	}
	matched := r.re.MatchString(text)
	if r.role == RoleNegative {
		return !matched
	}
	return matched
}

type compiledGroup struct {
	op    GroupOp
	rules []compiledRule
}

func (g compiledGroup) eval(text string) bool {
	if len(g.rules) == 0 {
		return true
	}
	if g.op == GroupOr {
		for _, r := range g.rules {
			if r.eval(text) {
				return true
			}
		}
		return false
	}
	for _, r := range g.rules {
		if !r.eval(text) {
			return false
		}
	}
	return true
}

func levelKept(levels []types.Level, lineLevel types.Level, hasLevel bool) bool {
	if len(levels) == 0 {
		return true
	}
	if !hasLevel {
		return false
	}
	for _, lv := range levels {
		if lv == lineLevel {
			return true
		}
	}
	return false
}

// Run evaluates cfg over [0, totalLines) and returns the sorted unique
// projection of visible line numbers.
func Run(rcfg RuntimeConfig, cfg Config, totalLines uint64, info LineInfoFunc, cancel *types.CancelToken, progress types.ProgressFunc) ([]uint64, error) {
	batch := rcfg.BatchLines
	if batch <= 0 {
		batch = 10000
	}
	progressEvery := time.Duration(rcfg.ProgressEveryMs) * time.Millisecond
	if progressEvery <= 0 {
		progressEvery = 50 * time.Millisecond
	}

	includes := make([]compiledPattern, len(cfg.IncludePatterns))
	for i, p := range cfg.IncludePatterns {
		includes[i] = compilePattern(p)
	}
	excludes := make([]compiledPattern, len(cfg.ExcludePatterns))
	for i, p := range cfg.ExcludePatterns {
		excludes[i] = compilePattern(p)
	}
	groups := make([]compiledGroup, len(cfg.Advanced))
	for i, g := range cfg.Advanced {
		rules := make([]compiledRule, len(g.Rules))
		for j, r := range g.Rules {
			rules[j] = compiledRule{compiledPattern: compilePattern(Pattern{Pattern: r.Pattern, CaseSensitive: r.CaseSensitive}), role: r.Role}
		}
		groups[i] = compiledGroup{op: g.Op, rules: rules}
	}

	visible := make(map[uint64]bool)
	excludeHit := make(map[uint64]bool)

	emptyConfig := len(cfg.Levels) == 0 && len(includes) == 0 && len(excludes) == 0 && len(groups) == 0

	batchCount := 0
	var lastReport time.Time
	total := int(totalLines)

	for i := uint64(0); i < totalLines; i++ {
		if cancel.Cancelled() {
			return nil, engineerr.Cancelled("filter.run")
		}

		li := info(i)

		if emptyConfig {
			visible[i] = true
		} else {
			passesLevel := levelKept(cfg.Levels, li.Level, li.HasLevel)
			passesInclude := len(includes) == 0
			for _, inc := range includes {
				if inc.matches(li.Text) {
					passesInclude = true
					break
				}
			}
			passesAdvanced := true
			for _, g := range groups {
				if !g.eval(li.Text) {
					passesAdvanced = false
					break
				}
			}

			keepIfIncluded := passesLevel && passesInclude && passesAdvanced
			if keepIfIncluded {
				lo, hi := contextRange(i, cfg.ContextLines, totalLines)
				for j := lo; j < hi; j++ {
					visible[j] = true
				}
			}

			for _, exc := range excludes {
				if exc.matches(li.Text) {
					excludeHit[i] = true
					break
				}
			}
		}

		batchCount++
		if batchCount >= batch {
			batchCount = 0
			now := time.Now()
			if progress != nil && now.Sub(lastReport) >= progressEvery {
				progress(types.Progress{
					Percent: float64(i+1) / float64(total) * 100,
					Scanned: i + 1,
					Total:   totalLines,
				})
				lastReport = now
			}
		}
	}

	// Remove exact exclude_hit lines; context lines added purely via
	// expansion are never removed, per spec.md §4.4 step 4.
	for ln := range excludeHit {
		delete(visible, ln)
	}

	if progress != nil {
		progress(types.Progress{Percent: 100, Scanned: totalLines, Total: totalLines})
	}

	out := make([]uint64, 0, len(visible))
	for ln := range visible {
		out = append(out, ln)
	}
	sortUint64(out)
	return out, nil
}

func contextRange(i uint64, contextLines int, totalLines uint64) (uint64, uint64) {
	if contextLines < 0 {
		contextLines = 0
	}
	var lo uint64
	if uint64(contextLines) > i {
		lo = 0
	} else {
		lo = i - uint64(contextLines)
	}
	hi := i + uint64(contextLines) + 1
	if hi > totalLines {
		hi = totalLines
	}
	return lo, hi
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j] < s[j-1] {
			s[j], s[j-1] = s[j-1], s[j]
			j--
		}
	}
}
