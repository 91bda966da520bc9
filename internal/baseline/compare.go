package baseline

import (
	"fmt"
	"math"
	"strings"

	"github.com/hbollon/go-edlib"
)

// Severity classifies a Finding's urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Category classifies what kind of drift a Finding reports.
type Category string

const (
	CategoryLevelShift       Category = "level-shift"
	CategoryNewCrash         Category = "new-crash"
	CategoryNewComponent     Category = "new-component"
	CategoryMissingComponent Category = "missing-component"
	CategoryErrorRate        Category = "error-rate"
	CategoryTimePattern      Category = "time-pattern"
)

// Finding is one detected drift between a baseline and the current
// fingerprint.
type Finding struct {
	Category Category
	Severity Severity
	Title    string
	Detail   string
}

// Report is the full comparison output, per spec.md §4.9 "Comparison".
type Report struct {
	Findings []Finding
	Summary  map[Severity]int
}

const componentFuzzyThreshold = 0.85

// Compare produces a deterministic drift report between baseline and
// current, per the rule table in spec.md §4.9.
func Compare(baselineFp, currentFp Fingerprint) Report {
	var findings []Finding

	findings = append(findings, levelShiftFindings(baselineFp, currentFp)...)
	findings = append(findings, crashFindings(baselineFp, currentFp)...)
	findings = append(findings, componentFindings(baselineFp, currentFp)...)
	findings = append(findings, channelFindings(baselineFp, currentFp)...)
	if f, ok := timePatternFinding(baselineFp, currentFp); ok {
		findings = append(findings, f)
	}

	sortFindingsBySeverity(findings)

	summary := map[Severity]int{SeverityCritical: 0, SeverityWarning: 0, SeverityInfo: 0}
	for _, f := range findings {
		summary[f.Severity]++
	}

	return Report{Findings: findings, Summary: summary}
}

func levelShiftFindings(base, cur Fingerprint) []Finding {
	var out []Finding
	for lvl, curPct := range cur.LevelPercentages {
		basePct := base.LevelPercentages[lvl]
		shift := math.Abs(curPct - basePct)
		var sev Severity
		switch {
		case shift > 15:
			sev = SeverityCritical
		case shift >= 5:
			sev = SeverityWarning
		default:
			continue
		}
		out = append(out, Finding{
			Category: CategoryLevelShift,
			Severity: sev,
			Title:    fmt.Sprintf("%s rate shifted by %.1f points", lvl, shift),
			Detail:   fmt.Sprintf("baseline %.1f%% -> current %.1f%%", basePct, curPct),
		})
	}
	return out
}

func crashFindings(base, cur Fingerprint) []Finding {
	baseKeywords := make(map[string]bool, len(base.Crashes))
	for _, c := range base.Crashes {
		baseKeywords[strings.ToLower(c.Keyword)] = true
	}
	seen := make(map[string]bool)
	var out []Finding
	for _, c := range cur.Crashes {
		kw := strings.ToLower(c.Keyword)
		if baseKeywords[kw] || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, Finding{
			Category: CategoryNewCrash,
			Severity: SeverityCritical,
			Title:    fmt.Sprintf("new crash keyword %q", c.Keyword),
			Detail:   fmt.Sprintf("first seen at line %d", c.LineNumber),
		})
	}
	return out
}

func componentFindings(base, cur Fingerprint) []Finding {
	baseByName := make(map[string]FailingComponent, len(base.FailingComponents))
	for _, c := range base.FailingComponents {
		baseByName[c.Name] = c
	}
	curByName := make(map[string]FailingComponent, len(cur.FailingComponents))
	for _, c := range cur.FailingComponents {
		curByName[c.Name] = c
	}

	var out []Finding
	for name, curComp := range curByName {
		baseComp, matched := matchComponent(name, baseByName)
		if !matched {
			out = append(out, Finding{
				Category: CategoryNewComponent,
				Severity: SeverityWarning,
				Title:    fmt.Sprintf("new failing component %q", name),
				Detail:   fmt.Sprintf("%d errors", curComp.ErrorCount),
			})
			continue
		}
		if baseComp.ErrorCount == 0 {
			continue
		}
		ratio := float64(curComp.ErrorCount) / float64(baseComp.ErrorCount)
		switch {
		case ratio > 5:
			out = append(out, Finding{
				Category: CategoryErrorRate,
				Severity: SeverityCritical,
				Title:    fmt.Sprintf("%s error rate %.1fx baseline", name, ratio),
				Detail:   fmt.Sprintf("baseline %d -> current %d", baseComp.ErrorCount, curComp.ErrorCount),
			})
		case ratio >= 2:
			out = append(out, Finding{
				Category: CategoryErrorRate,
				Severity: SeverityWarning,
				Title:    fmt.Sprintf("%s error rate %.1fx baseline", name, ratio),
				Detail:   fmt.Sprintf("baseline %d -> current %d", baseComp.ErrorCount, curComp.ErrorCount),
			})
		}
	}
	return out
}

// matchComponent finds name in baseByName, falling back to a fuzzy
// match (Jaro-Winkler similarity) so minor naming drift between runs
// doesn't spuriously read as a brand-new component.
func matchComponent(name string, baseByName map[string]FailingComponent) (FailingComponent, bool) {
	if c, ok := baseByName[name]; ok {
		return c, true
	}
	for baseName, c := range baseByName {
		sim, err := edlib.StringsSimilarity(name, baseName, edlib.JaroWinkler)
		if err == nil && float64(sim) >= componentFuzzyThreshold {
			return c, true
		}
	}
	return FailingComponent{}, false
}

func channelFindings(base, cur Fingerprint) []Finding {
	var out []Finding
	for ch, count := range base.ChannelCounts {
		if count <= 10 {
			continue
		}
		if _, present := cur.ChannelCounts[ch]; present {
			continue
		}
		renamed := false
		for curCh := range cur.ChannelCounts {
			sim, err := edlib.StringsSimilarity(ch, curCh, edlib.JaroWinkler)
			if err == nil && float64(sim) >= componentFuzzyThreshold {
				renamed = true
				break
			}
		}
		if renamed {
			continue
		}
		out = append(out, Finding{
			Category: CategoryMissingComponent,
			Severity: SeverityInfo,
			Title:    fmt.Sprintf("channel %q no longer present", ch),
			Detail:   fmt.Sprintf("had %d lines in baseline", count),
		})
	}
	return out
}

// timePatternFinding compares the variance of the raw per-minute
// timestamp density buckets. The counts are not normalized by total
// line count, so two files of very different sizes can trigger this
// finding without any change in their time pattern.
func timePatternFinding(base, cur Fingerprint) (Finding, bool) {
	if len(base.TimestampDensity) == 0 || len(cur.TimestampDensity) == 0 {
		return Finding{}, false
	}
	baseVar := variance(base.TimestampDensity)
	curVar := variance(cur.TimestampDensity)
	if baseVar == 0 {
		if curVar > 0 {
			return Finding{
				Category: CategoryTimePattern,
				Severity: SeverityInfo,
				Title:    "timestamp density pattern changed",
				Detail:   fmt.Sprintf("baseline variance 0 -> current variance %.2f", curVar),
			}, true
		}
		return Finding{}, false
	}
	if curVar > baseVar*3 {
		return Finding{
			Category: CategoryTimePattern,
			Severity: SeverityInfo,
			Title:    "timestamp density pattern changed",
			Detail:   fmt.Sprintf("baseline variance %.2f -> current variance %.2f", baseVar, curVar),
		}, true
	}
	return Finding{}, false
}

func variance(buckets []uint32) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var sum float64
	for _, b := range buckets {
		sum += float64(b)
	}
	mean := sum / float64(len(buckets))
	var sq float64
	for _, b := range buckets {
		d := float64(b) - mean
		sq += d * d
	}
	return sq / float64(len(buckets))
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

func sortFindingsBySeverity(f []Finding) {
	for i := 1; i < len(f); i++ {
		j := i
		for j > 0 && severityRank(f[j].Severity) < severityRank(f[j-1].Severity) {
			f[j], f[j-1] = f[j-1], f[j]
			j--
		}
	}
}
