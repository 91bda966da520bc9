// Package timestamp implements spec.md §4.6: recognizing a fixed set
// of timestamp forms in a line prefix, plus the time-gap detection
// operation SPEC_FULL.md §12 adds for the HTTP API's /time-gaps
// contract.
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const scanBytes = 60

// Result is a recognized timestamp: its epoch and the literal text it
// was parsed from.
type Result struct {
	EpochMs int64
	Literal string
}

var (
	isoPattern = regexp.MustCompile(
		`(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?(Z)?`)
	europeanPattern = regexp.MustCompile(
		`(\d{2})\.(\d{2})\.(\d{4}) (\d{2}):(\d{2}):(\d{2})`)
	syslogPattern = regexp.MustCompile(
		`([A-Z][a-z]{2}) +(\d{1,2}) (\d{2}):(\d{2}):(\d{2})`)
)

var monthByName = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// now is overridable in tests for the syslog "year = current" rule.
var now = time.Now

// Parse scans the first 60 bytes of line for a recognized timestamp
// form, trying ISO, European, then syslog in that order. Invalid dates
// (e.g. Feb 30) yield no match rather than a clamped one.
func Parse(line string) (Result, bool) {
	scan := line
	if len(scan) > scanBytes {
		scan = scan[:scanBytes]
	}

	if loc := isoPattern.FindStringSubmatchIndex(scan); loc != nil {
		if r, ok := parseISO(scan, loc); ok {
			return r, true
		}
	}
	if loc := europeanPattern.FindStringSubmatchIndex(scan); loc != nil {
		if r, ok := parseEuropean(scan, loc); ok {
			return r, true
		}
	}
	if loc := syslogPattern.FindStringSubmatchIndex(scan); loc != nil {
		if r, ok := parseSyslog(scan, loc); ok {
			return r, true
		}
	}
	return Result{}, false
}

func submatch(s string, loc []int, i int) string {
	if loc[2*i] < 0 {
		return ""
	}
	return s[loc[2*i]:loc[2*i+1]]
}

func parseISO(s string, loc []int) (Result, bool) {
	year, _ := strconv.Atoi(submatch(s, loc, 1))
	month, _ := strconv.Atoi(submatch(s, loc, 2))
	day, _ := strconv.Atoi(submatch(s, loc, 3))
	hour, _ := strconv.Atoi(submatch(s, loc, 4))
	minute, _ := strconv.Atoi(submatch(s, loc, 5))
	sec, _ := strconv.Atoi(submatch(s, loc, 6))
	fracStr := submatch(s, loc, 7)
	var nanos int
	if fracStr != "" {
		for len(fracStr) < 3 {
			fracStr += "0"
		}
		ms, _ := strconv.Atoi(fracStr[:3])
		nanos = ms * int(time.Millisecond)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, nanos, time.UTC)
	if !validDate(t, year, month, day) {
		return Result{}, false
	}
	return Result{EpochMs: t.UnixMilli(), Literal: s[loc[0]:loc[1]]}, true
}

func parseEuropean(s string, loc []int) (Result, bool) {
	day, _ := strconv.Atoi(submatch(s, loc, 1))
	month, _ := strconv.Atoi(submatch(s, loc, 2))
	year, _ := strconv.Atoi(submatch(s, loc, 3))
	hour, _ := strconv.Atoi(submatch(s, loc, 4))
	minute, _ := strconv.Atoi(submatch(s, loc, 5))
	sec, _ := strconv.Atoi(submatch(s, loc, 6))

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	if !validDate(t, year, month, day) {
		return Result{}, false
	}
	return Result{EpochMs: t.UnixMilli(), Literal: s[loc[0]:loc[1]]}, true
}

func parseSyslog(s string, loc []int) (Result, bool) {
	monthName := submatch(s, loc, 1)
	month, ok := monthByName[monthName]
	if !ok {
		return Result{}, false
	}
	day, _ := strconv.Atoi(submatch(s, loc, 2))
	hour, _ := strconv.Atoi(submatch(s, loc, 3))
	minute, _ := strconv.Atoi(submatch(s, loc, 4))
	sec, _ := strconv.Atoi(submatch(s, loc, 5))

	year := now().Year()
	t := time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
	if !validDate(t, year, int(month), day) {
		return Result{}, false
	}
	return Result{EpochMs: t.UnixMilli(), Literal: s[loc[0]:loc[1]]}, true
}

// validDate rejects dates like Feb 30 that time.Date silently rolls
// forward into March.
func validDate(t time.Time, year, month, day int) bool {
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

// Gap is a line range where consecutive parsed timestamps differ by
// more than a threshold.
type Gap struct {
	FromLine uint64
	ToLine   uint64
	FromMs   int64
	ToMs     int64
}

// FindGaps scans timestamps returned by parseLine(lineNumber) for
// lines [0, totalLines) and returns ranges where the gap between
// consecutive recognized timestamps exceeds threshold.
func FindGaps(totalLines uint64, threshold time.Duration, parseLine func(uint64) (Result, bool)) []Gap {
	var gaps []Gap
	var havePrev bool
	var prevLine uint64
	var prevMs int64

	for i := uint64(0); i < totalLines; i++ {
		r, ok := parseLine(i)
		if !ok {
			continue
		}
		if havePrev {
			delta := r.EpochMs - prevMs
			if delta > threshold.Milliseconds() {
				gaps = append(gaps, Gap{
					FromLine: prevLine,
					ToLine:   i,
					FromMs:   prevMs,
					ToMs:     r.EpochMs,
				})
			}
		}
		prevLine = i
		prevMs = r.EpochMs
		havePrev = true
	}
	return gaps
}

// String renders a Result for debugging/logging.
func (r Result) String() string {
	return fmt.Sprintf("%s (%d)", r.Literal, r.EpochMs)
}
