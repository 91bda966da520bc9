package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISO(t *testing.T) {
	r, ok := Parse("2024-03-15T10:30:00.123Z connection established")
	require.True(t, ok)
	assert.Equal(t, "2024-03-15T10:30:00.123Z", r.Literal)
	expected := time.Date(2024, 3, 15, 10, 30, 0, 123*int(time.Millisecond), time.UTC).UnixMilli()
	assert.Equal(t, expected, r.EpochMs)
}

func TestParseISOSpaceSeparator(t *testing.T) {
	r, ok := Parse("2024-03-15 10:30:00 starting up")
	require.True(t, ok)
	assert.Equal(t, "2024-03-15 10:30:00", r.Literal)
}

func TestParseEuropean(t *testing.T) {
	r, ok := Parse("15.03.2024 10:30:00 connection established")
	require.True(t, ok)
	assert.Equal(t, "15.03.2024 10:30:00", r.Literal)
}

func TestParseSyslog(t *testing.T) {
	restore := now
	now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	defer func() { now = restore }()

	r, ok := Parse("Mar 15 10:30:00 host sshd[123]: session opened")
	require.True(t, ok)
	assert.Equal(t, "Mar 15 10:30:00", r.Literal)
	expected := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, expected, r.EpochMs)
}

func TestParseSyslogLowercaseMonthRejected(t *testing.T) {
	_, ok := Parse("mar 15 10:30:00 host sshd[123]: session opened")
	assert.False(t, ok)
}

func TestParseInvalidDateFeb30(t *testing.T) {
	_, ok := Parse("2024-02-30T10:30:00 bad date")
	assert.False(t, ok)
}

func TestParseNoMatch(t *testing.T) {
	_, ok := Parse("this line has no timestamp at all")
	assert.False(t, ok)
}

func TestParseOnlyScansFirst60Bytes(t *testing.T) {
	line := "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx 2024-03-15T10:30:00"
	_, ok := Parse(line)
	assert.False(t, ok)
}

func TestFindGaps(t *testing.T) {
	lines := []Result{
		{EpochMs: 0},
		{EpochMs: 1000},
		{EpochMs: 500000},
		{EpochMs: 500500},
	}
	parse := func(i uint64) (Result, bool) {
		if int(i) >= len(lines) {
			return Result{}, false
		}
		return lines[i], true
	}
	gaps := FindGaps(uint64(len(lines)), 10*time.Second, parse)
	require.Len(t, gaps, 1)
	assert.Equal(t, uint64(1), gaps[0].FromLine)
	assert.Equal(t, uint64(2), gaps[0].ToLine)
}

func TestFindGapsSkipsUnparsedLines(t *testing.T) {
	parse := func(i uint64) (Result, bool) {
		switch i {
		case 0:
			return Result{EpochMs: 0}, true
		case 2:
			return Result{EpochMs: 100000}, true
		default:
			return Result{}, false
		}
	}
	gaps := FindGaps(3, 5*time.Second, parse)
	require.Len(t, gaps, 1)
	assert.Equal(t, uint64(0), gaps[0].FromLine)
	assert.Equal(t, uint64(2), gaps[0].ToLine)
}
