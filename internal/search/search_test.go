package search

import (
	"testing"

	"github.com/standardbeagle/logscope/internal/engineerr"
	"github.com/standardbeagle/logscope/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineSource(lines []string) LineTextFunc {
	return func(n uint64) (string, bool) {
		if int(n) >= len(lines) {
			return "", false
		}
		return lines[n], true
	}
}

func TestEmptyPatternNoError(t *testing.T) {
	res, err := Run(Config{}, Options{Pattern: ""}, 3, lineSource([]string{"a", "b", "c"}), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestLiteralCaseInsensitive(t *testing.T) {
	lines := []string{"Connection ERROR detected", "all good"}
	res, err := Run(Config{}, Options{Pattern: "error", Flavor: FlavorLiteral, MatchCase: false}, 2, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, uint64(0), res.Matches[0].LineNumber)
}

func TestLiteralCaseSensitiveMisses(t *testing.T) {
	lines := []string{"Connection ERROR detected"}
	res, err := Run(Config{}, Options{Pattern: "error", Flavor: FlavorLiteral, MatchCase: true}, 1, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestRegexSearch(t *testing.T) {
	lines := []string{"code=404 not found", "code=200 ok"}
	res, err := Run(Config{}, Options{Pattern: `code=\d+`, Flavor: FlavorRegex}, 2, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 2)
}

func TestRegexFallbackToLiteralOnBadPattern(t *testing.T) {
	lines := []string{"has [unterminated literally"}
	res, err := Run(Config{}, Options{Pattern: "[unterminated", Flavor: FlavorRegex}, 1, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
}

func TestRegexCompileFailureWithFallbackDisabledReturnsInvalidInput(t *testing.T) {
	lines := []string{"has [unterminated literally"}
	res, err := Run(Config{}, Options{
		Pattern:                "[unterminated",
		Flavor:                 FlavorRegex,
		DisableLiteralFallback: true,
	}, 1, lineSource(lines), nil, nil, nil)
	require.Error(t, err)
	kind, ok := engineerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, engineerr.KindInvalidInput, kind)
	assert.Empty(t, res.Matches)
}

func TestWildcardSearch(t *testing.T) {
	lines := []string{"user bob logged in", "user alice logged out"}
	res, err := Run(Config{}, Options{Pattern: "user * logged in", Flavor: FlavorWildcard}, 2, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, uint64(0), res.Matches[0].LineNumber)
}

func TestWholeWordBoundary(t *testing.T) {
	lines := []string{"cat category", "the cat sat"}
	res, err := Run(Config{}, Options{Pattern: "cat", Flavor: FlavorLiteral, WholeWord: true}, 2, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	// line 0: "cat" matches as whole word, "category" should not.
	for _, m := range res.Matches {
		assert.LessOrEqual(t, m.Column+m.Length, len(lines[m.LineNumber]))
	}
	assert.Len(t, res.Matches, 2)
}

func TestColumnScope(t *testing.T) {
	lines := []string{"2024-01-01,ERROR,disk full", "2024-01-02,INFO,disk full"}
	scope := &ColumnScope{Delimiter: ",", VisibleColumns: []int{1}}
	res, err := Run(Config{}, Options{Pattern: "disk", Flavor: FlavorLiteral, ColumnScope: scope}, 2, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Matches) // "disk" only appears in column 2, not scoped column 1
}

func TestColumnScopeMatchesScopedColumn(t *testing.T) {
	lines := []string{"2024-01-01,ERROR,disk full"}
	scope := &ColumnScope{Delimiter: ",", VisibleColumns: []int{1}}
	res, err := Run(Config{}, Options{Pattern: "ERROR", Flavor: FlavorLiteral, ColumnScope: scope}, 1, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, 11, res.Matches[0].Column)
}

func TestResultOrdering(t *testing.T) {
	lines := []string{"aa aa aa", "bb", "aa"}
	res, err := Run(Config{}, Options{Pattern: "aa", Flavor: FlavorLiteral}, 3, lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	for i := 1; i < len(res.Matches); i++ {
		prev, cur := res.Matches[i-1], res.Matches[i]
		if prev.LineNumber == cur.LineNumber {
			assert.Less(t, prev.Column, cur.Column)
		} else {
			assert.Less(t, prev.LineNumber, cur.LineNumber)
		}
	}
}

func TestMaxMatchesCap(t *testing.T) {
	lines := make([]string, 5)
	for i := range lines {
		lines[i] = "match match match"
	}
	res, err := Run(Config{MaxMatches: 3}, Options{Pattern: "match", Flavor: FlavorLiteral}, uint64(len(lines)), lineSource(lines), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 3)
	assert.True(t, res.CountExceeded)
}

func TestRestrictedLineNumbers(t *testing.T) {
	lines := []string{"error one", "info two", "error three", "debug four"}
	restrict := []uint64{0, 2}
	res, err := Run(Config{}, Options{Pattern: "error", Flavor: FlavorLiteral}, uint64(len(lines)), lineSource(lines), restrict, nil, nil)
	require.NoError(t, err)
	for _, m := range res.Matches {
		assert.Contains(t, restrict, m.LineNumber)
	}
	assert.Len(t, res.Matches, 2)
}

func TestCancellation(t *testing.T) {
	lines := []string{"a", "b", "c"}
	cancel := types.NewCancelToken()
	cancel.Cancel()
	_, err := Run(Config{}, Options{Pattern: "a", Flavor: FlavorLiteral}, 3, lineSource(lines), nil, cancel, nil)
	assert.Error(t, err)
}

func TestParseScannerLine(t *testing.T) {
	fm, ok := parseScannerLine("app.log:10:5:ERROR something broke")
	require.True(t, ok)
	assert.Equal(t, "app.log", fm.Path)
	assert.Equal(t, uint64(9), fm.Line)
	assert.Equal(t, 4, fm.Column)
	assert.Equal(t, "ERROR something broke", fm.Text)
}

func TestParseScannerLineMalformed(t *testing.T) {
	_, ok := parseScannerLine("not a valid line")
	assert.False(t, ok)
}
