package filter

import (
	"testing"

	"github.com/standardbeagle/logscope/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func infoFrom(lines []string, levels map[int]types.Level) LineInfoFunc {
	return func(n uint64) LineInfo {
		li := LineInfo{Text: lines[n]}
		if lv, ok := levels[int(n)]; ok {
			li.Level = lv
			li.HasLevel = true
		}
		return li
	}
}

func TestEmptyConfigIsIdentity(t *testing.T) {
	lines := []string{"a", "b", "c"}
	proj, err := Run(RuntimeConfig{}, Config{}, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, proj)
}

func TestIncludeFiltersLines(t *testing.T) {
	lines := []string{"connection established", "disk error", "connection closed"}
	cfg := Config{IncludePatterns: []Pattern{{Pattern: "connection"}}}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, proj)
}

func TestContextExpansion(t *testing.T) {
	lines := []string{"one", "two", "MATCH", "four", "five"}
	cfg := Config{IncludePatterns: []Pattern{{Pattern: "MATCH"}}, ContextLines: 1}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, proj)
}

func TestContextClampedAtBoundaries(t *testing.T) {
	lines := []string{"MATCH", "two", "three"}
	cfg := Config{IncludePatterns: []Pattern{{Pattern: "MATCH"}}, ContextLines: 5}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, proj)
}

func TestExcludeRemovesExactLines(t *testing.T) {
	lines := []string{"keep this", "keep but excluded", "keep this too"}
	cfg := Config{
		IncludePatterns: []Pattern{{Pattern: "keep"}},
		ExcludePatterns: []Pattern{{Pattern: "excluded"}},
	}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, proj)
}

func TestExcludeIdempotent(t *testing.T) {
	lines := []string{"keep", "keep excluded", "keep"}
	cfg := Config{
		IncludePatterns: []Pattern{{Pattern: "keep"}},
		ExcludePatterns: []Pattern{{Pattern: "excluded"}, {Pattern: "excluded"}},
	}
	proj1, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	proj2, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, proj1, proj2)
}

func TestLevelFilter(t *testing.T) {
	lines := []string{"a", "b", "c"}
	levels := map[int]types.Level{0: types.LevelError, 1: types.LevelInfo, 2: types.LevelError}
	cfg := Config{Levels: []types.Level{types.LevelError}}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, levels), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, proj)
}

func TestAdvancedGroupOr(t *testing.T) {
	lines := []string{"alpha", "beta", "gamma"}
	cfg := Config{Advanced: []Group{
		{Op: GroupOr, Rules: []Rule{
			{Pattern: "alpha", Role: RolePositive},
			{Pattern: "gamma", Role: RolePositive},
		}},
	}}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, proj)
}

func TestAdvancedGroupsAndCombined(t *testing.T) {
	lines := []string{"alpha beta", "alpha only", "beta only"}
	cfg := Config{Advanced: []Group{
		{Op: GroupAnd, Rules: []Rule{{Pattern: "alpha", Role: RolePositive}}},
		{Op: GroupAnd, Rules: []Rule{{Pattern: "beta", Role: RolePositive}}},
	}}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, proj)
}

func TestAdvancedInvalidRegexPositiveIsFalse(t *testing.T) {
	lines := []string{"anything"}
	cfg := Config{Advanced: []Group{
		{Op: GroupAnd, Rules: []Rule{{Pattern: "[unterminated", Role: RolePositive}}},
	}}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, proj)
}

func TestAdvancedInvalidRegexNegativeIsTrue(t *testing.T) {
	lines := []string{"anything"}
	cfg := Config{Advanced: []Group{
		{Op: GroupAnd, Rules: []Rule{{Pattern: "[unterminated", Role: RoleNegative}}},
	}}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, proj)
}

func TestCancellation(t *testing.T) {
	lines := []string{"a", "b", "c"}
	cancel := types.NewCancelToken()
	cancel.Cancel()
	_, err := Run(RuntimeConfig{}, Config{IncludePatterns: []Pattern{{Pattern: "a"}}}, uint64(len(lines)), infoFrom(lines, nil), cancel, nil)
	assert.Error(t, err)
}

func TestSortedUniqueOutput(t *testing.T) {
	lines := []string{"x", "MATCH", "y", "z", "MATCH"}
	cfg := Config{IncludePatterns: []Pattern{{Pattern: "MATCH"}}, ContextLines: 2}
	proj, err := Run(RuntimeConfig{}, cfg, uint64(len(lines)), infoFrom(lines, nil), nil, nil)
	require.NoError(t, err)
	for i := 1; i < len(proj); i++ {
		assert.Less(t, proj[i-1], proj[i])
	}
}
