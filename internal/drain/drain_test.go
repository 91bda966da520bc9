package drain

import (
	"testing"

	"github.com/standardbeagle/logscope/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoLinesDifferingByNumberFormOneCluster(t *testing.T) {
	tree := New()
	tree.Add(0, "user 42 logged in", types.LevelInfo, true)
	tree.Add(1, "user 99 logged in", types.LevelInfo, true)

	clusters := tree.Clusters(0)
	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Equal(t, 2, c.Count)

	found := false
	for _, tok := range c.Template {
		if tok.Wildcard {
			found = true
		}
	}
	assert.True(t, found, "expected a wildcard token at the differing position")
}

func TestSampleLineNumbersBoundedAndSubset(t *testing.T) {
	tree := New()
	matching := make(map[uint64]bool)
	for i := uint64(0); i < 20; i++ {
		tree.Add(i, "request id 1234 completed", types.LevelInfo, true)
		matching[i] = true
	}
	clusters := tree.Clusters(0)
	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.LessOrEqual(t, len(c.SampleLineNumbers), 10)
	for _, ln := range c.SampleLineNumbers {
		assert.True(t, matching[ln])
	}
	assert.Equal(t, 20, c.Count)
}

func TestDistinctLinesFormDistinctClusters(t *testing.T) {
	tree := New()
	tree.Add(0, "disk full on /dev/sda1", types.LevelError, true)
	tree.Add(1, "network unreachable", types.LevelError, true)
	tree.Add(2, "disk full on /dev/sda2", types.LevelError, true)
	tree.Add(3, "network unreachable", types.LevelError, true)

	clusters := tree.Clusters(0)
	assert.Len(t, clusters, 2)
}

func TestSingletonClustersExcludedFromOutput(t *testing.T) {
	tree := New()
	tree.Add(0, "unique line one", types.LevelInfo, true)
	tree.Add(1, "unique line two entirely different", types.LevelInfo, true)

	clusters := tree.Clusters(0)
	assert.Empty(t, clusters)
}

func TestOutputSortedByCountDescending(t *testing.T) {
	tree := New()
	for i := 0; i < 5; i++ {
		tree.Add(uint64(i), "alpha 1 beta", types.LevelInfo, true)
	}
	for i := 5; i < 8; i++ {
		tree.Add(uint64(i), "gamma 2 delta", types.LevelInfo, true)
	}
	clusters := tree.Clusters(0)
	require.Len(t, clusters, 2)
	assert.GreaterOrEqual(t, clusters[0].Count, clusters[1].Count)
}

func TestTokenizeSplitsOnPunctuationClass(t *testing.T) {
	toks := tokenize("key=value, other:thing [bracketed]")
	assert.Equal(t, []string{"key", "value", "other", "thing", "bracketed"}, toks)
}

func TestIsVariableDetectsKnownShapes(t *testing.T) {
	assert.True(t, isVariable("12345"))
	assert.True(t, isVariable("3.14"))
	assert.True(t, isVariable("deadbeef01"))
	assert.True(t, isVariable("550e8400-e29b-41d4-a716-446655440000"))
	assert.True(t, isVariable("192.168.1.1"))
	assert.True(t, isVariable("user@example.com"))
	assert.True(t, isVariable("https://example.com"))
	assert.False(t, isVariable("connected"))
}
