// Package drain implements spec.md §4.7: online log-template discovery
// via a fixed-depth prefix tree, in the style of the Drain algorithm.
// Tokenization follows the punctuation-class splitting spec.md names;
// tree-bucket keys are hashed with xxhash the way the teacher hashes
// structural keys in internal/analysis/duplicate_detector.go, adapted
// from code-block hashing to log-token hashing.
package drain

import (
	"net"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/standardbeagle/logscope/internal/types"
)

const (
	maxDepth          = 4
	maxChildren       = 100
	similarityThresh  = 0.4
	maxClusters       = 2000
	defaultOutputCap  = 500
)

var splitPattern = regexp.MustCompile(`[=:,\[\](){}\s]+`)

var (
	digitsPattern  = regexp.MustCompile(`^\d+$`)
	decimalPattern = regexp.MustCompile(`^\d+\.\d+$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8,}$`)
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	urlPrefixPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	pathPattern    = regexp.MustCompile(`^(/[^/\s]+)+/?$`)
)

// tokenize splits text on whitespace and the punctuation class
// spec.md §4.7 names, discarding empty tokens.
func tokenize(text string) []string {
	parts := splitPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isVariable reports whether token matches one of the variable-token
// shapes spec.md §4.7 enumerates.
func isVariable(token string) bool {
	if digitsPattern.MatchString(token) || decimalPattern.MatchString(token) {
		return true
	}
	if hexPattern.MatchString(token) || uuidPattern.MatchString(token) {
		return true
	}
	if net.ParseIP(token) != nil {
		return true
	}
	if emailPattern.MatchString(token) {
		return true
	}
	if urlPrefixPattern.MatchString(token) {
		return true
	}
	if strings.Contains(token, "/") && pathPattern.MatchString(token) {
		return true
	}
	return false
}

// keyTokens builds the tree-keying tokens: variables replaced with
// <*>, originals preserved separately for template merging.
func keyTokens(tokens []string) []types.Token {
	out := make([]types.Token, len(tokens))
	for i, t := range tokens {
		if isVariable(t) {
			out[i] = types.Token{Literal: t, Wildcard: true}
		} else {
			out[i] = types.Token{Literal: t, Wildcard: false}
		}
	}
	return out
}

type node struct {
	children map[string]*node
	clusters []*types.Cluster
	collapsed bool
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Tree is an online Drain clusterer.
type Tree struct {
	buckets      map[int]*node // keyed by token count
	clusterCount int
}

// New creates an empty clusterer.
func New() *Tree {
	return &Tree{buckets: make(map[int]*node)}
}

// Add processes one line, matching it to an existing cluster or
// creating a new one, per spec.md §4.7.
func (t *Tree) Add(lineNumber uint64, text string, level types.Level, hasLevel bool) {
	tokens := tokenize(text)
	keyed := keyTokens(tokens)
	n := t.length(len(keyed))

	depth := maxDepth
	if len(keyed) < depth {
		depth = len(keyed)
	}
	cur := n
	for d := 0; d < depth; d++ {
		key := treeKey(keyed[d])
		child, ok := cur.children[key]
		if !ok {
			if cur.collapsed {
				key = "<*>"
				child, ok = cur.children[key]
			}
			if !ok {
				if len(cur.children) >= maxChildren {
					cur.collapsed = true
					key = "<*>"
					child, ok = cur.children[key]
				}
				if !ok {
					child = newNode()
					cur.children[key] = child
				}
			}
		}
		cur = child
	}

	best, bestScore := bestMatch(cur.clusters, keyed)
	if best != nil && bestScore >= similarityThresh {
		mergeIntoCluster(best, keyed, lineNumber, level, hasLevel)
		return
	}

	if t.clusterCount >= maxClusters {
		return
	}

	nc := &types.Cluster{
		Template:          keyed,
		Count:             1,
		SampleLineNumbers: []uint64{lineNumber},
	}
	if hasLevel {
		nc.DetectedLevel = level
		nc.HasDetectedLevel = true
	}
	cur.clusters = append(cur.clusters, nc)
	t.clusterCount++
}

func (t *Tree) length(n int) *node {
	b, ok := t.buckets[n]
	if !ok {
		b = newNode()
		t.buckets[n] = b
	}
	return b
}

func treeKey(tok types.Token) string {
	if tok.Wildcard {
		return types.WildcardToken
	}
	return tok.Literal
}

// bestMatch finds the cluster with the highest similarity score
// against keyed, per spec.md §4.7 "Cluster match".
func bestMatch(clusters []*types.Cluster, keyed []types.Token) (*types.Cluster, float64) {
	var best *types.Cluster
	bestScore := -1.0
	for _, c := range clusters {
		if len(c.Template) != len(keyed) {
			continue
		}
		score := similarity(c.Template, keyed)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, bestScore
}

func similarity(template, tokens []types.Token) float64 {
	if len(template) == 0 {
		return 1
	}
	matches := 0
	for i := range template {
		if template[i].Wildcard || template[i].Literal == tokens[i].Literal {
			matches++
		}
	}
	return float64(matches) / float64(len(template))
}

// mergeIntoCluster updates template positions that differ to
// wildcards, increments count, and records a sample line if fewer than
// 10 are stored yet.
func mergeIntoCluster(c *types.Cluster, tokens []types.Token, lineNumber uint64, level types.Level, hasLevel bool) {
	for i := range c.Template {
		if !c.Template[i].Wildcard && c.Template[i].Literal != tokens[i].Literal {
			c.Template[i] = types.Token{Literal: tokens[i].Literal, Wildcard: true}
		}
	}
	c.Count++
	if len(c.SampleLineNumbers) < 10 {
		c.SampleLineNumbers = append(c.SampleLineNumbers, lineNumber)
	}
	if hasLevel && !c.HasDetectedLevel {
		c.DetectedLevel = level
		c.HasDetectedLevel = true
	}
}

// Clusters returns all clusters with count > 1, sorted by count
// descending and truncated to cap (default 500), per spec.md §4.7
// "Output".
func (t *Tree) Clusters(cap int) []*types.Cluster {
	if cap <= 0 {
		cap = defaultOutputCap
	}
	var out []*types.Cluster
	for _, b := range t.buckets {
		collectClusters(b, &out)
	}
	filtered := out[:0]
	for _, c := range out {
		if c.Count > 1 {
			filtered = append(filtered, c)
		}
	}
	sortClustersByCountDesc(filtered)
	if len(filtered) > cap {
		filtered = filtered[:cap]
	}
	return filtered
}

func collectClusters(n *node, out *[]*types.Cluster) {
	*out = append(*out, n.clusters...)
	for _, child := range n.children {
		collectClusters(child, out)
	}
}

// sortClustersByCountDesc orders clusters by descending hit count. Ties
// (equal counts) break on the template's bucketHash so output order is
// deterministic across runs over the same input.
func sortClustersByCountDesc(c []*types.Cluster) {
	for i := 1; i < len(c); i++ {
		j := i
		for j > 0 && clusterLess(c[j-1], c[j]) {
			c[j], c[j-1] = c[j-1], c[j]
			j--
		}
	}
}

func clusterLess(a, b *types.Cluster) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return bucketHash(a.Template) < bucketHash(b.Template)
}

// bucketHash gives a stable key for a cluster's template, used to break
// ties deterministically when templates match counts exactly.
func bucketHash(tokens []types.Token) uint64 {
	h := xxhash.New()
	for _, t := range tokens {
		h.WriteString(t.Literal)
		h.Write([]byte{0})
	}
	return h.Sum64()
}
