package code_analyzer

import (
	"context"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/zeebo/xxh3"
)

// CacheStats tracks tree cache performance for one project.
type CacheStats struct {
	TotalRequests int64
	CacheHits     int64
	CacheMisses   int64
	Parses        int64
	Invalidations int64
	LastResetTime time.Time
	mutex         sync.RWMutex
}

func newCacheStats() *CacheStats {
	return &CacheStats{LastResetTime: time.Now()}
}

// Fingerprint returns the content fingerprint used to key cached trees.
func Fingerprint(code []byte) uint64 {
	return xxh3.Hash(code)
}

// treeCache holds the parsed tree for one file's current source text.
// It is a single-writer/multi-reader resource: readers share the RLock and
// a re-parse or invalidation takes the write lock.
type treeCache struct {
	mutex       sync.RWMutex
	code        []byte
	fingerprint uint64
	tree        *sitter.Tree
	treeKey     uint64
	parseErr    error
	parsed      bool
	stats       *CacheStats
}

func newTreeCache(code []byte, stats *CacheStats) *treeCache {
	return &treeCache{
		code:        code,
		fingerprint: Fingerprint(code),
		stats:       stats,
	}
}

// get returns a private copy of the cached tree and the exact source it was
// parsed from, parsing once per fingerprint. The cached tree itself is never
// handed out: a sitter.Tree memoizes nodes in an unsynchronized map, so each
// caller walks its own copy.
func (tc *treeCache) get(ctx context.Context, path string) (*sitter.Tree, []byte, error) {
	tc.mutex.RLock()
	if tc.parsed && tc.treeKey == tc.fingerprint {
		tree, code, err := copyTree(tc.tree), tc.code, tc.parseErr
		tc.mutex.RUnlock()
		tc.recordCacheHit()
		return tree, code, err
	}
	tc.mutex.RUnlock()

	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	// Another reader may have parsed while we waited for the write lock.
	if tc.parsed && tc.treeKey == tc.fingerprint {
		tc.recordCacheHit()
		return copyTree(tc.tree), tc.code, tc.parseErr
	}
	tc.recordCacheMiss()

	tree, err := parseJava(ctx, path, tc.code)
	if ctx.Err() != nil {
		// A cancelled parse says nothing about the source; don't cache it.
		return nil, tc.code, err
	}
	tc.tree = tree
	tc.parseErr = err
	tc.treeKey = tc.fingerprint
	tc.parsed = true
	tc.recordParse()
	return copyTree(tc.tree), tc.code, tc.parseErr
}

// copyTree shares the parsed syntax tree but gives the copy its own node cache.
func copyTree(tree *sitter.Tree) *sitter.Tree {
	if tree == nil {
		return nil
	}
	return tree.Copy()
}

// set replaces the source text and drops the cached tree.
func (tc *treeCache) set(code []byte) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	tc.code = code
	tc.fingerprint = Fingerprint(code)
	tc.tree = nil
	tc.parseErr = nil
	tc.parsed = false
	tc.recordInvalidation()
}

func (tc *treeCache) source() ([]byte, uint64) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.code, tc.fingerprint
}

func parseJava(ctx context.Context, path string, code []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, code)
	if err != nil {
		return nil, &ParseError{File: path, Line: 1, Column: 1, Err: err}
	}

	root := tree.RootNode()
	if root.HasError() {
		node := firstErrorNode(root)
		if node == nil {
			node = root
		}
		snippet := node.Content(code)
		if len(snippet) > 40 {
			snippet = snippet[:40]
		}
		return tree, &ParseError{
			File:    path,
			Line:    int(node.StartPoint().Row) + 1,
			Column:  int(node.StartPoint().Column) + 1,
			Snippet: snippet,
		}
	}
	return tree, nil
}

// firstErrorNode walks only the subtrees that contain errors.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}

// ParseSource parses standalone source text that does not belong to a project.
func ParseSource(ctx context.Context, name string, code []byte) (*sitter.Tree, error) {
	return parseJava(ctx, name, code)
}
