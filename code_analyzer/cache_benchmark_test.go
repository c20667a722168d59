package code_analyzer

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// javaSource builds a class with n small methods.
func javaSource(n int) []byte {
	var sb strings.Builder
	sb.WriteString("package bench;\n\npublic class Big {\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "    int m%d(int x) {\n        for (int i = 0; i < x; i++) { x += i; }\n        return x;\n    }\n", i)
	}
	sb.WriteString("}\n")
	return []byte(sb.String())
}

// BenchmarkFingerprint compares the tree cache key with an MD5 digest of the same source.
func BenchmarkFingerprint(b *testing.B) {
	code := javaSource(200)

	b.Run("MD5", func(b *testing.B) {
		b.SetBytes(int64(len(code)))
		for i := 0; i < b.N; i++ {
			_ = md5.Sum(code)
		}
	})

	b.Run("XXH3", func(b *testing.B) {
		b.SetBytes(int64(len(code)))
		for i := 0; i < b.N; i++ {
			_ = Fingerprint(code)
		}
	})
}

// BenchmarkTreeCache compares a cached tree lookup with a fresh parse.
func BenchmarkTreeCache(b *testing.B) {
	ctx := context.Background()
	code := javaSource(200)

	b.Run("Parse", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := ParseSource(ctx, "Big.java", code); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Cached", func(b *testing.B) {
		cache := newTreeCache(code, newCacheStats())
		if _, _, err := cache.get(ctx, "Big.java"); err != nil {
			b.Fatal(err)
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, _, err := cache.get(ctx, "Big.java"); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func TestFingerprintConsistency(t *testing.T) {
	code := javaSource(3)
	first := Fingerprint(code)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Fingerprint(code))
	}
	assert.NotEqual(t, first, Fingerprint(javaSource(4)))
}

func TestTreeCache_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	stats := newCacheStats()
	cache := newTreeCache(javaSource(20), stats)

	done := make(chan error, 16)
	counts := make(chan int, 16)
	for i := 0; i < 16; i++ {
		go func() {
			tree, _, err := cache.get(ctx, "Big.java")
			done <- err
			if err == nil {
				counts <- countNodes(tree.RootNode(), "method_declaration")
			}
		}()
	}
	for i := 0; i < 16; i++ {
		require.NoError(t, <-done)
		assert.Equal(t, 20, <-counts)
	}

	assert.Equal(t, int64(1), stats.Parses)
	assert.Equal(t, int64(16), stats.TotalRequests)
	assert.Equal(t, int64(15), stats.CacheHits)
}

// countNodes walks the whole subtree, touching every node of the tree's node cache.
func countNodes(node *sitter.Node, nodeType string) int {
	n := 0
	if node.Type() == nodeType {
		n++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		n += countNodes(node.Child(i), nodeType)
	}
	return n
}
