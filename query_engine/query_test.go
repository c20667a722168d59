package query_engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loopsSource = `public class Loops {
    public static void main(String[] args) {
        for (int i = 0; i < 3; i++) {
            for (int j = 0; j < i; j++) {
                System.out.println(i * j);
            }
        }
    }

    static int other(int n) {
        while (n > 0) {
            n--;
        }
        return n;
    }
}
`

func loops() Query {
	return New().SourceCode("Loops.java", loopsSource)
}

func lines(matches []MatchResult) []int {
	var out []int
	for _, m := range matches {
		out = append(out, m.Location.StartLine)
	}
	return out
}

func TestRun_NamedPattern(t *testing.T) {
	matches, err := loops().Named("for_loop").Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, lines(matches))
	assert.Equal(t, "loop", matches[0].Capture)
	assert.Equal(t, "Loops.java", matches[0].Location.File)
	assert.Equal(t, 7, matches[0].Location.EndLine)
	assert.Equal(t, 9, matches[0].Location.StartColumn)
}

func TestRun_StagesRefineWithinPreviousMatches(t *testing.T) {
	ctx := context.Background()

	inMain, err := loops().MethodWithName("main").Named("for_loop").Run(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, inMain, 2)

	inOther, err := loops().MethodWithName("other").Named("for_loop").Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, inOther)

	whileInOther, err := loops().MethodWithName("other").Named("while_loop").Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{11}, lines(whileInOther))

	body, err := loops().MethodBodyWithName("other").Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, body, 1)
	assert.Equal(t, "body", body[0].Capture)
	assert.Equal(t, 10, body[0].Location.StartLine)

	class, err := loops().ClassWithName("Loops").Named("method_declaration").Run(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, class, 2)
}

func TestRun_OverlappingCandidatesAreSearchedIndependently(t *testing.T) {
	// The outer loop yields itself and the inner loop; the inner loop yields itself.
	matches, err := loops().Named("for_loop").Named("for_loop").Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 4}, lines(matches))
}

func TestRun_CaptureAndFilter(t *testing.T) {
	ctx := context.Background()

	names, err := loops().Named("method_declaration").Capture("name").Run(ctx, nil)
	require.NoError(t, err)
	var texts []string
	for _, m := range names {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"main", "other"}, texts)

	inner, err := loops().Named("for_loop").Filter(PredicateFunc(func(_ string, loc Location) bool {
		return loc.StartLine > 3
	})).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, lines(inner))
}

func TestEvaluate_Constraints(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		constraint Constraint
		passed     bool
		explain    string
	}{
		{"at least once", AtLeastOnce(), true, "found 2 matches (at least one required)"},
		{"exactly two", ExactlyN(2), true, "found exactly 2 matches as required"},
		{"exactly one", ExactlyN(1), false, "expected exactly 1 match but found 2"},
		{"never", Never(), false, "expected no matches but found 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := loops().Named("for_loop").Constraint(tt.constraint).Evaluate(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, outcome.Count())
			assert.Equal(t, tt.passed, outcome.Passed)
			assert.Equal(t, tt.explain, outcome.Explain())
		})
	}

	outcome, err := loops().Named("enhanced_for_loop").Constraint(Never()).Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.Equal(t, "found no matches, as required", outcome.Explain())

	outcome, err = loops().Named("enhanced_for_loop").Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.False(t, outcome.Passed)
	assert.Equal(t, "expected at least one match but found none", outcome.Explain())
}

func TestQuery_IsImmutable(t *testing.T) {
	base := loops().MethodWithName("main")
	withLoop := base.Named("for_loop").Constraint(ExactlyN(2))
	withWhile := base.Named("while_loop")

	assert.Len(t, base.Stages(), 1)
	assert.Len(t, withLoop.Stages(), 2)
	assert.Equal(t, "(while_statement) @loop", withWhile.Stages()[1].Pattern)
	assert.Equal(t, KindAtLeastOnce, base.ConstraintMode().Kind)
	assert.Equal(t, KindExactlyN, withLoop.ConstraintMode().Kind)
}

func TestSourceMatches(t *testing.T) {
	ctx := context.Background()
	methods, err := loops().MethodWithName("main").Run(ctx, nil)
	require.NoError(t, err)

	matches, err := New().SourceMatches(methods).Named("for_loop").Run(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, err = New().SourceMatches([]MatchResult{{Text: "for"}}).Named("for_loop").Run(ctx, nil)
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name        string
		query       Query
		wantPattern bool
	}{
		{name: "no source", query: New().Named("for_loop")},
		{name: "no stages", query: loops()},
		{name: "capture before stage", query: loops().Capture("loop").Named("for_loop")},
		{name: "filter before stage", query: loops().Filter(PredicateFunc(func(string, Location) bool { return true }))},
		{name: "unknown named pattern", query: loops().Named("do_loop")},
		{name: "negative count", query: loops().Named("for_loop").Constraint(ExactlyN(-1))},
		{name: "malformed pattern", query: loops().Query("(for_statement"), wantPattern: true},
		{name: "unknown node type", query: loops().Query("(no_such_node) @x"), wantPattern: true},
		{name: "missing capture", query: loops().Named("for_loop").Capture("nope"), wantPattern: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			require.Error(t, err)
			queryErr, ok := AsQueryError(err)
			assert.Equal(t, tt.wantPattern, ok)
			if ok {
				assert.Equal(t, InvalidPattern, queryErr.Kind)
			}
		})
	}
}

func TestEvaluate_SourceErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New().SourceCode("Broken.java", "class Broken { void f( }").Named("for_loop").Evaluate(ctx, nil)
	queryErr, ok := AsQueryError(err)
	require.True(t, ok)
	assert.Equal(t, SyntaxError, queryErr.Kind)
	assert.True(t, code_analyzer.IsParseError(err))

	_, err = New().Source("Loops").Named("for_loop").Evaluate(ctx, nil)
	queryErr, ok = AsQueryError(err)
	require.True(t, ok)
	assert.Equal(t, NoSuchFile, queryErr.Kind)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Loops.java"), []byte(loopsSource), 0o644))
	project, err := code_analyzer.Discover(ctx, root)
	require.NoError(t, err)

	_, err = New().Source("Missing").Named("for_loop").Evaluate(ctx, project)
	queryErr, ok = AsQueryError(err)
	require.True(t, ok)
	assert.Equal(t, NoSuchFile, queryErr.Kind)
	assert.Equal(t, "Missing", queryErr.File)

	outcome, err := New().Source("Loops").Named("for_loop").Evaluate(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Count())
	assert.Equal(t, "Loops.java", outcome.Matches[0].Location.File)
}

func TestLibrary(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "for_loop")
	assert.Contains(t, names, "test_methods")
	assert.IsIncreasing(t, names)

	named, err := Lookup("main_method")
	require.NoError(t, err)
	assert.Equal(t, "method", named.Capture)

	_, err = Lookup("goto_statement")
	assert.Error(t, err)

	mains, err := loops().Named("main_method").Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, mains, 1)
}
