// Package query_engine runs structural tree-sitter queries against parsed sources.
//
// A Query is an immutable value built stage by stage:
//
//	query_engine.New().
//		Source("Main").
//		Named("for_loop").
//		Constraint(query_engine.AtLeastOnce())
//
// Each stage searches only inside the spans captured by the previous stage.
// Stages run strictly in order and there is no backtracking; overlapping
// candidates from one stage are searched independently, so a span can be
// reported more than once.
package query_engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	sitter "github.com/smacker/go-tree-sitter"
)

// Location is where a captured span sits in its source.
type Location struct {
	File        string
	StartLine   int
	EndLine     int
	StartColumn int
}

// MatchResult is one captured span produced by a stage.
type MatchResult struct {
	Text     string
	Capture  string
	Location Location

	node   *sitter.Node
	source []byte
}

// Predicate filters captured spans after structural matching.
// Implementations must be pure and must not block.
type Predicate interface {
	Keep(text string, loc Location) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(text string, loc Location) bool

// Keep implements Predicate.
func (f PredicateFunc) Keep(text string, loc Location) bool { return f(text, loc) }

// Stage is one step of a pipeline.
type Stage struct {
	Pattern string
	Capture string
	Filter  Predicate
}

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceFile
	sourceCode
	sourceMatches
)

// Query is a pipeline under construction. Every method returns a new value,
// so a partially built query can be shared and extended safely.
type Query struct {
	kind       sourceKind
	file       string
	code       string
	matches    []MatchResult
	stages     []Stage
	constraint Constraint
	err        error
}

// New starts an empty query with the AtLeastOnce constraint.
func New() Query {
	return Query{constraint: AtLeastOnce()}
}

func (q Query) withStages(stages []Stage) Query {
	q.stages = stages
	return q
}

func (q Query) copyStages() []Stage {
	stages := make([]Stage, len(q.stages))
	copy(stages, q.stages)
	return stages
}

// Source selects a project file by path, file name or class name.
func (q Query) Source(file string) Query {
	q.kind, q.file, q.code, q.matches = sourceFile, file, "", nil
	return q
}

// SourceCode selects explicit source text.
func (q Query) SourceCode(name, code string) Query {
	q.kind, q.file, q.code, q.matches = sourceCode, name, code, nil
	return q
}

// SourceMatches selects the spans of an earlier run as the starting candidates.
// The matches still point into the earlier run's tree, so the refined query must
// run on the goroutine that produced them.
func (q Query) SourceMatches(matches []MatchResult) Query {
	q.kind, q.file, q.code = sourceMatches, "", ""
	q.matches = append([]MatchResult(nil), matches...)
	return q
}

// Query appends a stage with a raw tree-sitter pattern.
func (q Query) Query(pattern string) Query {
	return q.withStages(append(q.copyStages(), Stage{Pattern: pattern}))
}

// Named appends a stage from the built-in pattern library with its default capture.
func (q Query) Named(name string) Query {
	named, err := Lookup(name)
	if err != nil {
		if q.err == nil {
			q.err = err
		}
		return q
	}
	return q.withStages(append(q.copyStages(), Stage{Pattern: named.Pattern, Capture: named.Capture}))
}

// Capture sets which capture of the last stage feeds the next one.
func (q Query) Capture(name string) Query {
	if len(q.stages) == 0 {
		if q.err == nil {
			q.err = errors.New("capture set before any query stage")
		}
		return q
	}
	stages := q.copyStages()
	stages[len(stages)-1].Capture = name
	return q.withStages(stages)
}

// Filter attaches a predicate to the last stage.
func (q Query) Filter(p Predicate) Query {
	if len(q.stages) == 0 {
		if q.err == nil {
			q.err = errors.New("filter set before any query stage")
		}
		return q
	}
	stages := q.copyStages()
	stages[len(stages)-1].Filter = p
	return q.withStages(stages)
}

// Constraint sets the rule applied to the final match count.
func (q Query) Constraint(c Constraint) Query {
	q.constraint = c
	return q
}

// Stages returns a copy of the configured stages.
func (q Query) Stages() []Stage { return q.copyStages() }

// ConstraintMode returns the configured constraint.
func (q Query) ConstraintMode() Constraint { return q.constraint }

// SourceName returns the selected file name, if any.
func (q Query) SourceName() string { return q.file }

// Validate checks the pipeline shape and compiles every pattern.
// It fails with a *QueryError of kind InvalidPattern for malformed patterns.
func (q Query) Validate() error {
	if q.err != nil {
		return q.err
	}
	if q.kind == sourceNone {
		return errors.New("query has no source")
	}
	if len(q.stages) == 0 {
		return errors.New("query has no stages")
	}
	if err := q.constraint.validate(); err != nil {
		return err
	}
	for i, stage := range q.stages {
		query, err := code_analyzer.CompileQuery(stage.Pattern)
		if err != nil {
			return &QueryError{Kind: InvalidPattern, Stage: i, Pattern: stage.Pattern, Err: err}
		}
		if stage.Capture != "" && !hasCapture(query, stage.Capture) {
			return &QueryError{
				Kind:    InvalidPattern,
				Stage:   i,
				Pattern: stage.Pattern,
				Err:     fmt.Errorf("pattern has no capture named @%s", stage.Capture),
			}
		}
	}
	return nil
}

func hasCapture(query *sitter.Query, name string) bool {
	for i := uint32(0); i < query.CaptureCount(); i++ {
		if query.CaptureNameForId(i) == name {
			return true
		}
	}
	return false
}

// Outcome is the result of running a pipeline to completion.
type Outcome struct {
	Matches    []MatchResult
	Constraint Constraint
	Passed     bool
}

// Count is the number of final matches.
func (o Outcome) Count() int { return len(o.Matches) }

// Explain describes the constraint outcome.
func (o Outcome) Explain() string { return o.Constraint.Explain(len(o.Matches)) }

// Run evaluates the pipeline and returns the final stage's matches.
// project may be nil when the source is explicit code or earlier matches.
func (q Query) Run(ctx context.Context, project *code_analyzer.Project) ([]MatchResult, error) {
	outcome, err := q.Evaluate(ctx, project)
	if err != nil {
		return nil, err
	}
	return outcome.Matches, nil
}

// Evaluate runs the pipeline and checks the constraint.
func (q Query) Evaluate(ctx context.Context, project *code_analyzer.Project) (Outcome, error) {
	if err := q.Validate(); err != nil {
		return Outcome{}, err
	}

	candidates, err := q.initialCandidates(ctx, project)
	if err != nil {
		return Outcome{}, err
	}

	for i, stage := range q.stages {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		candidates, err = runStage(i, stage, candidates)
		if err != nil {
			return Outcome{}, err
		}
	}

	return Outcome{
		Matches:    candidates,
		Constraint: q.constraint,
		Passed:     q.constraint.Check(len(candidates)),
	}, nil
}

func (q Query) initialCandidates(ctx context.Context, project *code_analyzer.Project) ([]MatchResult, error) {
	switch q.kind {
	case sourceFile:
		if project == nil {
			return nil, &QueryError{Kind: NoSuchFile, File: q.file, Err: errors.New("no project to resolve file")}
		}
		file, err := project.Identify(q.file)
		if err != nil {
			return nil, &QueryError{Kind: NoSuchFile, File: q.file, Err: err}
		}
		tree, code, err := file.Tree(ctx)
		if err != nil {
			return nil, &QueryError{Kind: SyntaxError, File: file.Path(), Err: err}
		}
		return []MatchResult{rootCandidate(file.Path(), tree, code)}, nil

	case sourceCode:
		code := []byte(q.code)
		tree, err := code_analyzer.ParseSource(ctx, q.file, code)
		if err != nil {
			return nil, &QueryError{Kind: SyntaxError, File: q.file, Err: err}
		}
		return []MatchResult{rootCandidate(q.file, tree, code)}, nil

	default:
		for _, m := range q.matches {
			if m.node == nil {
				return nil, errors.New("source matches were not produced by a query run")
			}
		}
		return q.matches, nil
	}
}

func rootCandidate(file string, tree *sitter.Tree, code []byte) MatchResult {
	root := tree.RootNode()
	return newMatch(file, "", root, code)
}

func newMatch(file, capture string, node *sitter.Node, code []byte) MatchResult {
	return MatchResult{
		Text:    node.Content(code),
		Capture: capture,
		Location: Location{
			File:        file,
			StartLine:   int(node.StartPoint().Row) + 1,
			EndLine:     int(node.EndPoint().Row) + 1,
			StartColumn: int(node.StartPoint().Column) + 1,
		},
		node:   node,
		source: code,
	}
}

// runStage searches each candidate span independently and returns the captured spans.
func runStage(index int, stage Stage, candidates []MatchResult) ([]MatchResult, error) {
	query, err := code_analyzer.CompileQuery(stage.Pattern)
	if err != nil {
		return nil, &QueryError{Kind: InvalidPattern, Stage: index, Pattern: stage.Pattern, Err: err}
	}

	var next []MatchResult
	for _, candidate := range candidates {
		next = append(next, searchWithin(query, stage, candidate)...)
	}
	return next, nil
}

func searchWithin(query *sitter.Query, stage Stage, candidate MatchResult) []MatchResult {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, candidate.node)

	start, end := candidate.node.StartByte(), candidate.node.EndByte()

	var results []MatchResult
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, candidate.source)
		for _, c := range match.Captures {
			name := query.CaptureNameForId(c.Index)
			if stage.Capture != "" && name != stage.Capture {
				continue
			}
			if c.Node.StartByte() < start || c.Node.EndByte() > end {
				continue
			}
			result := newMatch(candidate.Location.File, name, c.Node, candidate.source)
			if stage.Filter != nil && !stage.Filter.Keep(result.Text, result.Location) {
				continue
			}
			results = append(results, result)
		}
	}
	return results
}
