package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	analyzermodels "github.com/meysamhadeli/codgrade/code_analyzer/models"
	"github.com/meysamhadeli/codgrade/embed_data"
	"github.com/meysamhadeli/codgrade/providers/contracts"
	providermodels "github.com/meysamhadeli/codgrade/providers/models"
	"github.com/meysamhadeli/codgrade/query_engine"
	"github.com/meysamhadeli/codgrade/retrieval/models"
)

// Options bound the size and selection strategy of a bundle.
type Options struct {
	Mode     Mode
	Window   int
	MaxRefs  int
	MaxChars int
	// SelectionTimeout bounds one call to the selection service. Zero means no extra bound.
	SelectionTimeout time.Duration
}

// DefaultOptions returns the session defaults.
func DefaultOptions() Options {
	return Options{
		Mode:             ModeHeuristic,
		Window:           9,
		MaxRefs:          5,
		MaxChars:         12000,
		SelectionTimeout: 30 * time.Second,
	}
}

// Request describes one diagnostic to explain.
type Request struct {
	Refs []LineRef
	// Mode overrides the builder default when set.
	Mode        Mode
	Synopsis    string
	PriorOutput string
}

// Builder extracts snippet bundles from one project.
type Builder struct {
	project  *code_analyzer.Project
	selector contracts.ISelectionProvider
	opts     Options
	logger   *slog.Logger
}

// NewBuilder creates a builder. selector may be nil, in which case active
// requests are served heuristically.
func NewBuilder(project *code_analyzer.Project, opts Options, selector contracts.ISelectionProvider, logger *slog.Logger) *Builder {
	defaults := DefaultOptions()
	if opts.Mode == "" {
		opts.Mode = defaults.Mode
	}
	if opts.Window <= 0 {
		opts.Window = defaults.Window
	}
	if opts.MaxRefs < 0 {
		opts.MaxRefs = 0
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaults.MaxChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{project: project, selector: selector, opts: opts, logger: logger}
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

// BuildContext assembles the snippet bundle for req. It never fails: unresolvable
// references are skipped and selection-service problems fall back to the heuristic.
func (b *Builder) BuildContext(ctx context.Context, req Request) SnippetBundle {
	return b.buildContext(ctx, req, b.opts.MaxChars)
}

func (b *Builder) buildContext(ctx context.Context, req Request, maxChars int) SnippetBundle {
	mode := req.Mode
	if mode == "" {
		mode = b.opts.Mode
	}

	if mode == ModeActive {
		snippets, retrievalErr := b.activeSnippets(ctx, req)
		if retrievalErr == nil {
			return b.budget(b.merge(snippets), maxChars)
		}
		b.logger.Warn("falling back to heuristic retrieval", "error", retrievalErr)
	}

	return b.budget(b.merge(b.heuristicSnippets(ctx, req.Refs)), maxChars)
}

const (
	diagnosticHeading = "## Diagnostic\n"
	sourceHeading     = "\n## Relevant source\n"
)

// Prompt builds the role-tagged messages for one diagnostic. The user message
// as a whole is held to the character budget: the diagnostic may take up to
// half of it and the excerpts get whatever the diagnostic leaves.
func (b *Builder) Prompt(ctx context.Context, req Request, diagnostic string) []models.PromptMessage {
	var user strings.Builder
	user.WriteString(diagnosticHeading)
	user.WriteString(Truncate(strings.TrimSpace(diagnostic), max(1, b.opts.MaxChars/2)))
	user.WriteString("\n")

	bundle := b.buildContext(ctx, req, b.opts.MaxChars-user.Len()-len(sourceHeading))
	if !bundle.Empty() {
		user.WriteString(sourceHeading)
		user.WriteString(bundle.Render())
	}

	return []models.PromptMessage{
		{Role: models.RoleSystem, Content: string(embed_data.FeedbackSystemPrompt)},
		{Role: models.RoleUser, Content: user.String()},
	}
}

func (b *Builder) heuristicSnippets(ctx context.Context, refs []LineRef) []Snippet {
	var (
		snippets []Snippet
		extra    int
		pulled   = make(map[string]bool)
	)

	for _, ref := range refs {
		file, err := b.project.Identify(ref.File)
		if err != nil {
			b.logger.Debug("skipping unresolved reference", "ref", ref.String(), "error", err)
			continue
		}
		lines := splitLines(file.Code())
		if len(lines) == 0 {
			continue
		}

		line := ref.Line
		if line > len(lines) {
			line = len(lines)
		}
		if line <= 0 {
			snippets = append(snippets, excerpt(file.Path(), lines, 1, len(lines), ""))
			continue
		}

		start := line - b.opts.Window/2
		end := start + b.opts.Window - 1
		snippets = append(snippets, excerpt(file.Path(), lines, start, end, ""))

		if extra >= b.opts.MaxRefs {
			continue
		}
		enclosing, ok := enclosingMethod(ctx, file, line)
		if !ok {
			continue
		}
		pulled[declKey(enclosing)] = true

		for _, callee := range b.calledMethods(ctx, file, enclosing) {
			if extra >= b.opts.MaxRefs {
				break
			}
			if pulled[declKey(callee)] {
				continue
			}
			pulled[declKey(callee)] = true
			snippets = append(snippets, b.methodSnippet(callee, "called from "+enclosing.Key()))
			extra++
		}
	}
	return snippets
}

// calledMethods resolves the invocations inside decl to methods declared in the project,
// in call order.
func (b *Builder) calledMethods(ctx context.Context, file *code_analyzer.File, decl analyzermodels.MethodDecl) []analyzermodels.MethodDecl {
	invocations, err := query_engine.New().
		Source(file.Path()).
		Query(`[(method_declaration) (constructor_declaration)] @decl`).
		Capture("decl").
		Filter(query_engine.PredicateFunc(func(_ string, loc query_engine.Location) bool {
			return loc.StartLine == decl.StartLine
		})).
		Named("method_invocation").
		Run(ctx, b.project)
	if err != nil {
		b.logger.Debug("failed to scan method body", "method", decl.Key(), "error", err)
		return nil
	}

	index := b.project.Methods(ctx)
	var callees []analyzermodels.MethodDecl
	seen := make(map[string]bool)
	for _, inv := range invocations {
		if seen[inv.Text] {
			continue
		}
		seen[inv.Text] = true
		if callee, ok := resolveCallee(index, inv.Text, decl); ok {
			callees = append(callees, callee)
		}
	}
	return callees
}

// resolveCallee prefers a method in the caller's own class, then any declaration by name.
func resolveCallee(index []analyzermodels.MethodDecl, name string, caller analyzermodels.MethodDecl) (analyzermodels.MethodDecl, bool) {
	var fallback *analyzermodels.MethodDecl
	for i := range index {
		m := index[i]
		if m.Name != name || declKey(m) == declKey(caller) {
			continue
		}
		if m.ClassName == caller.ClassName {
			return m, true
		}
		if fallback == nil {
			fallback = &index[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return analyzermodels.MethodDecl{}, false
}

func (b *Builder) activeSnippets(ctx context.Context, req Request) ([]Snippet, *RetrievalError) {
	if b.selector == nil {
		return nil, &RetrievalError{Err: fmt.Errorf("no selection provider configured")}
	}

	callCtx := ctx
	if b.opts.SelectionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.opts.SelectionTimeout)
		defer cancel()
	}

	selections, err := b.selector.Select(callCtx, providermodels.SelectionRequest{
		Synopsis:    Truncate(req.Synopsis, b.opts.MaxChars),
		PriorOutput: Truncate(req.PriorOutput, b.opts.MaxChars),
	})
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}

	index := b.project.Methods(ctx)
	var snippets []Snippet
	for _, sel := range selections {
		decl, ok := resolveSelection(index, sel)
		if !ok {
			b.logger.Debug("unresolved selection", "class", sel.Class, "method", sel.Method)
			continue
		}
		snippets = append(snippets, b.methodSnippet(decl, "selected"))
	}
	if len(snippets) == 0 {
		return nil, &RetrievalError{Err: ErrNoSelections}
	}
	return snippets, nil
}

func resolveSelection(index []analyzermodels.MethodDecl, sel providermodels.Selection) (analyzermodels.MethodDecl, bool) {
	class := sel.Class
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	for _, m := range index {
		if m.Name == sel.Method && m.ClassName == class {
			return m, true
		}
	}
	return analyzermodels.MethodDecl{}, false
}

func (b *Builder) methodSnippet(decl analyzermodels.MethodDecl, note string) Snippet {
	if file, err := b.project.Identify(decl.RelativePath); err == nil {
		if lines := splitLines(file.Code()); len(lines) >= decl.StartLine {
			return excerpt(decl.RelativePath, lines, decl.StartLine, decl.EndLine, note)
		}
	}
	lines := splitLines(decl.Body)
	return Snippet{
		File:      decl.RelativePath,
		StartLine: decl.StartLine,
		EndLine:   decl.StartLine + len(lines) - 1,
		Lines:     lines,
		Note:      note,
	}
}

// merge collapses overlapping or adjacent excerpts of the same file into one,
// keeping the position of the first. A union can grow far enough to reach an
// excerpt it did not touch before, so folding repeats until no two overlap.
func (b *Builder) merge(snippets []Snippet) []Snippet {
	var merged []Snippet
	for _, s := range snippets {
		merged = append(merged, s)
		for i := len(merged) - 1; ; {
			j := overlapping(merged, i)
			if j < 0 {
				break
			}
			lo, hi := min(i, j), max(i, j)
			merged[lo] = b.union(merged[lo], merged[hi])
			merged = append(merged[:hi], merged[hi+1:]...)
			i = lo
		}
	}
	return merged
}

// overlapping returns the index of another excerpt that overlaps snippets[i], or -1.
func overlapping(snippets []Snippet, i int) int {
	for j := range snippets {
		if j != i && snippets[j].overlaps(snippets[i]) {
			return j
		}
	}
	return -1
}

func (b *Builder) union(a, c Snippet) Snippet {
	start, end := min(a.StartLine, c.StartLine), max(a.EndLine, c.EndLine)
	if start == a.StartLine && end == a.EndLine {
		return a
	}
	file, err := b.project.Identify(a.File)
	if err != nil {
		return a
	}
	note := a.Note
	if note == "" {
		note = c.Note
	}
	return excerpt(a.File, splitLines(file.Code()), start, end, note)
}

// budget keeps whole excerpts while they fit in maxChars and trims the first one that does not.
func (b *Builder) budget(snippets []Snippet, maxChars int) SnippetBundle {
	var (
		bundle SnippetBundle
		used   int
	)
	for i, s := range snippets {
		block := len(renderBlock(i+1, s))
		if used+block <= maxChars {
			bundle.Snippets = append(bundle.Snippets, s)
			used += block
			continue
		}

		bundle.Truncated = true
		for len(s.Lines) > 1 {
			s.Lines = s.Lines[:len(s.Lines)-1]
			s.EndLine = s.StartLine + len(s.Lines) - 1
			if used+len(renderBlock(i+1, s)) <= maxChars {
				bundle.Snippets = append(bundle.Snippets, s)
				break
			}
		}
		break
	}
	return bundle
}

func enclosingMethod(ctx context.Context, file *code_analyzer.File, line int) (analyzermodels.MethodDecl, bool) {
	methods, err := file.Methods(ctx)
	if err != nil {
		return analyzermodels.MethodDecl{}, false
	}
	var (
		best  analyzermodels.MethodDecl
		found bool
	)
	for _, m := range methods {
		if !m.Contains(line) {
			continue
		}
		if !found || m.EndLine-m.StartLine < best.EndLine-best.StartLine {
			best, found = m, true
		}
	}
	return best, found
}

func declKey(m analyzermodels.MethodDecl) string {
	return fmt.Sprintf("%s:%d", filepath.ToSlash(m.RelativePath), m.StartLine)
}

func excerpt(file string, lines []string, start, end int, note string) Snippet {
	if start < 1 {
		end += 1 - start
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}
	return Snippet{
		File:      file,
		StartLine: start,
		EndLine:   end,
		Lines:     append([]string(nil), lines[start-1:end]...),
		Note:      note,
	}
}

func splitLines(code string) []string {
	code = strings.TrimRight(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	if code == "" {
		return nil
	}
	return strings.Split(code, "\n")
}
