package code_analyzer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meysamhadeli/codgrade/code_analyzer/models"
	"github.com/meysamhadeli/codgrade/embed_data"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// NamedQuery is a prebuilt tree-sitter pattern with the capture it yields by default.
type NamedQuery struct {
	Pattern string `json:"pattern"`
	Capture string `json:"capture"`
}

var (
	javaQueriesOnce sync.Once
	javaQueries     map[string]NamedQuery
	javaQueriesErr  error

	compiledQueries sync.Map // pattern -> *sitter.Query
)

// JavaQueries returns the embedded library of named Java patterns.
func JavaQueries() (map[string]NamedQuery, error) {
	javaQueriesOnce.Do(func() {
		javaQueries = make(map[string]NamedQuery)
		if err := json.Unmarshal(embed_data.JavaQuery, &javaQueries); err != nil {
			javaQueriesErr = fmt.Errorf("failed to parse embedded java queries: %w", err)
		}
	})
	return javaQueries, javaQueriesErr
}

// CompileQuery compiles a pattern against the Java grammar, reusing earlier compilations.
// A compiled query is immutable and safe to share; cursors are per execution.
func CompileQuery(pattern string) (*sitter.Query, error) {
	if cached, ok := compiledQueries.Load(pattern); ok {
		return cached.(*sitter.Query), nil
	}
	query, err := sitter.NewQuery([]byte(pattern), java.GetLanguage())
	if err != nil {
		return nil, err
	}
	actual, _ := compiledQueries.LoadOrStore(pattern, query)
	return actual.(*sitter.Query), nil
}

// queryMatches runs a named query under node and returns one capture map per match,
// with text predicates (#eq?, #match?) applied.
func queryMatches(name string, node *sitter.Node, code []byte) ([]map[string]*sitter.Node, error) {
	library, err := JavaQueries()
	if err != nil {
		return nil, err
	}
	named, ok := library[name]
	if !ok {
		return nil, fmt.Errorf("unknown named query %q", name)
	}
	query, err := CompileQuery(named.Pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query %q: %w", name, err)
	}

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, node)

	var results []map[string]*sitter.Node
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, code)
		if len(match.Captures) == 0 {
			continue
		}
		captures := make(map[string]*sitter.Node, len(match.Captures))
		for _, c := range match.Captures {
			captures[query.CaptureNameForId(c.Index)] = c.Node
		}
		results = append(results, captures)
	}
	return results, nil
}

// classify derives a file's kind, class name and package from its parsed content.
func classify(root *sitter.Node, code []byte, relativePath string) (models.FileKind, string, string, error) {
	pkg := ""
	if matches, err := queryMatches("package", root, code); err != nil {
		return models.KindUnknown, "", "", err
	} else if len(matches) > 0 {
		pkg = matches[0]["name"].Content(code)
	}

	className := topLevelTypeName(root, code)
	if className == "" {
		className = strings.TrimSuffix(filepath.Base(relativePath), filepath.Ext(relativePath))
	}

	tests, err := queryMatches("test_methods", root, code)
	if err != nil {
		return models.KindUnknown, className, pkg, err
	}
	if len(tests) > 0 || importsJUnit(root, code) {
		return models.KindTest, className, pkg, nil
	}

	mains, err := queryMatches("main_method", root, code)
	if err != nil {
		return models.KindUnknown, className, pkg, err
	}
	if len(mains) > 0 {
		return models.KindClassWithMain, className, pkg, nil
	}

	hasClass, hasInterface := false, false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		switch root.NamedChild(i).Type() {
		case "class_declaration", "enum_declaration", "record_declaration":
			hasClass = true
		case "interface_declaration":
			hasInterface = true
		}
	}
	if hasInterface && !hasClass {
		return models.KindInterface, className, pkg, nil
	}
	return models.KindClass, className, pkg, nil
}

func topLevelTypeName(root *sitter.Node, code []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			if name := child.ChildByFieldName("name"); name != nil {
				return name.Content(code)
			}
		}
	}
	return ""
}

func importsJUnit(root *sitter.Node, code []byte) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "import_declaration" {
			continue
		}
		text := child.Content(code)
		if strings.Contains(text, "org.junit") {
			return true
		}
	}
	return false
}

// enclosingTypeName walks up from node to the nearest type declaration.
func enclosingTypeName(node *sitter.Node, code []byte) string {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			if name := parent.ChildByFieldName("name"); name != nil {
				return name.Content(code)
			}
		}
	}
	return ""
}

// extractMethods lists the methods and constructors declared in one file.
func extractMethods(root *sitter.Node, code []byte, relativePath string) ([]models.MethodDecl, error) {
	var methods []models.MethodDecl
	for _, kind := range []struct{ query, capture string }{
		{"method_declaration", "method"},
		{"constructor_declaration", "constructor"},
	} {
		matches, err := queryMatches(kind.query, root, code)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			decl, name := m[kind.capture], m["name"]
			if decl == nil || name == nil {
				continue
			}
			methods = append(methods, models.MethodDecl{
				RelativePath: relativePath,
				ClassName:    enclosingTypeName(decl, code),
				Name:         name.Content(code),
				StartLine:    int(decl.StartPoint().Row) + 1,
				EndLine:      int(decl.EndPoint().Row) + 1,
				Body:         decl.Content(code),
			})
		}
	}
	return methods, nil
}
