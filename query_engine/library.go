package query_engine

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/meysamhadeli/codgrade/code_analyzer"
)

// Lookup returns a pattern from the built-in Java library.
func Lookup(name string) (code_analyzer.NamedQuery, error) {
	library, err := code_analyzer.JavaQueries()
	if err != nil {
		return code_analyzer.NamedQuery{}, err
	}
	named, ok := library[name]
	if !ok {
		return code_analyzer.NamedQuery{}, fmt.Errorf("unknown named query %q", name)
	}
	return named, nil
}

// Names lists the built-in pattern names in sorted order.
func Names() []string {
	library, err := code_analyzer.JavaQueries()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodWithName matches a method declaration by name; captures @method.
func (q Query) MethodWithName(name string) Query {
	pattern := fmt.Sprintf(`(method_declaration name: (identifier) @name (#eq? @name %s)) @method`, strconv.Quote(name))
	return q.Query(pattern).Capture("method")
}

// MethodBodyWithName matches the body block of a named method; captures @body.
func (q Query) MethodBodyWithName(name string) Query {
	pattern := fmt.Sprintf(`(method_declaration name: (identifier) @name (#eq? @name %s) body: (block) @body)`, strconv.Quote(name))
	return q.Query(pattern).Capture("body")
}

// ClassWithName matches a class declaration by name; captures @class.
func (q Query) ClassWithName(name string) Query {
	pattern := fmt.Sprintf(`(class_declaration name: (identifier) @name (#eq? @name %s)) @class`, strconv.Quote(name))
	return q.Query(pattern).Capture("class")
}
