package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/meysamhadeli/codgrade/grader"
	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/query_engine"
	"gopkg.in/yaml.v3"
)

// Plan is a declarative list of requirements, read from YAML:
//
//	requirements:
//	  - kind: query
//	    requirement: Uses a loop
//	    out_of: 5
//	    reason: The program should iterate with a for loop.
//	    file: Main
//	    stages:
//	      - named: for_loop
//	    constraint: at_least_once
//	  - kind: unit_test
//	    requirement: Tests pass
//	    out_of: 10
//	    test_files: [CalcTest]
type Plan struct {
	Requirements []yaml.Node `yaml:"requirements"`
}

type planKind struct {
	Kind string `yaml:"kind"`
}

// queryPlan is the YAML form of a structural-query requirement.
type queryPlan struct {
	grader.Common `yaml:",inline"`
	Reason        string      `yaml:"reason"`
	File          string      `yaml:"file"`
	Stages        []stagePlan `yaml:"stages"`
	Constraint    string      `yaml:"constraint"`
	N             int         `yaml:"n"`
}

// stagePlan is one refinement step. Exactly one of Named, Pattern, Method,
// MethodBody or Class selects the pattern.
type stagePlan struct {
	Named      string `yaml:"named"`
	Pattern    string `yaml:"pattern"`
	Method     string `yaml:"method"`
	MethodBody string `yaml:"method_body"`
	Class      string `yaml:"class"`
	Capture    string `yaml:"capture"`
	// Contains keeps only matches whose text contains the value.
	Contains string `yaml:"contains"`
}

// LoadPlan reads and decodes a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if len(plan.Requirements) == 0 {
		return nil, fmt.Errorf("plan %s has no requirements", path)
	}
	return &plan, nil
}

// Graders builds one grader per requirement, in plan order. The first invalid
// requirement stops the build.
func (p *Plan) Graders() ([]grader.Grader, error) {
	graders := make([]grader.Grader, 0, len(p.Requirements))
	for i := range p.Requirements {
		g, err := buildGrader(&p.Requirements[i])
		if err != nil {
			return nil, fmt.Errorf("requirement %d: %w", i+1, err)
		}
		graders = append(graders, g)
	}
	return graders, nil
}

func buildGrader(node *yaml.Node) (grader.Grader, error) {
	var kind planKind
	if err := node.Decode(&kind); err != nil {
		return nil, err
	}

	switch name := strings.ToLower(kind.Kind); name {
	case "docs":
		cfg, err := decodeStrict[grader.DocsConfig](node, name)
		if err != nil {
			return nil, err
		}
		return grader.NewDocsGrader(cfg)
	case "unit_test":
		cfg, err := decodeStrict[grader.UnitTestConfig](node, name)
		if err != nil {
			return nil, err
		}
		return grader.NewUnitTestGrader(cfg)
	case "diff":
		cfg, err := decodeStrict[grader.DiffConfig](node, name)
		if err != nil {
			return nil, err
		}
		return grader.NewDiffGrader(cfg)
	case "mutation":
		cfg, err := decodeStrict[grader.MutationConfig](node, name)
		if err != nil {
			return nil, err
		}
		return grader.NewMutationGrader(cfg)
	case "hidden_test":
		cfg, err := decodeStrict[grader.HiddenTestConfig](node, name)
		if err != nil {
			return nil, err
		}
		return grader.NewHiddenTestGrader(cfg)
	case "query":
		qp, err := decodeStrict[queryPlan](node, name)
		if err != nil {
			return nil, err
		}
		query, err := qp.build()
		if err != nil {
			return nil, err
		}
		return grader.NewQueryGrader(grader.QueryConfig{Common: qp.Common, Query: query, Reason: qp.Reason})
	case "":
		return nil, fmt.Errorf("missing kind")
	default:
		return nil, fmt.Errorf("unknown kind %q", kind.Kind)
	}
}

// decodeStrict decodes a requirement into its grader's configuration. A key
// the configuration does not declare is a ConfigError: a misspelt parameter
// must not silently grade with its default.
func decodeStrict[T any](node *yaml.Node, kind string) (T, error) {
	var cfg T

	body := *node
	if body.Kind == yaml.MappingNode {
		body.Content = nil
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "kind" {
				continue
			}
			body.Content = append(body.Content, node.Content[i], node.Content[i+1])
		}
	}

	data, err := yaml.Marshal(&body)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, &models.ConfigError{Grader: kind, Err: err}
	}
	return cfg, nil
}

func (qp queryPlan) build() (query_engine.Query, error) {
	constraint, err := parseConstraint(qp.Constraint, qp.N)
	if err != nil {
		return query_engine.Query{}, err
	}
	q := query_engine.New().Source(qp.File).Constraint(constraint)
	for _, stage := range qp.Stages {
		q, err = stage.apply(q)
		if err != nil {
			return query_engine.Query{}, err
		}
	}
	return q, nil
}

func (s stagePlan) apply(q query_engine.Query) (query_engine.Query, error) {
	switch {
	case s.Named != "":
		q = q.Named(s.Named)
	case s.Pattern != "":
		q = q.Query(s.Pattern)
	case s.Method != "":
		q = q.MethodWithName(s.Method)
	case s.MethodBody != "":
		q = q.MethodBodyWithName(s.MethodBody)
	case s.Class != "":
		q = q.ClassWithName(s.Class)
	default:
		return q, fmt.Errorf("stage needs one of named, pattern, method, method_body or class")
	}
	if s.Capture != "" {
		q = q.Capture(s.Capture)
	}
	if s.Contains != "" {
		needle := s.Contains
		q = q.Filter(query_engine.PredicateFunc(func(text string, _ query_engine.Location) bool {
			return strings.Contains(text, needle)
		}))
	}
	return q, nil
}

func parseConstraint(name string, n int) (query_engine.Constraint, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "at_least_once":
		return query_engine.AtLeastOnce(), nil
	case "never":
		return query_engine.Never(), nil
	case "exactly":
		return query_engine.ExactlyN(n), nil
	default:
		return query_engine.Constraint{}, fmt.Errorf("unknown constraint %q", name)
	}
}
