package models

// DiagnosticCategory separates documentation-lint findings from ordinary compiler errors.
type DiagnosticCategory string

const (
	CategoryDocLint DiagnosticCategory = "doclint"
	CategoryCompile DiagnosticCategory = "compile"
	CategoryWarning DiagnosticCategory = "warning"
)

// Diagnostic is one compiler finding.
type Diagnostic struct {
	File     string
	Line     int
	Category DiagnosticCategory
	Message  string
}

// CompileRequest asks for the given sources to be compiled.
type CompileRequest struct {
	// Roots are searched for every source needed on the source path.
	Roots []string
	// Files are the sources to compile, relative to the first root or absolute.
	Files   []string
	DocLint bool
}

// CompileOutcome is the structured result of a compiler run.
type CompileOutcome struct {
	Success     bool
	Diagnostics []Diagnostic
	Raw         string
}

// Count returns the number of diagnostics of a category.
func (c CompileOutcome) Count(category DiagnosticCategory) int {
	n := 0
	for _, d := range c.Diagnostics {
		if d.Category == category {
			n++
		}
	}
	return n
}

// Of returns the diagnostics of a category in report order.
func (c CompileOutcome) Of(category DiagnosticCategory) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.Diagnostics {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// RunRequest runs an entry point class with optional standard input.
type RunRequest struct {
	Roots []string
	Entry string
	Stdin string
	Args  []string
}

// RunOutcome is the captured result of running a program.
type RunOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// TestRequest runs one test class, optionally restricted to named methods.
type TestRequest struct {
	Roots   []string
	Target  string
	Methods []string
}

// TestCase is the result of one test method.
type TestCase struct {
	Name    string
	Passed  bool
	Message string
	Trace   string
}

// TestOutcome is the result of running one test class.
type TestOutcome struct {
	Target string
	Found  int
	Passed int
	Cases  []TestCase
	Raw    string
}

// Failed returns the failing cases in report order.
func (t TestOutcome) Failed() []TestCase {
	var out []TestCase
	for _, c := range t.Cases {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// AllPassed reports whether at least one test ran and none failed.
func (t TestOutcome) AllPassed() bool {
	return t.Found > 0 && t.Passed == t.Found
}

// MutantStatus is the verdict a mutation tool gives a mutant.
type MutantStatus string

const (
	MutantKilled     MutantStatus = "KILLED"
	MutantSurvived   MutantStatus = "SURVIVED"
	MutantNoCoverage MutantStatus = "NO_COVERAGE"
	MutantTimedOut   MutantStatus = "TIMED_OUT"
)

// Mutant is one row of a mutation report.
type Mutant struct {
	File    string
	Class   string
	Mutator string
	Method  string
	Line    int
	Status  MutantStatus
}

// MutationRequest asks for mutation analysis of target classes against target tests.
type MutationRequest struct {
	Roots         []string
	TargetClasses []string
	TargetTests   []string
}

// MutationReport is the parsed output of a mutation run.
type MutationReport struct {
	Mutants []Mutant
}

// Survived returns the mutants no test detected.
func (r MutationReport) Survived() []Mutant {
	var out []Mutant
	for _, m := range r.Mutants {
		if m.Status == MutantSurvived {
			out = append(out, m)
		}
	}
	return out
}
