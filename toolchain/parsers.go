package toolchain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/meysamhadeli/codgrade/grader/models"
)

var (
	// javac prints "<file>:<line>: <severity>: <message>" followed by the source line and a caret.
	javacDiagnostic = regexp.MustCompile(`^(.+\.java):(\d+): (error|warning): (.*)$`)

	doclintPhrases = []string{
		"no comment", "no @param", "no @return", "no @throws", "no main description",
		"unknown tag", "malformed html", "bad use of", "reference not found",
		"self-closing element", "unexpected end tag", "exception not thrown",
		"empty <", "bad html entity", "invalid use of", "no summary", "unexpected text",
		"@param name not found", "element not closed", "unknown entity",
	}

	junitCount   = regexp.MustCompile(`^\[\s*(\d+) (tests|containers) (found|successful|failed|aborted|skipped|started)\s*\]$`)
	junitFailure = regexp.MustCompile(`^JUnit (?:Jupiter|Vintage)[^:]*:([^:]+):(.+?)\(.*\)$`)
	junitFrame   = regexp.MustCompile(`^([\w$.<>/]+)\(([\w$]+\.java):(\d+)\)$`)
)

// ParseJavacDiagnostics parses javac output. Paths are made relative to root when possible.
// With doclint enabled, findings whose message matches a documentation-lint phrase are
// categorized as doclint; other errors are compile errors and other warnings are warnings.
func ParseJavacDiagnostics(output, root string, doclint bool) []models.Diagnostic {
	var diagnostics []models.Diagnostic
	for _, line := range strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n") {
		match := javacDiagnostic.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(match[2])
		d := models.Diagnostic{
			File:    relativeTo(root, match[1]),
			Line:    lineNo,
			Message: match[4],
		}
		switch {
		case doclint && isDocLint(match[4]):
			d.Category = models.CategoryDocLint
		case match[3] == "error":
			d.Category = models.CategoryCompile
		default:
			d.Category = models.CategoryWarning
		}
		diagnostics = append(diagnostics, d)
	}
	return diagnostics
}

func isDocLint(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range doclintPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func relativeTo(root, path string) string {
	if root == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// ParseJUnitSummary parses the output of the JUnit platform console launcher
// run with --details=tree. Failure traces are rewritten as "at frame" lines.
func ParseJUnitSummary(output string) (models.TestOutcome, error) {
	var (
		outcome   models.TestOutcome
		sawCounts bool
		failed    int
		current   *models.TestCase
		inFailure bool
		trace     strings.Builder
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Trace = strings.TrimRight(trace.String(), "\n")
		outcome.Cases = append(outcome.Cases, *current)
		current = nil
		trace.Reset()
	}

	for _, raw := range strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)

		if m := junitCount.FindStringSubmatch(line); m != nil {
			flush()
			inFailure = false
			if m[2] != "tests" {
				continue
			}
			n, _ := strconv.Atoi(m[1])
			switch m[3] {
			case "found":
				outcome.Found = n
				sawCounts = true
			case "successful":
				outcome.Passed = n
			case "failed", "aborted":
				failed += n
			}
			continue
		}

		if strings.HasPrefix(line, "Failures (") {
			inFailure = true
			continue
		}
		if strings.HasPrefix(line, "Test run finished") {
			flush()
			inFailure = false
			continue
		}
		if !inFailure || line == "" {
			continue
		}

		if m := junitFailure.FindStringSubmatch(line); m != nil {
			flush()
			current = &models.TestCase{Name: m[1] + "#" + strings.TrimSpace(m[2])}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "=>"):
			message := strings.TrimSpace(strings.TrimPrefix(line, "=>"))
			if current.Message == "" {
				current.Message = exceptionMessage(message)
			}
			trace.WriteString(message + "\n")
		case junitFrame.MatchString(line):
			trace.WriteString("\tat " + line + "\n")
		case strings.HasPrefix(line, "MethodSource") || strings.HasPrefix(line, "ClassSource"):
		default:
			trace.WriteString(line + "\n")
		}
	}
	flush()

	if !sawCounts {
		return outcome, errors.New("no test summary found in launcher output")
	}
	if outcome.Passed+failed > outcome.Found {
		outcome.Found = outcome.Passed + failed
	}
	outcome.Raw = output
	return outcome, nil
}

// exceptionMessage drops the exception class from "pkg.SomeException: message".
func exceptionMessage(line string) string {
	if i := strings.Index(line, ": "); i > 0 && !strings.Contains(line[:i], " ") {
		return line[i+2:]
	}
	return line
}

// ParsePitCSV parses a PIT mutations.csv report. Columns are file, class, mutator,
// method, line, status and killing test; there is no header row.
func ParsePitCSV(r io.Reader) (models.MutationReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var report models.MutationReport
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("failed to read mutation report: %w", err)
		}
		if len(record) < 6 {
			return report, fmt.Errorf("mutation report row has %d columns, want at least 6", len(record))
		}
		lineNo, err := strconv.Atoi(strings.TrimSpace(record[4]))
		if err != nil {
			return report, fmt.Errorf("mutation report line number %q: %w", record[4], err)
		}
		report.Mutants = append(report.Mutants, models.Mutant{
			File:    strings.TrimSpace(record[0]),
			Class:   strings.TrimSpace(record[1]),
			Mutator: shortMutator(strings.TrimSpace(record[2])),
			Method:  strings.TrimSpace(record[3]),
			Line:    lineNo,
			Status:  models.MutantStatus(strings.ToUpper(strings.TrimSpace(record[5]))),
		})
	}
	return report, nil
}

func shortMutator(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
