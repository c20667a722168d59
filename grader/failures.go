package grader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/meysamhadeli/codgrade/retrieval"
)

var (
	stackFrame = regexp.MustCompile(`^\s*at\s+([\w$.<>/]+)\(([\w$]+\.java):(\d+)\)`)

	frameworkPrefixes = []string{
		"org.junit.", "junit.", "org.opentest4j.", "org.apiguardian.",
		"java.base/", "java.", "javax.", "jdk.", "sun.", "org.pitest.",
	}
)

// cleanFailure keeps the failure message and the frames that point into the
// submission, and returns references to those frames for context retrieval.
func cleanFailure(message, trace string, project *code_analyzer.Project) (string, []retrieval.LineRef) {
	var (
		kept []string
		refs []retrieval.LineRef
		seen = make(map[retrieval.LineRef]bool)
	)

	for _, line := range strings.Split(strings.ReplaceAll(trace, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		match := stackFrame.FindStringSubmatch(line)
		if match == nil {
			if strings.HasPrefix(trimmed, "at ") || strings.HasPrefix(trimmed, "...") {
				continue
			}
			if trimmed != strings.TrimSpace(message) {
				kept = append(kept, trimmed)
			}
			continue
		}
		if isFrameworkFrame(match[1]) {
			continue
		}

		kept = append(kept, "  "+trimmed)
		lineNo, _ := strconv.Atoi(match[3])
		ref := retrieval.LineRef{File: match[2], Line: lineNo}
		if project != nil {
			file, err := project.Identify(match[2])
			if err != nil {
				continue
			}
			ref.File = file.Path()
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	var sb strings.Builder
	if msg := strings.TrimSpace(message); msg != "" {
		sb.WriteString(msg)
	}
	for _, line := range kept {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
	}
	return sb.String(), refs
}

func isFrameworkFrame(frame string) bool {
	for _, prefix := range frameworkPrefixes {
		if strings.HasPrefix(frame, prefix) {
			return true
		}
	}
	return false
}
