package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFileName holds project-specific discovery exclusions, one doublestar pattern per line.
const IgnoreFileName = ".codgradeignore"

// GetIgnorePatterns reads the patterns from the project's ignore file.
// If the file does not exist, it returns an empty pattern list.
func GetIgnorePatterns(root string) ([]string, error) {
	ignorePath := filepath.Join(root, IgnoreFileName)

	_, err := os.Stat(ignorePath)
	if os.IsNotExist(err) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("error checking %s: %w", IgnoreFileName, err)
	}

	patterns, err := readIgnoreFile(ignorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	var validPatterns []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			continue
		}
		validPatterns = append(validPatterns, pattern)
	}
	return validPatterns, nil
}

// defaultIgnoredDirs are build outputs and tool state that never hold gradable sources.
var defaultIgnoredDirs = []string{
	".git",
	".svn",
	".idea",
	".vscode",
	".gradle",
	".mvn",
	".cache",
	"bin",
	"obj",
	"out",
	"build",
	"target",
	"node_modules",
}

// IsDefaultIgnored reports whether any segment of the slash-separated path is a default-ignored directory.
func IsDefaultIgnored(path string) bool {
	for _, part := range strings.Split(path, "/") {
		part = strings.ToLower(part)
		for _, ignored := range defaultIgnoredDirs {
			if part == ignored {
				return true
			}
		}
	}
	return false
}

// IsIgnored checks a slash-separated relative path against doublestar patterns.
// A pattern ending in "/" ignores the whole directory.
func IsIgnored(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			dir := strings.TrimSuffix(pattern, "/")
			if path == dir || strings.HasPrefix(path, dir+"/") {
				return true
			}
			continue
		}
		if match, _ := doublestar.Match(pattern, path); match {
			return true
		}
		if match, _ := doublestar.Match(pattern, filepath.Base(path)); match && !strings.Contains(pattern, "/") {
			return true
		}
	}
	return false
}

func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, nil
}
