package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SelectionRequest is the compact summary sent to a selection service.
type SelectionRequest struct {
	Synopsis    string `json:"synopsis"`
	PriorOutput string `json:"prior_output"`
}

// Selection names one method to include as context.
type Selection struct {
	Class  string `json:"class"`
	Method string `json:"method"`
}

// AIError is the error envelope returned by chat-completion APIs.
type AIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

var selectionArray = regexp.MustCompile(`(?s)\[.*\]`)

// ParseSelections extracts the JSON array of selections from a model reply,
// tolerating prose or code fences around it. Entries without both names are dropped.
func ParseSelections(reply string) ([]Selection, error) {
	match := selectionArray.FindString(reply)
	if match == "" {
		return nil, fmt.Errorf("no selection array found in reply")
	}

	var raw []Selection
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selections: %w", err)
	}

	selections := make([]Selection, 0, len(raw))
	for _, s := range raw {
		s.Class = strings.TrimSpace(s.Class)
		s.Method = strings.TrimSpace(strings.TrimSuffix(s.Method, "()"))
		if s.Class == "" || s.Method == "" {
			continue
		}
		selections = append(selections, s)
	}
	return selections, nil
}

// UserContent renders the request as the user message of a chat call.
func (r SelectionRequest) UserContent() string {
	return fmt.Sprintf("## Diagnostic synopsis\n%s\n\n## Grader output so far\n%s\n", r.Synopsis, r.PriorOutput)
}
