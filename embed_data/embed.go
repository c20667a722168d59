package embed_data

import _ "embed"

//go:embed tree-sitter/queries/java.json
var JavaQuery []byte

//go:embed prompts/feedback_system_prompt.md
var FeedbackSystemPrompt []byte

//go:embed prompts/selection_system_prompt.md
var SelectionSystemPrompt []byte
