package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

// RenderMarkdown writes markdown content to w, highlighting fenced code blocks with
// the given language and chroma theme. Inside a block, word-diff markers are coloured.
func RenderMarkdown(ctx context.Context, w io.Writer, content string, language string, theme string) error {
	isCodeBlock := false

	for i, line := range strings.Split(content, "\n") {
		if i%5 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if strings.HasPrefix(line, "```") {
			isCodeBlock = !isCodeBlock
			fmt.Fprintln(w, line)
			continue
		}

		if !isCodeBlock {
			fmt.Fprintln(w, line)
			continue
		}

		if strings.Contains(line, "{+") || strings.Contains(line, "[-") {
			line = strings.NewReplacer(
				"{+", "\x1b[92m{+", "+}", "+}\x1b[0m",
				"[-", "\x1b[91m[-", "-]", "-]\x1b[0m",
			).Replace(line)
			fmt.Fprintln(w, line)
			continue
		}

		var buf bytes.Buffer
		if err := quick.Highlight(&buf, line+"\n", language, "terminal256", theme); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}

	return nil
}
