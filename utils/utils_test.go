package utils

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIgnorePatterns(t *testing.T) {
	root := t.TempDir()

	patterns, err := GetIgnorePatterns(root)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	content := "# generated code\nlegacy/\n**/*Generated.java\n\n[bad\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte(content), 0o644))

	patterns, err = GetIgnorePatterns(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy/", "**/*Generated.java"}, patterns)
}

func TestIsIgnored(t *testing.T) {
	patterns := []string{"legacy/", "**/*Generated.java", "Scratch.java"}

	assert.True(t, IsIgnored("legacy", patterns))
	assert.True(t, IsIgnored("legacy/Old.java", patterns))
	assert.True(t, IsIgnored("src/app/ModelGenerated.java", patterns))
	assert.True(t, IsIgnored("src/app/Scratch.java", patterns))
	assert.False(t, IsIgnored("src/legacy2/Old.java", patterns))
	assert.False(t, IsIgnored("src/app/Main.java", patterns))
}

func TestIsDefaultIgnored(t *testing.T) {
	assert.True(t, IsDefaultIgnored("target/classes/app/Main.java"))
	assert.True(t, IsDefaultIgnored("src/.idea/workspace.xml"))
	assert.True(t, IsDefaultIgnored("Build/Gen.java"))
	assert.False(t, IsDefaultIgnored("src/app/Main.java"))
	assert.False(t, IsDefaultIgnored("src/targets/Main.java"))
}

func TestCommandExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("captures output and stdin", func(t *testing.T) {
		executor := NewCommandExecutor(dir, 5*time.Second, nil)
		result, err := executor.ExecuteCommand(ctx, "hello\n", "sh", "-c", "cat; echo oops >&2")
		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello\n", result.Stdout)
		assert.Equal(t, "oops\n", result.Stderr)
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		executor := NewCommandExecutor(dir, 5*time.Second, nil)
		result, err := executor.ExecuteCommand(ctx, "", "sh", "-c", "exit 3")
		require.NoError(t, err)
		assert.Equal(t, 3, result.ExitCode)
	})

	t.Run("timeout", func(t *testing.T) {
		executor := NewCommandExecutor(dir, 50*time.Millisecond, nil)
		result, err := executor.ExecuteCommand(ctx, "", "sh", "-c", "exec sleep 5")
		require.Error(t, err)
		require.NotNil(t, result)
		assert.True(t, result.TimedOut)
		assert.Equal(t, -1, result.ExitCode)
	})

	t.Run("missing binary", func(t *testing.T) {
		executor := NewCommandExecutor(dir, time.Second, nil)
		_, err := executor.ExecuteCommand(ctx, "", "codgrade-no-such-binary")
		assert.Error(t, err)

		_, err = executor.ExecuteCommand(ctx, "", "")
		assert.Error(t, err)
	})
}

func TestRenderMarkdown(t *testing.T) {
	content := "## Diagnostic\nOutput differs\n```java\n[-3-] {+4+}\nint x = 1;\n```\ndone"

	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(context.Background(), &buf, content, "java", "dracula"))

	out := buf.String()
	assert.Contains(t, out, "## Diagnostic\n")
	assert.Contains(t, out, "\x1b[91m[-3-]\x1b[0m")
	assert.Contains(t, out, "\x1b[92m{+4+}\x1b[0m")
	assert.Contains(t, out, "done\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, RenderMarkdown(ctx, &buf, content, "java", "dracula"), context.Canceled)
}
