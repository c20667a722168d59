package code_analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meysamhadeli/codgrade/code_analyzer/models"
	"github.com/meysamhadeli/codgrade/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtures = map[string]string{
	"src/app/Shape.java": `package app;

public interface Shape {
    double area();
}
`,
	"src/app/Circle.java": `package app;

public class Circle implements Shape {
    private final double r;

    public Circle(double r) {
        this.r = r;
    }

    public double area() {
        return Math.PI * r * r;
    }
}
`,
	"src/app/Main.java": `package app;

public class Main {
    public static void main(String[] args) {
        System.out.println(new Circle(2).area());
    }
}
`,
	"test/app/CircleTest.java": `package app;

import org.junit.jupiter.api.Test;
import static org.junit.jupiter.api.Assertions.assertEquals;

class CircleTest {
    @Test
    void unitCircle() {
        assertEquals(Math.PI, new Circle(1).area(), 1e-9);
    }

    @Test
    void zero() {
        assertEquals(0, new Circle(0).area(), 1e-9);
    }

    void helper() {}
}
`,
	"src/app/Broken.java": `package app;

public class Broken {
    void oops( {
    }
}
`,
	"target/classes/Generated.java": `class Generated {}`,
	"notes/Skip.java":               `class Skip {}`,
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestDiscover_ClassifiesFiles(t *testing.T) {
	root := writeProject(t, fixtures)

	project, err := Discover(context.Background(), root, WithIgnorePatterns("notes/"))
	require.NoError(t, err)

	var paths []string
	for _, f := range project.Files() {
		paths = append(paths, f.Path())
	}
	assert.Equal(t, []string{
		"src/app/Broken.java",
		"src/app/Circle.java",
		"src/app/Main.java",
		"src/app/Shape.java",
		"test/app/CircleTest.java",
	}, paths)

	kinds := map[string]models.FileKind{}
	for _, f := range project.Files() {
		kinds[f.ClassName()] = f.Kind()
	}
	assert.Equal(t, models.KindInterface, kinds["Shape"])
	assert.Equal(t, models.KindClass, kinds["Circle"])
	assert.Equal(t, models.KindClassWithMain, kinds["Main"])
	assert.Equal(t, models.KindTest, kinds["CircleTest"])
	assert.Equal(t, models.KindUnknown, kinds["Broken"])

	info := project.Info()
	assert.Equal(t, []string{"app"}, info.Packages)
	assert.Equal(t, 1, info.Counts[models.KindTest])
	assert.Equal(t, "java", project.Language())
	assert.Len(t, project.FilesOfKind(models.KindClass), 1)
}

func TestDiscover_Idempotent(t *testing.T) {
	root := writeProject(t, fixtures)
	ctx := context.Background()

	first, err := Discover(ctx, root, WithIgnorePatterns("notes/"))
	require.NoError(t, err)
	second, err := Discover(ctx, root, WithIgnorePatterns("notes/"))
	require.NoError(t, err)

	require.Len(t, second.Files(), len(first.Files()))
	for i, a := range first.Files() {
		b := second.Files()[i]
		require.Equal(t, a.Path(), b.Path())
		assert.Equal(t, a.Kind(), b.Kind(), a.Path())
		assert.Equal(t, a.ClassName(), b.ClassName(), a.Path())
		assert.Equal(t, a.Info().Fingerprint, b.Info().Fingerprint, a.Path())

		treeA, _, errA := a.Tree(ctx)
		treeB, _, errB := b.Tree(ctx)
		assert.Equal(t, errA == nil, errB == nil, a.Path())
		if errA == nil && errB == nil {
			assert.Equal(t, treeA.RootNode().String(), treeB.RootNode().String(), a.Path())
		}
	}
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(context.Background(), filepath.Join(t.TempDir(), "missing"))
	var discoveryErr *DiscoveryError
	require.ErrorAs(t, err, &discoveryErr)

	empty := writeProject(t, map[string]string{"README.md": "# nothing"})
	_, err = Discover(context.Background(), empty)
	require.ErrorAs(t, err, &discoveryErr)
	assert.True(t, errors.Is(err, ErrNoSources))

	file := filepath.Join(empty, "README.md")
	_, err = Discover(context.Background(), file)
	assert.ErrorAs(t, err, &discoveryErr)
}

func TestDiscover_IgnoreFile(t *testing.T) {
	files := map[string]string{
		"src/Main.java":         fixtures["src/app/Main.java"],
		"legacy/Old.java":       `class Old {}`,
		utils.IgnoreFileName:   "legacy/**\n",
	}
	project, err := Discover(context.Background(), writeProject(t, files))
	require.NoError(t, err)
	require.Len(t, project.Files(), 1)
	assert.Equal(t, "src/Main.java", project.Files()[0].Path())
}

func TestIdentify(t *testing.T) {
	project, err := Discover(context.Background(), writeProject(t, fixtures))
	require.NoError(t, err)

	for _, name := range []string{"src/app/Circle.java", "Circle.java", "Circle", "app.Circle"} {
		f, err := project.Identify(name)
		require.NoError(t, err, name)
		assert.Equal(t, "src/app/Circle.java", f.Path())
		assert.Equal(t, "app.Circle", f.Info().QualifiedName())
	}

	_, err = project.Identify("Square")
	assert.True(t, IsNoSuchFile(err))
	_, err = project.Identify("  ")
	assert.True(t, IsNoSuchFile(err))
}

func TestTestMethodsAndMethods(t *testing.T) {
	project, err := Discover(context.Background(), writeProject(t, fixtures))
	require.NoError(t, err)
	ctx := context.Background()

	test, err := project.Identify("CircleTest")
	require.NoError(t, err)
	names, err := project.TestMethods(ctx, test)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app.CircleTest#unitCircle", "app.CircleTest#zero"}, names)

	circle, err := project.Identify("Circle")
	require.NoError(t, err)
	methods, err := circle.Methods(ctx)
	require.NoError(t, err)

	byName := map[string]models.MethodDecl{}
	for _, m := range methods {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "area")
	require.Contains(t, byName, "Circle")
	assert.Equal(t, "Circle#area", byName["area"].Key())
	assert.Equal(t, 10, byName["area"].StartLine)
	assert.Equal(t, 12, byName["area"].EndLine)
	assert.True(t, byName["area"].Contains(11))
	assert.False(t, byName["area"].Contains(13))

	// Broken.java does not parse and is left out of the index.
	for _, m := range project.Methods(ctx) {
		assert.NotEqual(t, "src/app/Broken.java", m.RelativePath)
	}
}

func TestParseError_Location(t *testing.T) {
	project, err := Discover(context.Background(), writeProject(t, fixtures))
	require.NoError(t, err)

	broken, err := project.Identify("Broken")
	require.NoError(t, err)

	_, _, err = broken.Tree(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "src/app/Broken.java", parseErr.File)
	assert.Equal(t, 4, parseErr.Line)
	assert.Contains(t, parseErr.Error(), "syntax error at line 4")
}

func TestTreeCache_ReparsesOnlyWhenSourceChanges(t *testing.T) {
	project, err := Discover(context.Background(), writeProject(t, map[string]string{
		"Main.java": fixtures["src/app/Main.java"],
	}))
	require.NoError(t, err)
	ctx := context.Background()
	file := project.Files()[0]

	first, _, err := file.Tree(ctx)
	require.NoError(t, err)
	second, _, err := file.Tree(ctx)
	require.NoError(t, err)
	// Each caller walks its own copy of one parse.
	assert.NotSame(t, first, second)
	assert.Equal(t, first.RootNode().String(), second.RootNode().String())

	before := file.Info().Fingerprint
	file.SetCode("class Main { void f( }")
	assert.NotEqual(t, before, file.Info().Fingerprint)
	assert.Equal(t, Fingerprint([]byte("class Main { void f( }")), file.Info().Fingerprint)

	_, code, err := file.Tree(ctx)
	assert.True(t, IsParseError(err))
	assert.Equal(t, "class Main { void f( }", string(code))
	// Classification is fixed at discovery.
	assert.Equal(t, models.KindClassWithMain, file.Kind())

	stats := project.CacheStats()
	assert.Equal(t, int64(2), stats.Parses)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Invalidations)
	assert.InDelta(t, float64(stats.Hits)/float64(stats.Requests), stats.HitRate(), 1e-9)

	project.ResetCacheStats()
	assert.Equal(t, CacheSnapshot{Since: project.CacheStats().Since}, project.CacheStats())
	assert.Zero(t, CacheSnapshot{}.HitRate())
}
