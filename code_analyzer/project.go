package code_analyzer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/meysamhadeli/codgrade/code_analyzer/models"
	"github.com/meysamhadeli/codgrade/utils"
	sitter "github.com/smacker/go-tree-sitter"
)

// maxSourceSize skips generated or vendored blobs that are not student code.
const maxSourceSize = 512 * 1024

// File is one discovered source file. Its classification is fixed at discovery;
// only the source text (and with it the cached tree) can be replaced.
type File struct {
	info  models.FileInfo
	abs   string
	cache *treeCache
}

// Info returns the discovery-time summary of the file.
func (f *File) Info() models.FileInfo {
	info := f.info
	_, info.Fingerprint = f.cache.source()
	return info
}

// Path returns the file path relative to the project root, slash separated.
func (f *File) Path() string { return f.info.RelativePath }

// AbsPath returns the absolute on-disk path.
func (f *File) AbsPath() string { return f.abs }

// Kind returns the file's classification.
func (f *File) Kind() models.FileKind { return f.info.Kind }

// ClassName returns the top-level type name of the file.
func (f *File) ClassName() string { return f.info.ClassName }

// Code returns the current source text.
func (f *File) Code() string {
	code, _ := f.cache.source()
	return string(code)
}

// SetCode replaces the source text in memory and invalidates the cached tree.
// The classification is left untouched.
func (f *File) SetCode(code string) {
	f.cache.set([]byte(code))
}

// Tree returns the syntax tree for the current source along with the exact bytes it
// was parsed from. A *ParseError is returned when the grammar reports errors.
func (f *File) Tree(ctx context.Context) (*sitter.Tree, []byte, error) {
	return f.cache.get(ctx, f.info.RelativePath)
}

// Methods lists the methods and constructors declared in the file.
func (f *File) Methods(ctx context.Context) ([]models.MethodDecl, error) {
	tree, code, err := f.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return extractMethods(tree.RootNode(), code, f.info.RelativePath)
}

// Project is a discovered set of classified source files under one root.
type Project struct {
	root     string
	language string
	files    []*File
	stats    *CacheStats
	logger   *slog.Logger
}

// Option configures discovery.
type Option func(*discoverOptions)

type discoverOptions struct {
	logger         *slog.Logger
	ignorePatterns []string
}

// WithLogger sets the logger used by the project.
func WithLogger(logger *slog.Logger) Option {
	return func(o *discoverOptions) { o.logger = logger }
}

// WithIgnorePatterns adds doublestar patterns excluded from discovery.
func WithIgnorePatterns(patterns ...string) Option {
	return func(o *discoverOptions) { o.ignorePatterns = append(o.ignorePatterns, patterns...) }
}

// Discover walks root, reads and classifies every Java source file.
// Files that fail to parse are kept with KindUnknown; discovery only fails
// when the root is unusable or holds no source files at all.
func Discover(ctx context.Context, root string, opts ...Option) (*Project, error) {
	options := discoverOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Root: root, Err: fmt.Errorf("%s is not a directory", absRoot)}
	}

	ignorePatterns, err := utils.GetIgnorePatterns(absRoot)
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	ignorePatterns = append(ignorePatterns, options.ignorePatterns...)

	project := &Project{
		root:     absRoot,
		language: "java",
		stats:    newCacheStats(),
		logger:   options.logger,
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		relativePath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		relativePath = filepath.ToSlash(relativePath)
		if relativePath == "." {
			return nil
		}

		if utils.IsDefaultIgnored(relativePath) || utils.IsIgnored(relativePath, ignorePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(relativePath, ".java") {
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %s, error: %w", relativePath, err)
		}
		if fileInfo.Size() > maxSourceSize {
			project.logger.Warn("skipping oversized source file", "file", relativePath, "size", fileInfo.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file: %s, error: %w", relativePath, err)
		}

		project.files = append(project.files, project.newFile(ctx, path, relativePath, content))
		return nil
	})
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}

	if len(project.files) == 0 {
		return nil, &DiscoveryError{Root: root, Err: ErrNoSources}
	}

	sort.Slice(project.files, func(i, j int) bool {
		return project.files[i].info.RelativePath < project.files[j].info.RelativePath
	})

	project.logger.Debug("project discovered", "root", absRoot, "files", len(project.files))
	return project, nil
}

func (p *Project) newFile(ctx context.Context, abs, relativePath string, content []byte) *File {
	file := &File{
		abs:   abs,
		cache: newTreeCache(content, p.stats),
		info:  models.FileInfo{RelativePath: relativePath},
	}

	tree, code, err := file.Tree(ctx)
	if err != nil {
		p.logger.Warn("source file failed to parse; classification is unknown", "file", relativePath, "error", err)
		file.info.Kind = models.KindUnknown
		file.info.ClassName = strings.TrimSuffix(filepath.Base(relativePath), ".java")
		return file
	}

	kind, className, pkg, err := classify(tree.RootNode(), code, relativePath)
	if err != nil {
		p.logger.Warn("failed to classify source file", "file", relativePath, "error", err)
	}
	file.info.Kind = kind
	file.info.ClassName = className
	file.info.Package = pkg
	return file
}

// Root returns the absolute project root.
func (p *Project) Root() string { return p.root }

// Language returns the discovered source language.
func (p *Project) Language() string { return p.language }

// Files returns the discovered files in path order.
func (p *Project) Files() []*File {
	files := make([]*File, len(p.files))
	copy(files, p.files)
	return files
}

// FilesOfKind returns the files with the given classification.
func (p *Project) FilesOfKind(kind models.FileKind) []*File {
	var files []*File
	for _, f := range p.files {
		if f.info.Kind == kind {
			files = append(files, f)
		}
	}
	return files
}

// Identify resolves a relative path, file name, class name or qualified class name to a file.
func (p *Project) Identify(name string) (*File, error) {
	name = strings.TrimSpace(filepath.ToSlash(name))
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNoSuchFile)
	}
	for _, f := range p.files {
		if f.info.RelativePath == name {
			return f, nil
		}
	}
	for _, f := range p.files {
		base := filepath.Base(f.info.RelativePath)
		if base == name ||
			strings.TrimSuffix(base, ".java") == name ||
			f.info.ClassName == name ||
			f.info.QualifiedName() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchFile, name)
}

// Parse returns the cached tree of a file, parsing it on first use.
func (p *Project) Parse(ctx context.Context, f *File) (*sitter.Tree, []byte, error) {
	return f.Tree(ctx)
}

// Methods indexes every method declared in the project. Files that fail to parse are skipped.
func (p *Project) Methods(ctx context.Context) []models.MethodDecl {
	var all []models.MethodDecl
	for _, f := range p.files {
		methods, err := f.Methods(ctx)
		if err != nil {
			if !IsParseError(err) {
				p.logger.Debug("failed to list methods", "file", f.info.RelativePath, "error", err)
			}
			continue
		}
		all = append(all, methods...)
	}
	return all
}

// TestMethods returns the fully-qualified names (pkg.Class#method) of the @Test methods in f.
func (p *Project) TestMethods(ctx context.Context, f *File) ([]string, error) {
	tree, code, err := f.Tree(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := queryMatches("test_methods", tree.RootNode(), code)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, m := range matches {
		method, name := m["method"], m["name"]
		if method == nil || name == nil {
			continue
		}
		className := enclosingTypeName(method, code)
		if className == "" {
			className = f.info.ClassName
		}
		qualified := className
		if f.info.Package != "" {
			qualified = f.info.Package + "." + className
		}
		names = append(names, qualified+"#"+name.Content(code))
	}
	return names, nil
}

// Info summarizes the project for display.
func (p *Project) Info() models.ProjectInfo {
	info := models.ProjectInfo{
		RootDir:  p.root,
		Language: p.language,
		Counts:   make(map[models.FileKind]int),
	}
	seen := make(map[string]bool)
	for _, f := range p.files {
		info.Counts[f.info.Kind]++
		if f.info.Package != "" && !seen[f.info.Package] {
			seen[f.info.Package] = true
			info.Packages = append(info.Packages, f.info.Package)
		}
	}
	sort.Strings(info.Packages)
	return info
}

// IsNoSuchFile reports whether err came from an unresolved file name.
func IsNoSuchFile(err error) bool {
	return errors.Is(err, ErrNoSuchFile)
}
