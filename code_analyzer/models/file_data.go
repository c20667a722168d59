package models

import "fmt"

// FileKind classifies a discovered source file.
type FileKind string

const (
	KindInterface     FileKind = "interface"
	KindClass         FileKind = "class"
	KindClassWithMain FileKind = "class_with_main"
	KindTest          FileKind = "test"
	// KindUnknown marks a file whose tree could not be parsed at discovery time.
	KindUnknown FileKind = "unknown"
)

// FileInfo is the read-only summary of a discovered file.
type FileInfo struct {
	RelativePath string
	ClassName    string
	Package      string
	Kind         FileKind
	Fingerprint  uint64
}

// QualifiedName returns the package-qualified class name.
func (f FileInfo) QualifiedName() string {
	if f.Package == "" {
		return f.ClassName
	}
	return f.Package + "." + f.ClassName
}

// MethodDecl is a method or constructor declared in a project file.
type MethodDecl struct {
	RelativePath string
	ClassName    string
	Name         string
	StartLine    int
	EndLine      int
	Body         string
}

// Key identifies the method as Class#method.
func (m MethodDecl) Key() string {
	return fmt.Sprintf("%s#%s", m.ClassName, m.Name)
}

// Contains reports whether the 1-based line falls inside the declaration.
func (m MethodDecl) Contains(line int) bool {
	return line >= m.StartLine && line <= m.EndLine
}

// ProjectInfo summarizes a discovered project.
type ProjectInfo struct {
	RootDir  string
	Language string
	Counts   map[FileKind]int
	Packages []string
}
