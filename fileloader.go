package loreline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileLoader resolves "import NAME" declarations to file contents. It
// generalizes the teacher's TemplateLoader (template_loader.go): Get
// reads a resolved path, Abs joins a relative import name against the
// file that imported it.
//
// Loading here is synchronous: the parser calls Get and continues
// immediately with the result. Spec §4.2/§5 additionally describe an
// asynchronous "provide continuation" form for hosts that load files
// over a non-blocking I/O layer; this module only implements the
// synchronous path (see DESIGN.md) since the teacher and the rest of
// the pack ship no asynchronous-loader precedent to generalize from,
// and a synchronous FileLoader can always be driven by a host that
// blocks its own goroutine until bytes are ready.
type FileLoader interface {
	Get(path string) (io.Reader, error)
	Abs(base, name string) string
}

// LocalFileLoader reads ".lor" files from a base directory on disk,
// grounded on the teacher's LocalFilesystemLoader.
type LocalFileLoader struct {
	baseDir string
}

func NewLocalFileLoader(baseDir string) (*LocalFileLoader, error) {
	l := &LocalFileLoader{}
	if baseDir != "" {
		if err := l.SetBaseDir(baseDir); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *LocalFileLoader) SetBaseDir(path string) error {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		path = abs
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("loreline: %q is not a directory", path)
	}
	l.baseDir = path
	return nil
}

func (l *LocalFileLoader) Get(path string) (io.Reader, error) {
	return os.Open(path)
}

func (l *LocalFileLoader) Abs(base, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if l.baseDir == "" {
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return name
			}
			return filepath.Join(wd, name)
		}
		return filepath.Join(filepath.Dir(base), name)
	}
	return filepath.Join(l.baseDir, name)
}

// SandboxedFileLoader wraps a LocalFileLoader and rejects any resolved
// path outside its base directory, grounded on the teacher's
// SandboxedFilesystemLoader (the teacher leaves its own sandbox check
// as a sketch in virtfs.go; this implementation completes it).
type SandboxedFileLoader struct {
	*LocalFileLoader
}

func NewSandboxedFileLoader(baseDir string) (*SandboxedFileLoader, error) {
	l, err := NewLocalFileLoader(baseDir)
	if err != nil {
		return nil, err
	}
	return &SandboxedFileLoader{LocalFileLoader: l}, nil
}

func (l *SandboxedFileLoader) Abs(base, name string) string {
	resolved := filepath.Clean(l.LocalFileLoader.Abs(base, name))
	if l.baseDir != "" {
		rel, err := filepath.Rel(l.baseDir, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return ""
		}
	}
	return resolved
}

// MapFileLoader is an in-memory loader keyed by import path, useful for
// tests and embedded scripts that never touch disk.
type MapFileLoader map[string]string

func (m MapFileLoader) Get(path string) (io.Reader, error) {
	src, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("loreline: no such import %q", path)
	}
	return strings.NewReader(src), nil
}

func (m MapFileLoader) Abs(base, name string) string {
	return name
}
