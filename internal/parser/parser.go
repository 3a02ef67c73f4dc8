package parser

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/dgallion1/epubmaker/internal/doctree"
)

// ErrMalformedDocument is returned when a content document cannot be parsed.
var ErrMalformedDocument = errors.New("malformed document")

// Parser converts a source document into a rewritten XHTML Document.
// docPath is the document's root-relative output path; references and
// injected links are resolved against its directory.
type Parser interface {
	Parse(r io.Reader, docPath string) (*doctree.Document, error)
}

// LevelSelector binds a TOC level to a compiled CSS selector.
type LevelSelector struct {
	Level    int
	Selector cascadia.Selector
}

// Options control how documents are rewritten.
type Options struct {
	Levels   []LevelSelector // sorted by level
	ExtraCSS string          // root-relative stylesheet linked from every document
	MathJax  string          // root-relative MathJax entry script
}

// CompileLevels compiles level selectors, lowest level first.
func CompileLevels(levels map[int]string) ([]LevelSelector, error) {
	out := make([]LevelSelector, 0, len(levels))
	for level, sel := range levels {
		if level < 1 {
			return nil, fmt.Errorf("toc level %d: must be >= 1", level)
		}
		compiled, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("toc level %d selector %q: %w", level, sel, err)
		}
		out = append(out, LevelSelector{Level: level, Selector: compiled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// SupportedExtensions lists source extensions that become content documents.
var SupportedExtensions = map[string]bool{
	".html":     true,
	".htm":      true,
	".xhtml":    true,
	".md":       true,
	".markdown": true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".html", ".htm", ".xhtml":
		return &HTMLParser{Options: opts}, nil
	case ".md", ".markdown":
		return &MarkdownParser{Options: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// OutputPath maps a source path to the path the document is written under.
// Markdown sources are converted and take an .xhtml extension.
func OutputPath(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return strings.TrimSuffix(p, path.Ext(p)) + ".xhtml"
	}
	return p
}

// relativeTo rewrites a root-relative target so it can be referenced from
// a document in docDir.
func relativeTo(docDir, target string) string {
	if docDir == "" || docDir == "." {
		return target
	}
	up := strings.Count(docDir, "/") + 1
	return strings.Repeat("../", up) + target
}
