package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/epubmaker/internal/parser"
	"github.com/dgallion1/epubmaker/internal/resource"
)

// Discover expands source arguments into root-relative document paths in
// reading order. Files keep their argument position; directories are
// walked and their documents appended in sorted order. Relative arguments
// are resolved against sourceRoot. Directories in skipDirs, typically a
// previous output tree, are not descended into.
func Discover(sourceRoot string, args []string, skipDirs ...string) ([]string, error) {
	absRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			skip[abs] = true
		}
	}

	seen := map[string]bool{}
	var out []string
	add := func(abs string) error {
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil {
			return err
		}
		p := resource.Clean(rel)
		if p == ".." || strings.HasPrefix(p, "../") {
			return fmt.Errorf("%s is outside the source root %s", abs, absRoot)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
		return nil
	}

	for _, arg := range args {
		abs := arg
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(absRoot, arg)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", arg, err)
		}

		if !info.IsDir() {
			if !parser.IsSupportedExtension(abs) {
				return nil, fmt.Errorf("source %s: unsupported file extension", arg)
			}
			if err := add(abs); err != nil {
				return nil, err
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != abs && (strings.HasPrefix(d.Name(), ".") || skip[p]) {
					return filepath.SkipDir
				}
				return nil
			}
			if parser.IsSupportedExtension(p) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
		sort.Strings(found)
		for _, p := range found {
			if err := add(p); err != nil {
				return nil, err
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no documents found")
	}
	return out, nil
}
