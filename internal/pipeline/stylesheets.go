package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dgallion1/epubmaker/internal/parser"
)

// stylesheetScanner caches the url() references of stylesheets keyed by
// path, size and modification time, so repeated builds in serve mode only
// rescan files that changed.
type stylesheetScanner struct {
	root  string
	cache *lru.Cache[string, []string]
}

func newStylesheetScanner(root string, size int) (*stylesheetScanner, error) {
	cache, err := lru.New[string, []string](size)
	if err != nil {
		return nil, fmt.Errorf("stylesheet cache: %w", err)
	}
	return &stylesheetScanner{root: root, cache: cache}, nil
}

// Refs returns the raw references found in the stylesheet at the
// root-relative path p.
func (s *stylesheetScanner) Refs(p string) ([]string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(p))
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d|%d", p, info.Size(), info.ModTime().UnixNano())
	if refs, ok := s.cache.Get(key); ok {
		return refs, nil
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	refs, err := parser.StylesheetRefs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	s.cache.Add(key, refs)
	return refs, nil
}
