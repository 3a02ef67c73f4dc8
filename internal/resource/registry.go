// Package resource tracks every file that must be packaged into the book.
package resource

import (
	"fmt"
	"strings"
)

// Resource is a file included in the package. Identity is Path.
type Resource struct {
	ID   string // Manifest id, assigned on first registration
	Path string // Normalized, root-relative path
}

// Registry deduplicates resource paths and assigns stable ids.
// One Registry belongs to exactly one packaging run.
type Registry struct {
	next   int
	byPath map[string]*Resource
	order  []*Resource
}

func NewRegistry() *Registry {
	return &Registry{
		byPath: make(map[string]*Resource),
	}
}

// Register returns the resource for path, creating it on first use.
// Any query string or fragment is stripped before lookup.
func (r *Registry) Register(path string) *Resource {
	return r.RegisterNormalized(stripSuffix(path))
}

// RegisterNormalized is Register for paths returned by Normalize or Clean,
// which are taken verbatim: a '#' or '?' in them is part of the file name.
func (r *Registry) RegisterNormalized(path string) *Resource {
	if res, ok := r.byPath[path]; ok {
		return res
	}
	res := &Resource{
		ID:   fmt.Sprintf("ID-%d", r.next),
		Path: path,
	}
	r.next++
	r.byPath[path] = res
	r.order = append(r.order, res)
	return res
}

// Lookup returns the registered resource for path, if any.
func (r *Registry) Lookup(path string) (*Resource, bool) {
	res, ok := r.byPath[stripSuffix(path)]
	return res, ok
}

// LookupNormalized is Lookup without suffix stripping.
func (r *Registry) LookupNormalized(path string) (*Resource, bool) {
	res, ok := r.byPath[path]
	return res, ok
}

// Resources returns all resources in first-registration order.
func (r *Registry) Resources() []*Resource {
	out := make([]*Resource, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of distinct resources.
func (r *Registry) Len() int {
	return len(r.order)
}

func stripSuffix(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return path
}
