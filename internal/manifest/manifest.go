// Package manifest turns registered resources into package manifest
// entries and a reading-order spine.
package manifest

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnresolvableMediaType = errors.New("unresolvable media type")
	ErrDuplicateDestination  = errors.New("duplicate destination href")
	ErrDuplicateID           = errors.New("duplicate manifest id")
	ErrMissingDocument       = errors.New("spine document missing")
	ErrEmptySpine            = errors.New("spine is empty")
)

// Well-known media types and item properties.
const (
	MediaTypeXHTML = "application/xhtml+xml"
	MediaTypeHTML  = "text/html"
	MediaTypeNCX   = "application/x-dtbncx+xml"

	PropertyNav      = "nav"
	PropertyScripted = "scripted"
)

// Entry is one <item> of the package manifest.
type Entry struct {
	ID         string
	Href       string // Relative to the package document
	MediaType  string
	Properties []string
	Path       string // Source path; empty for generated items
	Document   bool   // Part of the spine
}

// HasProperty reports whether the entry carries prop.
func (e Entry) HasProperty(prop string) bool {
	return slices.Contains(e.Properties, prop)
}

// Manifest holds entries in insertion order plus the spine.
type Manifest struct {
	entries []*Entry
	byID    map[string]*Entry
	byHref  map[string]*Entry
	byPath  map[string]*Entry
	spine   []string
}

func newManifest() *Manifest {
	return &Manifest{
		byID:   make(map[string]*Entry),
		byHref: make(map[string]*Entry),
		byPath: make(map[string]*Entry),
	}
}

// Add appends an entry, enforcing unique ids and hrefs.
func (m *Manifest) Add(e Entry) error {
	if _, ok := m.byID[e.ID]; ok {
		return fmt.Errorf("%s: %w", e.ID, ErrDuplicateID)
	}
	if other, ok := m.byHref[e.Href]; ok {
		return fmt.Errorf("%s and %s both map to %s: %w", describe(other), describe(&e), e.Href, ErrDuplicateDestination)
	}
	entry := e
	entry.Properties = slices.Clone(e.Properties)
	m.entries = append(m.entries, &entry)
	m.byID[entry.ID] = &entry
	m.byHref[entry.Href] = &entry
	if entry.Path != "" {
		m.byPath[entry.Path] = &entry
	}
	return nil
}

// Drop removes the entry for a source path that could not be materialized.
// Dropping a spine document is fatal.
func (m *Manifest) Drop(path string) error {
	e, ok := m.byPath[path]
	if !ok {
		return nil
	}
	if e.Document {
		return fmt.Errorf("%s: %w", path, ErrMissingDocument)
	}
	delete(m.byPath, path)
	delete(m.byID, e.ID)
	delete(m.byHref, e.Href)
	m.entries = slices.DeleteFunc(m.entries, func(x *Entry) bool { return x == e })
	return nil
}

// Entries returns a copy of all entries in manifest order.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

// Entry returns the entry registered for a source path.
func (m *Manifest) Entry(path string) (Entry, bool) {
	e, ok := m.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ByID returns the entry with the given id.
func (m *Manifest) ByID(id string) (Entry, bool) {
	e, ok := m.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Spine returns the ids of spine documents in reading order.
func (m *Manifest) Spine() []string {
	return slices.Clone(m.spine)
}

// SpineEntries returns the spine documents in reading order.
func (m *Manifest) SpineEntries() []Entry {
	out := make([]Entry, 0, len(m.spine))
	for _, id := range m.spine {
		out = append(out, *m.byID[id])
	}
	return out
}

// Len returns the number of manifest entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

func describe(e *Entry) string {
	if e.Path != "" {
		return e.Path
	}
	return e.ID
}
