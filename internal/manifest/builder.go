package manifest

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/dgallion1/epubmaker/internal/resource"
)

// Resolver maps a source path to its media type. Any error means the
// media type could not be determined.
type Resolver func(path string) (string, error)

// Builder derives a Manifest from a finished registry.
type Builder struct {
	Resolve    Resolver
	Scripted   bool   // Mark documents with the "scripted" property
	Lenient    bool   // Drop non-documents with unknown media types instead of failing
	HrefPrefix string // Already escaped; prepended to every escaped source path
	Log        *slog.Logger
}

// Build creates one entry per resource and the spine from documents,
// which must be given in reading order.
func (b *Builder) Build(documents, resources []*resource.Resource) (*Manifest, error) {
	log := b.Log
	if log == nil {
		log = slog.Default()
	}
	if len(documents) == 0 {
		return nil, ErrEmptySpine
	}

	isDoc := make(map[string]bool, len(documents))
	for _, d := range documents {
		isDoc[d.Path] = true
	}

	m := newManifest()
	for _, res := range resources {
		doc := isDoc[res.Path]
		mediaType, err := b.Resolve(res.Path)
		if err != nil {
			if doc || !b.Lenient {
				return nil, fmt.Errorf("%s: %w: %v", res.Path, ErrUnresolvableMediaType, err)
			}
			log.Warn("dropping resource with unknown media type", "path", res.Path, "error", err)
			continue
		}
		if mediaType == MediaTypeHTML {
			mediaType = MediaTypeXHTML
		}
		if doc && mediaType != MediaTypeXHTML {
			return nil, fmt.Errorf("%s: document has media type %s: %w", res.Path, mediaType, ErrUnresolvableMediaType)
		}

		entry := Entry{
			ID:        res.ID,
			Href:      path.Join(b.HrefPrefix, resource.Href(res.Path)),
			MediaType: mediaType,
			Path:      res.Path,
			Document:  doc,
		}
		if doc && b.Scripted {
			entry.Properties = []string{PropertyScripted}
		}
		if err := m.Add(entry); err != nil {
			return nil, err
		}
	}

	// The spine follows document order, not registration order.
	for _, d := range documents {
		e, ok := m.byPath[d.Path]
		if !ok {
			return nil, fmt.Errorf("%s: not registered: %w", d.Path, ErrMissingDocument)
		}
		m.spine = append(m.spine, e.ID)
	}

	return m, nil
}
