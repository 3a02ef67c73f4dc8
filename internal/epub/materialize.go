package epub

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dgallion1/epubmaker/internal/manifest"
)

// Materializer writes every manifest entry that has a source path into
// the OPS directory, at the entry's unescaped href.
type Materializer struct {
	SourceRoot string
	OPSRoot    string
	Log        *slog.Logger
}

// Materialize writes documents from contents, keyed by source path, and
// copies every other file from SourceRoot. Missing non-document files are
// dropped from m and returned; a missing document is fatal.
func (mt *Materializer) Materialize(m *manifest.Manifest, contents map[string][]byte) ([]string, error) {
	log := mt.Log
	if log == nil {
		log = slog.Default()
	}

	var dropped []string
	for _, e := range m.Entries() {
		if e.Path == "" {
			continue
		}
		rel, err := url.PathUnescape(e.Href)
		if err != nil {
			return dropped, fmt.Errorf("%s: bad href %q: %w", e.Path, e.Href, err)
		}
		dest := filepath.Join(mt.OPSRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), defaultDirectoryPerm); err != nil {
			return dropped, err
		}

		if data, ok := contents[e.Path]; ok {
			if err := os.WriteFile(dest, data, defaultFilePerm); err != nil {
				return dropped, fmt.Errorf("write %s: %w", e.Path, err)
			}
			continue
		}

		src := filepath.Join(mt.SourceRoot, filepath.FromSlash(e.Path))
		err = copyFile(src, dest)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return dropped, fmt.Errorf("copy %s: %w", e.Path, err)
		}
		if err := m.Drop(e.Path); err != nil {
			return dropped, err
		}
		log.Warn("dropping missing resource", "path", e.Path)
		dropped = append(dropped, e.Path)
	}
	return dropped, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", src, fs.ErrNotExist)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
