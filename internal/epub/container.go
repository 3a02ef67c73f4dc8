// Package epub writes the fixed EPUB scaffolding around a built manifest:
// mimetype, container, package document, materialized files and the
// optional zip archive.
package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	MimeType             = "application/epub+zip"
	PackageMediaType     = "application/oebps-package+xml"
	containerNamespace   = "urn:oasis:names:tc:opendocument:xmlns:container"
	ContainerPath        = "META-INF/container.xml"
	mimetypeName         = "mimetype"
	defaultFilePerm      = 0o644
	defaultDirectoryPerm = 0o755
)

// ErrInvalidContainer is returned when an existing container.xml cannot be
// merged.
var ErrInvalidContainer = errors.New("invalid container.xml")

type containerXML struct {
	XMLName   xml.Name  `xml:"container"`
	Version   string    `xml:"version,attr"`
	Xmlns     string    `xml:"xmlns,attr"`
	Rootfiles rootfiles `xml:"rootfiles"`
}

type rootfiles struct {
	Rootfile []rootfile `xml:"rootfile"`
}

type rootfile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// WriteMimetype writes the mimetype file at the top of the output tree.
func WriteMimetype(root string) error {
	if err := os.MkdirAll(root, defaultDirectoryPerm); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, mimetypeName), []byte(MimeType), defaultFilePerm)
}

// WriteContainer creates META-INF/container.xml or adds fullPath to an
// existing one. Rootfiles of other packages in the same tree are kept.
func WriteContainer(root, fullPath string) error {
	file := filepath.Join(root, filepath.FromSlash(ContainerPath))

	c := containerXML{Version: "1.0", Xmlns: containerNamespace}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		var existing containerXML
		if err := xml.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("%s: %w: %v", file, ErrInvalidContainer, err)
		}
		c.Rootfiles = existing.Rootfiles
	case errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}

	c.Rootfiles.Rootfile = append(c.Rootfiles.Rootfile, rootfile{FullPath: fullPath, MediaType: PackageMediaType})
	c.Rootfiles.Rootfile = dedupeRootfiles(c.Rootfiles.Rootfile)

	out, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode container: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(file), defaultDirectoryPerm); err != nil {
		return err
	}
	out = append([]byte(xml.Header), out...)
	out = append(out, '\n')
	return os.WriteFile(file, out, defaultFilePerm)
}

// ReadContainer returns the rootfile paths listed in root's container.xml.
func ReadContainer(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(ContainerPath)))
	if err != nil {
		return nil, err
	}
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	paths := make([]string, 0, len(c.Rootfiles.Rootfile))
	for _, rf := range c.Rootfiles.Rootfile {
		paths = append(paths, rf.FullPath)
	}
	return paths, nil
}

func dedupeRootfiles(in []rootfile) []rootfile {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, rf := range in {
		if rf.FullPath == "" || seen[rf.FullPath] {
			continue
		}
		seen[rf.FullPath] = true
		if rf.MediaType == "" {
			rf.MediaType = PackageMediaType
		}
		out = append(out, rf)
	}
	return out
}
