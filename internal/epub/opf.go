package epub

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgallion1/epubmaker/internal/manifest"
)

const (
	opfNamespace = "http://www.idpf.org/2007/opf"
	dcNamespace  = "http://purl.org/dc/elements/1.1/"

	// ModifiedFormat is the dcterms:modified layout required by EPUB 3.
	ModifiedFormat = "2006-01-02T15:04:05Z"
)

// PackageMeta is the book-level metadata of the package document.
type PackageMeta struct {
	Identifier string
	Title      string
	Language   string
	Creator    string
	Modified   time.Time
}

type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Xmlns            string      `xml:"xmlns,attr"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
	Spine            opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	XmlnsDC    string     `xml:"xmlns:dc,attr"`
	Identifier dcElement  `xml:"dc:identifier"`
	Title      dcElement  `xml:"dc:title"`
	Language   dcElement  `xml:"dc:language"`
	Creator    *dcElement `xml:"dc:creator,omitempty"`
	Meta       []opfMeta  `xml:"meta"`
}

type dcElement struct {
	ID      string `xml:"id,attr,omitempty"`
	Content string `xml:",chardata"`
}

type opfMeta struct {
	Property string `xml:"property,attr"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr,omitempty"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// WritePackage writes the OPF 3.0 package document for m. The spine
// references the NCX when the manifest carries an item with id "ncx".
func WritePackage(w io.Writer, meta PackageMeta, m *manifest.Manifest) error {
	pkg := opfPackage{
		Xmlns:            opfNamespace,
		Version:          "3.0",
		UniqueIdentifier: "uid",
		Metadata: opfMetadata{
			XmlnsDC:    dcNamespace,
			Identifier: dcElement{ID: "uid", Content: meta.Identifier},
			Title:      dcElement{Content: meta.Title},
			Language:   dcElement{Content: meta.Language},
			Meta: []opfMeta{{
				Property: "dcterms:modified",
				Value:    meta.Modified.UTC().Format(ModifiedFormat),
			}},
		},
	}
	if meta.Creator != "" {
		pkg.Metadata.Creator = &dcElement{Content: meta.Creator}
	}

	for _, e := range m.Entries() {
		pkg.Manifest.Items = append(pkg.Manifest.Items, opfItem{
			ID:         e.ID,
			Href:       e.Href,
			MediaType:  e.MediaType,
			Properties: strings.Join(e.Properties, " "),
		})
	}

	if ncx, ok := m.ByID("ncx"); ok && ncx.MediaType == manifest.MediaTypeNCX {
		pkg.Spine.Toc = ncx.ID
	}
	for _, id := range m.Spine() {
		pkg.Spine.ItemRefs = append(pkg.Spine.ItemRefs, opfItemRef{IDRef: id})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(pkg); err != nil {
		return fmt.Errorf("encode package: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
