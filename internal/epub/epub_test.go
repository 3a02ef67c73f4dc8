package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/epubmaker/internal/manifest"
	"github.com/dgallion1/epubmaker/internal/resource"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resolve(p string) (string, error) {
	switch filepath.Ext(p) {
	case ".html", ".xhtml":
		return manifest.MediaTypeXHTML, nil
	case ".png":
		return "image/png", nil
	case ".css":
		return "text/css", nil
	}
	return "", errors.New("unknown")
}

func buildManifest(t *testing.T, docs []string, others ...string) *manifest.Manifest {
	t.Helper()
	reg := resource.NewRegistry()
	var docRes []*resource.Resource
	for _, d := range docs {
		docRes = append(docRes, reg.Register(d))
	}
	for _, o := range others {
		reg.Register(o)
	}
	b := &manifest.Builder{Resolve: resolve, HrefPrefix: "xhtml/book", Log: quietLog()}
	m, err := b.Build(docRes, reg.Resources())
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestWriteMimetype(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteMimetype(root))

	data, err := os.ReadFile(filepath.Join(root, "mimetype"))
	require.NoError(t, err)
	assert.Equal(t, "application/epub+zip", string(data))
}

func TestWriteContainer_CreatesAndMerges(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, WriteContainer(root, "OPS/a-package.opf"))
	paths, err := ReadContainer(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"OPS/a-package.opf"}, paths)

	require.NoError(t, WriteContainer(root, "OPS/b-package.opf"))
	require.NoError(t, WriteContainer(root, "OPS/a-package.opf"))
	paths, err = ReadContainer(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"OPS/a-package.opf", "OPS/b-package.opf"}, paths)

	data, err := os.ReadFile(filepath.Join(root, "META-INF", "container.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `xmlns="urn:oasis:names:tc:opendocument:xmlns:container"`)
	assert.Contains(t, string(data), `media-type="application/oebps-package+xml"`)
}

func TestWriteContainer_InvalidExisting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ContainerPath, "<container><rootfiles>")

	err := WriteContainer(root, "OPS/a-package.opf")
	assert.True(t, errors.Is(err, ErrInvalidContainer))
}

// Read-side shapes, matched by local name.
type readPackage struct {
	UniqueIdentifier string `xml:"unique-identifier,attr"`
	Metadata         struct {
		Identifier string `xml:"identifier"`
		Title      string `xml:"title"`
		Language   string `xml:"language"`
		Creator    string `xml:"creator"`
		Meta       []struct {
			Property string `xml:"property,attr"`
			Value    string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Items []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"manifest>item"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

func TestWritePackage(t *testing.T) {
	m := buildManifest(t, []string{"b.html", "a.html"}, "img/x.png")
	require.NoError(t, m.Add(manifest.Entry{ID: "nav", Href: "xhtml/book/book.nav.xhtml", MediaType: manifest.MediaTypeXHTML, Properties: []string{manifest.PropertyNav}}))
	require.NoError(t, m.Add(manifest.Entry{ID: "ncx", Href: "toc.ncx", MediaType: manifest.MediaTypeNCX}))

	meta := PackageMeta{
		Identifier: "urn:uuid:abc",
		Title:      "Book",
		Language:   "en",
		Creator:    "Ann",
		Modified:   time.Date(2024, 3, 5, 10, 4, 5, 0, time.FixedZone("X", 3600)),
	}
	var buf bytes.Buffer
	require.NoError(t, WritePackage(&buf, meta, m))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `<dc:identifier id="uid">urn:uuid:abc</dc:identifier>`)
	assert.Contains(t, out, `xmlns:dc="http://purl.org/dc/elements/1.1/"`)

	var pkg readPackage
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &pkg))
	assert.Equal(t, "uid", pkg.UniqueIdentifier)
	assert.Equal(t, "urn:uuid:abc", pkg.Metadata.Identifier)
	assert.Equal(t, "Book", pkg.Metadata.Title)
	assert.Equal(t, "en", pkg.Metadata.Language)
	assert.Equal(t, "Ann", pkg.Metadata.Creator)
	require.Len(t, pkg.Metadata.Meta, 1)
	assert.Equal(t, "dcterms:modified", pkg.Metadata.Meta[0].Property)
	assert.Equal(t, "2024-03-05T09:04:05Z", pkg.Metadata.Meta[0].Value)

	require.Len(t, pkg.Items, 5)
	assert.Equal(t, "xhtml/book/b.html", pkg.Items[0].Href)
	assert.Equal(t, "nav", pkg.Items[3].ID)
	assert.Equal(t, "nav", pkg.Items[3].Properties)
	assert.Equal(t, "ncx", pkg.Spine.Toc)
	require.Len(t, pkg.Spine.ItemRefs, 2)
	assert.Equal(t, m.Spine()[0], pkg.Spine.ItemRefs[0].IDRef)
	assert.Equal(t, m.Spine()[1], pkg.Spine.ItemRefs[1].IDRef)
}

func TestWritePackage_NoNCXNoCreator(t *testing.T) {
	m := buildManifest(t, []string{"a.html"})

	var buf bytes.Buffer
	require.NoError(t, WritePackage(&buf, PackageMeta{Identifier: "x", Title: "t", Language: "en"}, m))
	assert.NotContains(t, buf.String(), "toc=")
	assert.NotContains(t, buf.String(), "dc:creator")
}

func TestMaterialize_DropsMissingResources(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, src, "img/present.png", "png")
	writeFile(t, src, "css/site.css", "body{}")

	m := buildManifest(t, []string{"ch/a.html"}, "img/present.png", "img/missing.png", "css/site.css")
	mt := &Materializer{SourceRoot: src, OPSRoot: out, Log: quietLog()}

	dropped, err := mt.Materialize(m, map[string][]byte{"ch/a.html": []byte("<html/>")})
	require.NoError(t, err)
	assert.Equal(t, []string{"img/missing.png"}, dropped)

	_, ok := m.Entry("img/missing.png")
	assert.False(t, ok)
	assert.Equal(t, 3, m.Len())

	data, err := os.ReadFile(filepath.Join(out, "xhtml", "book", "ch", "a.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))
	data, err = os.ReadFile(filepath.Join(out, "xhtml", "book", "img", "present.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestMaterialize_UnescapesHrefs(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, src, "img/my fig#1.png", "png")

	reg := resource.NewRegistry()
	doc := reg.RegisterNormalized("a.html")
	reg.RegisterNormalized("img/my fig#1.png")
	b := &manifest.Builder{Resolve: resolve, HrefPrefix: "xhtml/book", Log: quietLog()}
	m, err := b.Build([]*resource.Resource{doc}, reg.Resources())
	require.NoError(t, err)

	mt := &Materializer{SourceRoot: src, OPSRoot: out, Log: quietLog()}
	dropped, err := mt.Materialize(m, map[string][]byte{"a.html": []byte("<html/>")})
	require.NoError(t, err)
	assert.Empty(t, dropped)

	e, ok := m.Entry("img/my fig#1.png")
	require.True(t, ok)
	assert.Equal(t, "xhtml/book/img/my%20fig%231.png", e.Href)
	data, err := os.ReadFile(filepath.Join(out, "xhtml", "book", "img", "my fig#1.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestMaterialize_MissingDocumentIsFatal(t *testing.T) {
	m := buildManifest(t, []string{"a.html"})
	mt := &Materializer{SourceRoot: t.TempDir(), OPSRoot: t.TempDir(), Log: quietLog()}

	_, err := mt.Materialize(m, nil)
	assert.True(t, errors.Is(err, manifest.ErrMissingDocument))
}

func TestArchive_MimetypeFirstAndStored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteMimetype(root))
	require.NoError(t, WriteContainer(root, "OPS/b-package.opf"))
	writeFile(t, root, "OPS/b-package.opf", "<package/>")
	writeFile(t, root, "OPS/xhtml/b/a.html", "<html/>")
	writeFile(t, root, "notes.txt", "not part of the book")

	dest := filepath.Join(root, "b.epub")
	require.NoError(t, Archive(root, dest))

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()

	require.NotEmpty(t, zr.File)
	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)
	assert.Zero(t, first.Flags&0x8, "mimetype must not use a data descriptor")

	rc, err := first.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "application/epub+zip", string(data))

	var names []string
	for _, f := range zr.File[1:] {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
	}
	assert.Equal(t, []string{"META-INF/container.xml", "OPS/b-package.opf", "OPS/xhtml/b/a.html"}, names)
}

func TestArchive_RequiresMimetype(t *testing.T) {
	err := Archive(t.TempDir(), filepath.Join(t.TempDir(), "x.epub"))
	assert.Error(t, err)
}
