package pipeline

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/epubmaker/internal/config"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func testConfig(src, out string) config.Config {
	cfg := config.Defaults()
	cfg.SourceRoot = src
	cfg.OutputRoot = out
	cfg.Name = "book"
	cfg.Title = "Book"
	cfg.Identifier = config.DeriveIdentifier("book")
	return cfg
}

// writeBook lays out three chapters: a has one h1, b has an h1 and an h2,
// c has no headings.
func writeBook(t *testing.T, src string) {
	t.Helper()
	writeFile(t, src, "a.html", `<html><head><title>A</title>
<link rel="stylesheet" href="css/site.css"></head>
<body><h1 id="intro">Intro</h1>
<img src="img/logo.png"><img src="img/missing.png">
<img src="https://example.com/remote.png">
<img src="img/my%20fig.png"><img src="img/fig%231.png">
<script>if (a < b && c) { go(); }</script>
<a href="#intro">top</a></body></html>`)
	writeFile(t, src, "b.html", `<html><head><title>B</title></head>
<body><h1>Body</h1><p>text</p><h2 id="details">Details</h2></body></html>`)
	writeFile(t, src, "c.html", `<html><head><title>C</title></head><body><p>no headings</p></body></html>`)
	writeFile(t, src, "css/site.css", `body { background: url("../img/bg.png"); }`)
	writeFile(t, src, "img/logo.png", "logo")
	writeFile(t, src, "img/bg.png", "bg")
	writeFile(t, src, "img/my fig.png", "space")
	writeFile(t, src, "img/fig#1.png", "hash")
}

// requireWellFormed decodes every markup file under root to EOF.
func requireWellFormed(t *testing.T, root string) {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch filepath.Ext(p) {
		case ".html", ".xhtml", ".opf", ".ncx":
		default:
			return nil
		}
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		dec := xml.NewDecoder(bytes.NewReader(data))
		for {
			_, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err, "%s", p)
		}
		n++
		return nil
	})
	require.NoError(t, err)
	require.NotZero(t, n)
}

func runBuilder(t *testing.T, cfg config.Config, sources []string) *Result {
	t.Helper()
	b, err := NewBuilder(cfg, quietLog())
	require.NoError(t, err)
	b.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := b.Run(context.Background(), sources, nil)
	require.NoError(t, err)
	return res
}

func TestBuilder_Run(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeBook(t, src)

	res := runBuilder(t, testConfig(src, out), []string{"a.html", "b.html", "c.html"})

	assert.Equal(t, []string{"a.html", "b.html", "c.html"}, res.Documents)
	assert.Equal(t, "OPS/book-package.opf", res.PackagePath)
	assert.Equal(t, []string{"img/missing.png"}, res.Dropped)
	assert.Equal(t, []string{"https://example.com/remote.png"}, res.Skipped)
	assert.Empty(t, res.Archive)

	// Outline: Intro, Body > Details.
	require.Len(t, res.Outline, 2)
	assert.Equal(t, "Intro", res.Outline[0].Label)
	assert.Empty(t, res.Outline[0].Children)
	assert.Equal(t, "Body", res.Outline[1].Label)
	require.Len(t, res.Outline[1].Children, 1)
	assert.Equal(t, "Details", res.Outline[1].Children[0].Label)
	assert.Equal(t, 1, res.Outline[1].Children[0].Target.DocumentIndex)

	// Spine follows reading order.
	spine := res.Manifest.SpineEntries()
	require.Len(t, spine, 3)
	for i, p := range []string{"a.html", "b.html", "c.html"} {
		assert.Equal(t, p, spine[i].Path)
	}

	// Stylesheet targets are registered and copied.
	bg, ok := res.Manifest.Entry("img/bg.png")
	require.True(t, ok)
	assert.Equal(t, "xhtml/book/img/bg.png", bg.Href)
	assert.Equal(t, "bg", readFile(t, out, "OPS/xhtml/book/img/bg.png"))
	_, ok = res.Manifest.Entry("img/missing.png")
	assert.False(t, ok)

	navEntry, ok := res.Manifest.ByID(NavID)
	require.True(t, ok)
	assert.Equal(t, "xhtml/book/book.nav.xhtml", navEntry.Href)
	_, ok = res.Manifest.ByID(NCXID)
	assert.True(t, ok)

	assert.Equal(t, "application/epub+zip", readFile(t, out, "mimetype"))
	assert.Contains(t, readFile(t, out, "META-INF/container.xml"), `full-path="OPS/book-package.opf"`)

	opf := readFile(t, out, "OPS/book-package.opf")
	assert.Contains(t, opf, "2024-01-02T03:04:05Z")
	assert.Contains(t, opf, `href="xhtml/book/img/logo.png"`)
	assert.NotContains(t, opf, "missing.png")

	navDoc := readFile(t, out, "OPS/xhtml/book/book.nav.xhtml")
	assert.Contains(t, navDoc, `href="a.html#intro"`)
	assert.Contains(t, navDoc, `href="b.html#details"`)

	ncx := readFile(t, out, "OPS/toc.ncx")
	assert.Contains(t, ncx, `src="xhtml/book/a.html#intro"`)
	assert.Contains(t, ncx, `src="xhtml/book/b.html#details"`)
	assert.Contains(t, ncx, `playOrder="3"`)

	chapter := readFile(t, out, "OPS/xhtml/book/a.html")
	assert.Contains(t, chapter, `xmlns="http://www.w3.org/1999/xhtml"`)
	assert.Contains(t, chapter, "<![CDATA[")

	requireWellFormed(t, filepath.Join(out, "OPS"))
}

func TestBuilder_RunEscapesHrefs(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeBook(t, src)

	res := runBuilder(t, testConfig(src, out), []string{"a.html", "b.html", "c.html"})

	want := map[string]string{
		"img/my fig.png": "xhtml/book/img/my%20fig.png",
		"img/fig#1.png":  "xhtml/book/img/fig%231.png",
	}
	opf := readFile(t, out, "OPS/book-package.opf")
	for p, href := range want {
		e, ok := res.Manifest.Entry(p)
		require.True(t, ok, p)
		assert.Equal(t, href, e.Href)
		assert.Contains(t, opf, `href="`+href+`"`)
	}
	assert.Equal(t, "space", readFile(t, out, "OPS/xhtml/book/img/my fig.png"))
	assert.Equal(t, "hash", readFile(t, out, "OPS/xhtml/book/img/fig#1.png"))
}

func TestBuilder_RunWritesArchive(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeBook(t, src)

	cfg := testConfig(src, out)
	cfg.Archive = true
	res := runBuilder(t, cfg, []string{"a.html", "b.html", "c.html"})

	require.Equal(t, filepath.Join(out, "book.epub"), res.Archive)
	zr, err := zip.OpenReader(res.Archive)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.Equal(t, "mimetype", zr.File[0].Name)
	assert.True(t, names["OPS/book-package.opf"])
	assert.True(t, names["OPS/toc.ncx"])
	assert.True(t, names["OPS/xhtml/book/book.nav.xhtml"])
	assert.True(t, names["OPS/xhtml/book/img/logo.png"])
}

func TestBuilder_RunMarkdown(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, src, "ch/one.md", "# First\n\nSome text.\n\n## Second\n")

	res := runBuilder(t, testConfig(src, out), []string{"ch/one.md"})

	assert.Equal(t, []string{"ch/one.xhtml"}, res.Documents)
	require.Len(t, res.Outline, 1)
	assert.Equal(t, "First", res.Outline[0].Label)
	require.Len(t, res.Outline[0].Children, 1)
	assert.Contains(t, readFile(t, out, "OPS/xhtml/book/ch/one.xhtml"), "<h1")
}

func TestBuilder_RunErrors(t *testing.T) {
	t.Run("missing document", func(t *testing.T) {
		b, err := NewBuilder(testConfig(t.TempDir(), t.TempDir()), quietLog())
		require.NoError(t, err)
		_, err = b.Run(context.Background(), []string{"nope.html"}, nil)
		assert.Error(t, err)
	})

	t.Run("duplicate output path", func(t *testing.T) {
		src := t.TempDir()
		writeFile(t, src, "x.md", "# X\n")
		writeFile(t, src, "x.xhtml", "<html><body><h1>X</h1></body></html>")
		b, err := NewBuilder(testConfig(src, t.TempDir()), quietLog())
		require.NoError(t, err)
		_, err = b.Run(context.Background(), []string{"x.md", "x.xhtml"}, nil)
		assert.True(t, errors.Is(err, ErrDuplicateDocument))
	})

	t.Run("bad selector", func(t *testing.T) {
		cfg := testConfig(t.TempDir(), t.TempDir())
		cfg.TOCLevels = map[int]string{1: "h1[["}
		_, err := NewBuilder(cfg, quietLog())
		assert.Error(t, err)
	})
}

func TestBuilder_ReportsProgress(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeBook(t, src)

	b, err := NewBuilder(testConfig(src, out), quietLog())
	require.NoError(t, err)
	build := &Build{ID: "b1", Status: StatusQueued}
	_, err = b.Run(context.Background(), []string{"a.html", "b.html", "c.html"}, build)
	require.NoError(t, err)

	snap := build.Snapshot()
	assert.Equal(t, 3, snap.Progress.TotalDocuments)
	assert.Equal(t, 3, snap.Progress.DocumentsLoaded)
	assert.Len(t, snap.Progress.Warnings, 2)
}
