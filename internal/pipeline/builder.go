package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/epubmaker/internal/config"
	"github.com/dgallion1/epubmaker/internal/doctree"
	"github.com/dgallion1/epubmaker/internal/epub"
	"github.com/dgallion1/epubmaker/internal/manifest"
	"github.com/dgallion1/epubmaker/internal/mediatype"
	"github.com/dgallion1/epubmaker/internal/nav"
	"github.com/dgallion1/epubmaker/internal/parser"
	"github.com/dgallion1/epubmaker/internal/resource"
	"github.com/dgallion1/epubmaker/internal/toc"
)

var (
	ErrDuplicateDocument = errors.New("two sources map to the same document")
	ErrNavMismatch       = errors.New("nav document and ncx diverge")
)

// Generated manifest ids.
const (
	NavID = "nav"
	NCXID = "ncx"
)

// Result summarizes one packaging run.
type Result struct {
	Name        string
	OutputRoot  string
	PackagePath string   // OPF path relative to OutputRoot
	Documents   []string // Output paths in spine order
	Resources   int      // Registered resources, documents included
	Dropped     []string // Resources removed because their files were missing
	Skipped     []string // References that were not packaged
	Archive     string   // .epub path, if one was written
	Manifest    *manifest.Manifest
	Outline     doctree.Outline
}

// Builder runs packaging passes for one configured book. A Builder may be
// reused for successive runs but runs must not overlap.
type Builder struct {
	cfg  config.Config
	log  *slog.Logger
	opts parser.Options
	css  *stylesheetScanner

	// Now stamps dcterms:modified.
	Now func() time.Time
}

func NewBuilder(cfg config.Config, log *slog.Logger) (*Builder, error) {
	levels, err := parser.CompileLevels(cfg.TOCLevels)
	if err != nil {
		return nil, err
	}
	css, err := newStylesheetScanner(cfg.SourceRoot, cfg.StylesheetCacheSz)
	if err != nil {
		return nil, err
	}

	opts := parser.Options{Levels: levels}
	if cfg.ExtraCSS != "" {
		opts.ExtraCSS = resource.Clean(cfg.ExtraCSS)
	}
	if cfg.MathJax != "" {
		opts.MathJax = resource.Clean(cfg.MathJax)
	}

	return &Builder{
		cfg:  cfg,
		log:  log,
		opts: opts,
		css:  css,
		Now:  time.Now,
	}, nil
}

// hrefPrefix is the escaped href of the book's xhtml directory, relative
// to the package document.
func (b *Builder) hrefPrefix() string {
	return path.Join("xhtml", resource.Href(b.cfg.Name))
}

// Run packages sources, root-relative document paths in reading order,
// into the output tree.
func (b *Builder) Run(ctx context.Context, sources []string, rep Reporter) (*Result, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	log := b.log.With("name", b.cfg.Name)
	start := time.Now()

	// Phase 1: Load documents in parallel, keeping reading order.
	rep.SetTotalDocuments(len(sources))
	rep.SetStatus(StatusLoading, "loading documents")
	docs, err := b.load(ctx, sources, rep)
	if err != nil {
		return nil, err
	}
	log.Info("loaded documents", "documents", len(docs))

	// Phase 2: Register documents and everything they reference.
	rep.SetStatus(StatusPackaging, "registering resources")
	reg := resource.NewRegistry()
	docRes := make([]*resource.Resource, 0, len(docs))
	byPath := make(map[string]int, len(docs))
	res := &Result{
		Name:       b.cfg.Name,
		OutputRoot: b.cfg.OutputRoot,
	}
	for _, doc := range docs {
		if prev, ok := byPath[doc.Path]; ok {
			return nil, fmt.Errorf("%s and %s: %w", sources[prev], sources[doc.Index], ErrDuplicateDocument)
		}
		byPath[doc.Path] = doc.Index
		docRes = append(docRes, reg.RegisterNormalized(doc.Path))
		res.Documents = append(res.Documents, doc.Path)
	}
	visited := map[string]bool{}
	for _, doc := range docs {
		base := resource.Dir(doc.Path)
		for _, ref := range doc.Refs {
			p, ok := b.resolveRef(log, rep, res, doc.Path, base, ref.Src)
			if !ok {
				continue
			}
			reg.RegisterNormalized(p)
			if ref.Kind == doctree.RefStylesheet {
				b.registerStylesheet(log, rep, res, reg, p, visited)
			}
		}
	}
	res.Resources = reg.Len()

	// Phase 3: Manifest and spine.
	mb := &manifest.Builder{
		Resolve:    mediatype.Resolve,
		Scripted:   b.cfg.Scripted,
		Lenient:    b.cfg.Lenient,
		HrefPrefix: b.hrefPrefix(),
		Log:        log,
	}
	m, err := mb.Build(docRes, reg.Resources())
	if err != nil {
		return nil, err
	}

	// Phase 4: Table of contents and both navigation artifacts.
	rep.SetStatus(StatusPackaging, "building table of contents")
	perDoc := make([][]doctree.HeadingMatch, len(docs))
	for i, d := range docs {
		perDoc[i] = d.Headings
	}
	outline := toc.Build(perDoc)
	list, navMap := nav.Render(outline, linker{docs: docs, dir: path.Join("xhtml", b.cfg.Name)})
	if !nav.Isomorphic(list, navMap) {
		return nil, ErrNavMismatch
	}

	navName := b.cfg.Name + ".nav.xhtml"
	navHref := path.Join(b.hrefPrefix(), resource.Href(navName))
	if err := m.Add(manifest.Entry{
		ID:         NavID,
		Href:       navHref,
		MediaType:  manifest.MediaTypeXHTML,
		Properties: []string{manifest.PropertyNav},
	}); err != nil {
		return nil, err
	}
	if err := m.Add(manifest.Entry{ID: NCXID, Href: "toc.ncx", MediaType: manifest.MediaTypeNCX}); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 5: Write the tree.
	rep.SetStatus(StatusWriting, "materializing resources")
	opsRoot := filepath.Join(b.cfg.OutputRoot, "OPS")
	contents := make(map[string][]byte, len(docs))
	for _, d := range docs {
		contents[d.Path] = d.Content
	}
	mat := &epub.Materializer{SourceRoot: b.cfg.SourceRoot, OPSRoot: opsRoot, Log: log}
	dropped, err := mat.Materialize(m, contents)
	if err != nil {
		return nil, err
	}
	for _, p := range dropped {
		rep.AddWarning("dropped missing resource " + p)
	}
	res.Dropped = dropped

	rep.SetStatus(StatusWriting, "writing package")
	err = writeFileWith(filepath.Join(opsRoot, "xhtml", b.cfg.Name, navName), func(w io.Writer) error {
		return nav.WriteNavDocument(w, b.cfg.Title, list)
	})
	if err != nil {
		return nil, fmt.Errorf("write nav document: %w", err)
	}
	err = writeFileWith(filepath.Join(opsRoot, "toc.ncx"), func(w io.Writer) error {
		return nav.WriteNCX(w, nav.NCXHead{UID: b.cfg.Identifier, Title: b.cfg.Title}, navMap)
	})
	if err != nil {
		return nil, fmt.Errorf("write ncx: %w", err)
	}

	opfName := b.cfg.Name + "-package.opf"
	meta := epub.PackageMeta{
		Identifier: b.cfg.Identifier,
		Title:      b.cfg.Title,
		Language:   b.cfg.Language,
		Creator:    b.cfg.Creator,
		Modified:   b.Now(),
	}
	err = writeFileWith(filepath.Join(opsRoot, opfName), func(w io.Writer) error {
		return epub.WritePackage(w, meta, m)
	})
	if err != nil {
		return nil, fmt.Errorf("write package: %w", err)
	}

	res.PackagePath = path.Join("OPS", opfName)
	if err := epub.WriteContainer(b.cfg.OutputRoot, res.PackagePath); err != nil {
		return nil, err
	}
	if err := epub.WriteMimetype(b.cfg.OutputRoot); err != nil {
		return nil, err
	}

	if b.cfg.Archive {
		dest := filepath.Join(b.cfg.OutputRoot, b.cfg.Name+".epub")
		if err := epub.Archive(b.cfg.OutputRoot, dest); err != nil {
			return nil, err
		}
		res.Archive = dest
	}

	res.Manifest = m
	res.Outline = outline
	log.Info("build complete",
		"documents", len(docs),
		"resources", res.Resources,
		"dropped", len(res.Dropped),
		"toc_entries", outline.Len(),
		"duration", time.Since(start),
	)
	return res, nil
}

func (b *Builder) load(ctx context.Context, sources []string, rep Reporter) ([]*doctree.Document, error) {
	docs := make([]*doctree.Document, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := b.loadDocument(src)
			if err != nil {
				return err
			}
			doc.Index = i
			for j := range doc.Headings {
				doc.Headings[j].DocumentIndex = i
			}
			docs[i] = doc
			rep.IncrDocumentsLoaded()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *Builder) loadDocument(src string) (*doctree.Document, error) {
	p, err := parser.ForFile(src, b.opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(b.cfg.SourceRoot, filepath.FromSlash(src)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src, err)
	}
	defer f.Close()

	doc, err := p.Parse(bufio.NewReader(f), parser.OutputPath(src))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src, err)
	}
	return doc, nil
}

// resolveRef normalizes a reference found in owner. Fragment-only and
// empty references are ignored silently; remote and out-of-tree ones are
// reported.
func (b *Builder) resolveRef(log *slog.Logger, rep Reporter, res *Result, owner, base, ref string) (string, bool) {
	p, ok := resource.Normalize(base, ref)
	if ok {
		return p, true
	}
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	log.Warn("skipping reference", "document", owner, "ref", ref)
	rep.AddWarning(fmt.Sprintf("skipped %s in %s", ref, owner))
	res.Skipped = append(res.Skipped, ref)
	return "", false
}

// registerStylesheet registers the url() and @import targets of the
// stylesheet at p, following imported stylesheets.
func (b *Builder) registerStylesheet(log *slog.Logger, rep Reporter, res *Result, reg *resource.Registry, p string, visited map[string]bool) {
	if visited[p] {
		return
	}
	visited[p] = true

	refs, err := b.css.Refs(p)
	if err != nil {
		// A missing stylesheet is dropped later by the materializer.
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("cannot scan stylesheet", "path", p, "error", err)
			rep.AddWarning(fmt.Sprintf("cannot scan %s: %v", p, err))
		}
		return
	}

	base := resource.Dir(p)
	for _, ref := range refs {
		target, ok := b.resolveRef(log, rep, res, p, base, ref)
		if !ok {
			continue
		}
		reg.RegisterNormalized(target)
		if strings.EqualFold(path.Ext(target), ".css") {
			b.registerStylesheet(log, rep, res, reg, target, visited)
		}
	}
}

// linker addresses outline targets from the nav document, which sits at
// the top of the book's xhtml directory, and from the NCX at the OPS root.
type linker struct {
	docs []*doctree.Document
	dir  string // book directory under OPS, unescaped
}

func (l linker) NavHref(t doctree.Target) string {
	return resource.HrefFragment(l.docs[t.DocumentIndex].Path, t.AnchorID)
}

func (l linker) NCXSrc(t doctree.Target) string {
	return resource.HrefFragment(path.Join(l.dir, l.docs[t.DocumentIndex].Path), t.AnchorID)
}

func writeFileWith(p string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
