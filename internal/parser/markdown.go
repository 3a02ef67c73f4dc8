package parser

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmparser "github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"github.com/dgallion1/epubmaker/internal/doctree"
)

// MarkdownParser converts Markdown files to XHTML using goldmark and then
// runs the result through HTMLParser, so headings and references are
// handled identically for both source kinds.
type MarkdownParser struct {
	Options Options
}

func (p *MarkdownParser) Parse(r io.Reader, docPath string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(gmparser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(gmhtml.WithXHTML(), gmhtml.WithUnsafe()),
	)
	root := md.Parser().Parse(text.NewReader(src))

	title := firstHeading(root, src)
	if title == "" {
		base := path.Base(docPath)
		title = strings.TrimSuffix(base, path.Ext(base))
	}

	var body bytes.Buffer
	if err := md.Renderer().Render(&body, src, root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, docPath, err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"/><title>")
	page.WriteString(html.EscapeString(title))
	page.WriteString("</title></head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")

	hp := &HTMLParser{Options: p.Options}
	return hp.Parse(&page, OutputPath(docPath))
}

// firstHeading returns the text of the first top-level heading.
func firstHeading(doc ast.Node, src []byte) string {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			return strings.TrimSpace(extractText(h, src))
		}
	}
	return ""
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(extractText(c, src))
		}
	}
	return buf.String()
}
