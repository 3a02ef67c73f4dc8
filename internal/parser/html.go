package parser

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/epubmaker/internal/doctree"
)

// HTMLParser handles HTML and XHTML files.
type HTMLParser struct {
	Options Options
}

func (p *HTMLParser) Parse(r io.Reader, docPath string) (*doctree.Document, error) {
	// Scripting off so <noscript> content parses as markup.
	root, err := html.ParseWithOptions(r, html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, docPath, err)
	}
	htmlEl := findElement(root, atom.Html)
	if htmlEl == nil {
		return nil, fmt.Errorf("%w: %s: no html element", ErrMalformedDocument, docPath)
	}

	doc := &doctree.Document{
		Path:  docPath,
		Title: findTitle(root),
	}
	docDir := path.Dir(docPath)

	if head := findElement(root, atom.Head); head != nil {
		if p.Options.MathJax != "" {
			injectMathJax(head, relativeTo(docDir, p.Options.MathJax))
		}
		if p.Options.ExtraCSS != "" {
			head.AppendChild(element(atom.Link,
				"rel", "stylesheet",
				"type", "text/css",
				"href", relativeTo(docDir, p.Options.ExtraCSS)))
		}
	}

	doc.Refs = collectRefs(root)
	if body := findElement(root, atom.Body); body != nil {
		doc.Headings = p.matchHeadings(root, body)
	}

	toXHTML(root, htmlEl)

	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	if err := html.Render(&buf, root); err != nil {
		return nil, fmt.Errorf("render %s: %w", docPath, err)
	}
	buf.WriteByte('\n')
	doc.Content = buf.Bytes()

	return doc, nil
}

// matchHeadings walks body in document order and records every element
// matched by a level selector. An element matched by several selectors
// takes the lowest level. A heading keeps its id only when it is the first
// element in the document carrying it; otherwise it gets a generated
// toc-id-n anchor.
func (p *HTMLParser) matchHeadings(root, body *html.Node) []doctree.HeadingMatch {
	if len(p.Options.Levels) == 0 {
		return nil
	}

	owners := map[string]*html.Node{}
	collectIDs(root, owners)
	claimed := map[string]bool{}
	seq := 0
	nextID := func() string {
		for {
			id := fmt.Sprintf("toc-id-%d", seq)
			seq++
			if owners[id] == nil && !claimed[id] {
				return id
			}
		}
	}

	var out []doctree.HeadingMatch
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := p.levelOf(n); level > 0 {
				if label := collapseSpace(textContent(n)); label != "" {
					id := getAttr(n, "id")
					if id == "" || claimed[id] || owners[id] != n {
						id = nextID()
						setAttr(n, "id", id)
					}
					claimed[id] = true
					out = append(out, doctree.HeadingMatch{
						Level:    level,
						Label:    label,
						AnchorID: id,
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return out
}

func (p *HTMLParser) levelOf(n *html.Node) int {
	for _, ls := range p.Options.Levels {
		if ls.Selector.Match(n) {
			return ls.Level
		}
	}
	return 0
}

// collectRefs returns local resource references in document order.
func collectRefs(root *html.Node) []doctree.Ref {
	var refs []doctree.Ref
	add := func(kind doctree.RefKind, src string) {
		if strings.TrimSpace(src) != "" {
			refs = append(refs, doctree.Ref{Kind: kind, Src: src})
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Img:
				add(doctree.RefImage, getAttr(n, "src"))
			case atom.Script:
				add(doctree.RefScript, getAttr(n, "src"))
			case atom.Link:
				rel := strings.Fields(strings.ToLower(getAttr(n, "rel")))
				for _, r := range rel {
					if r == "stylesheet" {
						add(doctree.RefStylesheet, getAttr(n, "href"))
						break
					}
					if r == "icon" {
						add(doctree.RefLink, getAttr(n, "href"))
						break
					}
				}
			case atom.Source, atom.Track:
				add(doctree.RefMedia, getAttr(n, "src"))
			case atom.Audio, atom.Video:
				add(doctree.RefMedia, getAttr(n, "src"))
				add(doctree.RefImage, getAttr(n, "poster"))
			case atom.Object:
				add(doctree.RefMedia, getAttr(n, "data"))
			case atom.Embed:
				add(doctree.RefMedia, getAttr(n, "src"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return refs
}

// injectMathJax drops any existing MathJax.js script and links src instead.
func injectMathJax(head *html.Node, src string) {
	var stale []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script &&
			strings.Contains(getAttr(n, "src"), "MathJax.js") {
			stale = append(stale, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	// Old script tags may sit anywhere in the document.
	top := head
	for top.Parent != nil {
		top = top.Parent
	}
	walk(top)
	for _, n := range stale {
		n.Parent.RemoveChild(n)
	}

	head.AppendChild(element(atom.Script, "type", "text/javascript", "src", src))
}

func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// collectIDs maps every id to the first element carrying it.
func collectIDs(n *html.Node, owners map[string]*html.Node) {
	if n.Type == html.ElementNode {
		if id := getAttr(n, "id"); id != "" && owners[id] == nil {
			owners[id] = n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectIDs(c, owners)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return collapseSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
