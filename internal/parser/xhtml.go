package parser

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	xhtmlNamespace = "http://www.w3.org/1999/xhtml"
	svgNamespace   = "http://www.w3.org/2000/svg"
	mathNamespace  = "http://www.w3.org/1998/Math/MathML"
	xlinkNamespace = "http://www.w3.org/1999/xlink"
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
)

// Elements whose text children html.Render writes without escaping.
var literalTextElements = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"xmp":       true,
}

// toXHTML prepares the tree so html.Render produces well-formed XML: an
// html5 doctype, namespaces on <html> and on embedded svg/math, CDATA
// around raw text that would otherwise break the markup, and comments
// without "--".
func toXHTML(root, htmlEl *html.Node) {
	hasDoctype := false
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.DoctypeNode:
			hasDoctype = true
		case html.CommentNode:
			// html.Parse turns <?xml ...?> into a bogus comment.
			if strings.HasPrefix(c.Data, "?xml") {
				root.RemoveChild(c)
			}
		}
		c = next
	}
	if !hasDoctype {
		root.InsertBefore(&html.Node{Type: html.DoctypeNode, Data: "html"}, root.FirstChild)
	}
	if getAttr(htmlEl, "xmlns") == "" {
		setAttr(htmlEl, "xmlns", xhtmlNamespace)
	}

	usesXLink := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			n.Data = safeComment(n.Data)
		case html.ElementNode:
			for _, a := range n.Attr {
				if a.Namespace == "xlink" {
					usesXLink = true
				}
			}
			if n.Parent == nil || n.Parent.Namespace != n.Namespace {
				switch n.Namespace {
				case "svg":
					setDefaultNamespace(n, svgNamespace)
				case "math":
					setDefaultNamespace(n, mathNamespace)
				}
			}
			if n.Namespace == "" && literalTextElements[n.Data] {
				js := n.Data == "script" && isJavaScript(getAttr(n, "type"))
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode && needsCDATA(c.Data) {
						c.Data = wrapCDATA(c.Data, n.Data, js)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if usesXLink && !hasNamespacedAttr(htmlEl, "xmlns", "xlink") {
		htmlEl.Attr = append(htmlEl.Attr, html.Attribute{Namespace: "xmlns", Key: "xlink", Val: xlinkNamespace})
	}
}

func setDefaultNamespace(n *html.Node, ns string) {
	if getAttr(n, "xmlns") == "" {
		setAttr(n, "xmlns", ns)
	}
}

func hasNamespacedAttr(n *html.Node, ns, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			return true
		}
	}
	return false
}

func needsCDATA(s string) bool {
	return strings.ContainsAny(s, "<&") || strings.Contains(s, "]]>")
}

// wrapCDATA encloses raw text in a CDATA section. Script and style markers
// are commented out so the content still works when read as plain HTML.
func wrapCDATA(s, element string, js bool) string {
	body := strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>")
	switch {
	case js:
		return "//<![CDATA[\n" + body + "\n//]]>"
	case element == "style":
		return "/*<![CDATA[*/\n" + body + "\n/*]]>*/"
	}
	return "<![CDATA[" + body + "]]>"
}

// isJavaScript reports whether a script type attribute denotes JavaScript.
// math/tex and other data blocks are not.
func isJavaScript(typ string) bool {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || typ == "module" {
		return true
	}
	return strings.Contains(typ, "javascript") || strings.Contains(typ, "ecmascript")
}

// safeComment removes sequences XML forbids inside comments.
func safeComment(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	if strings.HasSuffix(s, "-") {
		s += " "
	}
	return s
}
