package nav

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

const (
	xhtmlNamespace = "http://www.w3.org/1999/xhtml"
	opsNamespace   = "http://www.idpf.org/2007/ops"
	ncxNamespace   = "http://www.daisy.org/z3986/2005/ncx/"

	ncxDoctype = `<!DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd">`
)

// Nav document (EPUB 3).

type xhtmlDocument struct {
	XMLName   xml.Name  `xml:"html"`
	Xmlns     string    `xml:"xmlns,attr"`
	XmlnsEpub string    `xml:"xmlns:epub,attr"`
	Head      xhtmlHead `xml:"head"`
	Body      xhtmlBody `xml:"body"`
}

type xhtmlHead struct {
	Meta  xhtmlMeta `xml:"meta"`
	Title string    `xml:"title"`
}

type xhtmlMeta struct {
	Charset string `xml:"charset,attr"`
}

type xhtmlBody struct {
	Nav xhtmlNav `xml:"nav"`
}

type xhtmlNav struct {
	Type    string  `xml:"epub:type,attr"`
	ID      string  `xml:"id,attr"`
	Heading string  `xml:"h1"`
	List    xhtmlOL `xml:"ol"`
}

type xhtmlOL struct {
	Items []xhtmlLI `xml:"li"`
}

type xhtmlLI struct {
	Link xhtmlA   `xml:"a"`
	List *xhtmlOL `xml:"ol,omitempty"`
}

type xhtmlA struct {
	Href string `xml:"href,attr"`
	Text string `xml:",chardata"`
}

// NCX (EPUB 2).

type ncxDocument struct {
	XMLName  xml.Name  `xml:"ncx"`
	Xmlns    string    `xml:"xmlns,attr"`
	Version  string    `xml:"version,attr"`
	Head     ncxHead   `xml:"head"`
	DocTitle ncxText   `xml:"docTitle"`
	NavMap   ncxNavMap `xml:"navMap"`
}

type ncxHead struct {
	Meta []ncxMeta `xml:"meta"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxText struct {
	Text string `xml:"text"`
}

type ncxNavMap struct {
	Points []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder int           `xml:"playOrder,attr"`
	Label     ncxText       `xml:"navLabel"`
	Content   ncxContent    `xml:"content"`
	Children  []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// WriteNavDocument writes the XHTML nav document for list.
func WriteNavDocument(w io.Writer, title string, list *NavList) error {
	doc := xhtmlDocument{
		Xmlns:     xhtmlNamespace,
		XmlnsEpub: opsNamespace,
		Head: xhtmlHead{
			Meta:  xhtmlMeta{Charset: "utf-8"},
			Title: title,
		},
		Body: xhtmlBody{
			Nav: xhtmlNav{
				Type:    "toc",
				ID:      "toc",
				Heading: "Table of Contents",
				List:    toXHTMLList(list),
			},
		},
	}

	if _, err := io.WriteString(w, xml.Header+"<!DOCTYPE html>\n"); err != nil {
		return err
	}
	return encode(w, doc)
}

// NCXHead carries the book-level values of the NCX head.
type NCXHead struct {
	UID   string
	Title string
}

// WriteNCX writes the NCX document for m.
func WriteNCX(w io.Writer, head NCXHead, m *NavMap) error {
	doc := ncxDocument{
		Xmlns:   ncxNamespace,
		Version: "2005-1",
		Head: ncxHead{Meta: []ncxMeta{
			{Name: "dtb:uid", Content: head.UID},
			{Name: "dtb:depth", Content: strconv.Itoa(m.Depth())},
			{Name: "dtb:totalPageCount", Content: "0"},
			{Name: "dtb:maxPageNumber", Content: "0"},
		}},
		DocTitle: ncxText{Text: head.Title},
	}
	if m != nil {
		doc.NavMap.Points = toNCXPoints(m.Points)
	}

	if _, err := io.WriteString(w, xml.Header+ncxDoctype+"\n"); err != nil {
		return err
	}
	return encode(w, doc)
}

func encode(w io.Writer, v any) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func toXHTMLList(list *NavList) xhtmlOL {
	var ol xhtmlOL
	if list == nil {
		return ol
	}
	for _, item := range list.Items {
		li := xhtmlLI{Link: xhtmlA{Href: item.Href, Text: item.Label}}
		if item.Children != nil && len(item.Children.Items) > 0 {
			child := toXHTMLList(item.Children)
			li.List = &child
		}
		ol.Items = append(ol.Items, li)
	}
	return ol
}

func toNCXPoints(points []*NavPoint) []ncxNavPoint {
	out := make([]ncxNavPoint, 0, len(points))
	for _, p := range points {
		out = append(out, ncxNavPoint{
			ID:        p.ID,
			PlayOrder: p.PlayOrder,
			Label:     ncxText{Text: p.Label},
			Content:   ncxContent{Src: p.Src},
			Children:  toNCXPoints(p.Children),
		})
	}
	return out
}
