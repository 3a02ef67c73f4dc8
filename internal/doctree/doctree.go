package doctree

// Document is a loaded content document, ready for registration.
type Document struct {
	Index    int            // Position in reading order
	Path     string         // Normalized, root-relative source path
	Title    string         // <title> text, if any
	Headings []HeadingMatch // TOC headings in document order
	Refs     []Ref          // Local resources referenced by the document
	Content  []byte         // Rewritten XHTML to materialize
}

// RefKind classifies where a reference was found.
type RefKind string

const (
	RefImage      RefKind = "image"
	RefScript     RefKind = "script"
	RefStylesheet RefKind = "stylesheet"
	RefLink       RefKind = "link"
	RefMedia      RefKind = "media"
)

// Ref is a raw resource reference as it appears in the document.
type Ref struct {
	Kind RefKind
	Src  string // Attribute value, relative to the document
}

// HeadingMatch is one heading-like element matched by a TOC level selector.
type HeadingMatch struct {
	DocumentIndex int
	Level         int
	Label         string
	AnchorID      string // Unique within the document
}

// Target addresses an anchor inside a document.
type Target struct {
	DocumentIndex int
	AnchorID      string
}

// OutlineNode is a node of the book-wide table of contents.
type OutlineNode struct {
	Label    string
	Level    int
	Target   Target
	Children []*OutlineNode
}

// Outline is the ordered forest of top-level outline nodes.
type Outline []*OutlineNode

// Walk visits every node depth-first in document order. depth starts at 1.
func (o Outline) Walk(fn func(node *OutlineNode, depth int)) {
	var walk func(nodes []*OutlineNode, depth int)
	walk = func(nodes []*OutlineNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(o, 1)
}

// Len returns the total number of nodes in the forest.
func (o Outline) Len() int {
	n := 0
	o.Walk(func(*OutlineNode, int) { n++ })
	return n
}

// Depth returns the nesting depth of the deepest node (0 for an empty forest).
func (o Outline) Depth() int {
	max := 0
	o.Walk(func(_ *OutlineNode, depth int) {
		if depth > max {
			max = depth
		}
	})
	return max
}
