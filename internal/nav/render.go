// Package nav renders the book outline as an EPUB 3 navigation list and as
// its EPUB 2 NCX mirror. Both are built in one pass so they always share
// the same shape and targets.
package nav

import (
	"fmt"

	"github.com/dgallion1/epubmaker/internal/doctree"
)

// Linker turns outline targets into hrefs for each output artifact.
type Linker interface {
	// NavHref is relative to the nav document.
	NavHref(t doctree.Target) string
	// NCXSrc is relative to the NCX file.
	NCXSrc(t doctree.Target) string
}

// NavList is an <ol> of the nav document.
type NavList struct {
	Items []*NavItem
}

// NavItem is an <li> holding one link and an optional nested list.
type NavItem struct {
	Label    string
	Href     string
	Target   doctree.Target
	Children *NavList // nil for leaves
}

// NavMap is the NCX navMap.
type NavMap struct {
	Points []*NavPoint
}

// NavPoint is one NCX navPoint.
type NavPoint struct {
	ID        string
	PlayOrder int
	Label     string
	Src       string
	Target    doctree.Target
	Children  []*NavPoint
}

// Render mirrors the outline into a nav list and an NCX map. NavPoint ids
// and play order are sequential in document order and only unique within
// one call.
func Render(outline doctree.Outline, link Linker) (*NavList, *NavMap) {
	seq := 0
	var render func(nodes []*doctree.OutlineNode) (*NavList, []*NavPoint)
	render = func(nodes []*doctree.OutlineNode) (*NavList, []*NavPoint) {
		list := &NavList{Items: make([]*NavItem, 0, len(nodes))}
		points := make([]*NavPoint, 0, len(nodes))
		for _, n := range nodes {
			seq++
			item := &NavItem{
				Label:  n.Label,
				Href:   link.NavHref(n.Target),
				Target: n.Target,
			}
			point := &NavPoint{
				ID:        fmt.Sprintf("navpoint-%d", seq),
				PlayOrder: seq,
				Label:     n.Label,
				Src:       link.NCXSrc(n.Target),
				Target:    n.Target,
			}
			if len(n.Children) > 0 {
				item.Children, point.Children = render(n.Children)
			}
			list.Items = append(list.Items, item)
			points = append(points, point)
		}
		return list, points
	}

	list, points := render(outline)
	return list, &NavMap{Points: points}
}

// Isomorphic reports whether the nav list and the NCX map describe the same
// forest: same shape, labels and targets at every position.
func Isomorphic(list *NavList, m *NavMap) bool {
	var items []*NavItem
	if list != nil {
		items = list.Items
	}
	var points []*NavPoint
	if m != nil {
		points = m.Points
	}
	return sameForest(items, points)
}

func sameForest(items []*NavItem, points []*NavPoint) bool {
	if len(items) != len(points) {
		return false
	}
	for i, item := range items {
		p := points[i]
		if item.Label != p.Label || item.Target != p.Target {
			return false
		}
		var children []*NavItem
		if item.Children != nil {
			children = item.Children.Items
		}
		if !sameForest(children, p.Children) {
			return false
		}
	}
	return true
}

// Count returns the number of items in the list, recursively.
func (l *NavList) Count() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, item := range l.Items {
		n += 1 + item.Children.Count()
	}
	return n
}

// Count returns the number of navPoints in the map, recursively.
func (m *NavMap) Count() int {
	if m == nil {
		return 0
	}
	return countPoints(m.Points)
}

// Depth returns the nesting depth of the map, at least 1.
func (m *NavMap) Depth() int {
	d := 0
	if m != nil {
		d = pointDepth(m.Points)
	}
	if d < 1 {
		d = 1
	}
	return d
}

func countPoints(points []*NavPoint) int {
	n := 0
	for _, p := range points {
		n += 1 + countPoints(p.Children)
	}
	return n
}

func pointDepth(points []*NavPoint) int {
	max := 0
	for _, p := range points {
		if d := 1 + pointDepth(p.Children); d > max {
			max = d
		}
	}
	return max
}
