// Package toc reduces flat, leveled heading sequences into the book outline.
package toc

import "github.com/dgallion1/epubmaker/internal/doctree"

// Build concatenates the per-document heading sequences, which must already
// be in spine order, and nests them with a level stack. A heading becomes a
// child of the nearest preceding heading with a strictly lower level, however
// large the gap; levels are never renumbered and no filler nodes are created.
func Build(perDocument [][]doctree.HeadingMatch) doctree.Outline {
	type stackEntry struct {
		node  *doctree.OutlineNode
		level int
	}

	var roots doctree.Outline
	var stack []stackEntry

	for _, matches := range perDocument {
		for _, m := range matches {
			node := &doctree.OutlineNode{
				Label: m.Label,
				Level: m.Level,
				Target: doctree.Target{
					DocumentIndex: m.DocumentIndex,
					AnchorID:      m.AnchorID,
				},
			}

			// Close siblings and deeper cousins.
			for len(stack) > 0 && stack[len(stack)-1].level >= m.Level {
				stack = stack[:len(stack)-1]
			}

			if len(stack) == 0 {
				roots = append(roots, node)
			} else {
				parent := stack[len(stack)-1].node
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, stackEntry{node: node, level: m.Level})
		}
	}

	return roots
}
