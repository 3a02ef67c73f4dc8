package api

import (
	"encoding/json"
	"net/http"
	"path"

	"github.com/dgallion1/epubmaker/internal/doctree"
	"github.com/dgallion1/epubmaker/internal/pipeline"
	"github.com/dgallion1/epubmaker/internal/resource"
)

type manifestItem struct {
	ID         string   `json:"id"`
	Href       string   `json:"href"`
	MediaType  string   `json:"media_type"`
	Properties []string `json:"properties,omitempty"`
	Source     string   `json:"source,omitempty"`
}

type tocNode struct {
	Label    string     `json:"label"`
	Level    int        `json:"level"`
	Href     string     `json:"href"`
	Children []*tocNode `json:"children,omitempty"`
}

// latest writes a 404 and returns nil until a build has completed.
func (s *Server) latest(w http.ResponseWriter) *pipeline.Result {
	res := s.orchestrator.Latest()
	if res == nil {
		jsonError(w, "no completed build", http.StatusNotFound)
	}
	return res
}

// handleManifest lists the package manifest and spine of the latest build.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	res := s.latest(w)
	if res == nil {
		return
	}

	entries := res.Manifest.Entries()
	items := make([]manifestItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, manifestItem{
			ID:         e.ID,
			Href:       e.Href,
			MediaType:  e.MediaType,
			Properties: e.Properties,
			Source:     e.Path,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"package": res.PackagePath,
		"items":   items,
		"spine":   res.Manifest.Spine(),
		"dropped": res.Dropped,
	})
}

// handleTOC returns the outline with hrefs relative to /book/.
func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	res := s.latest(w)
	if res == nil {
		return
	}

	dir := path.Join("xhtml", res.Name)
	var convert func(nodes []*doctree.OutlineNode) []*tocNode
	convert = func(nodes []*doctree.OutlineNode) []*tocNode {
		out := make([]*tocNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, &tocNode{
				Label:    n.Label,
				Level:    n.Level,
				Href:     resource.HrefFragment(path.Join(dir, res.Documents[n.Target.DocumentIndex]), n.Target.AnchorID),
				Children: convert(n.Children),
			})
		}
		return out
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"title":   s.cfg.Title,
		"entries": convert(res.Outline),
	})
}

// handleArchive serves the .epub of the latest build when one was written.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	res := s.latest(w)
	if res == nil {
		return
	}
	if res.Archive == "" {
		jsonError(w, "archive not enabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/epub+zip")
	http.ServeFile(w, r, res.Archive)
}
