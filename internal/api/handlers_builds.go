package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/epubmaker/internal/pipeline"
)

func (s *Server) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	build := pipeline.NewBuild()
	if err := s.orchestrator.Submit(build); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"build_id": build.ID,
		"status":   build.Snapshot().Status,
		"poll_url": fmt.Sprintf("/api/builds/%s", build.ID),
	})
}

func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	build := s.orchestrator.GetBuild(buildID)
	if build == nil {
		jsonError(w, "build not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(build.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"queue_depth": s.orchestrator.QueueDepth(),
	}
	if res := s.orchestrator.Latest(); res != nil {
		stats["latest"] = map[string]any{
			"documents":   len(res.Documents),
			"resources":   res.Resources,
			"dropped":     len(res.Dropped),
			"skipped":     len(res.Skipped),
			"toc_entries": res.Outline.Len(),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
