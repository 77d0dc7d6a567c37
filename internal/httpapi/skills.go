package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"goa.design/agentgateway/internal/skills"
)

// handleListSkills serves GET /api/skills.
func handleListSkills(dir *skills.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := dir.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"skills": list})
	}
}

// handleGetSkill serves GET /api/skills/{id}.
func handleGetSkill(dir *skills.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		skill, err := dir.Get(id)
		if err != nil {
			http.Error(w, "skill not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, skill)
	}
}
