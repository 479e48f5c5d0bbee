package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lepinkainen/tome/internal/metadata"
)

// ExternalHandler serves the provider search and cover resolution
// endpoints. Both degrade to empty results when every provider is down.
type ExternalHandler struct {
	resolver *metadata.Resolver
}

func NewExternalHandler(resolver *metadata.Resolver) *ExternalHandler {
	return &ExternalHandler{resolver: resolver}
}

func (h *ExternalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.search)
	r.Get("/cover", h.cover)
	return r
}

type searchResponse struct {
	Items []metadata.Candidate `json:"items"`
}

func (h *ExternalHandler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusOK, searchResponse{Items: []metadata.Candidate{}})
		return
	}

	items := h.resolver.Search(r.Context(), q)
	if items == nil {
		items = []metadata.Candidate{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items})
}

type coverResponse struct {
	URL    *string `json:"url"`
	Source *string `json:"source"`
}

func (h *ExternalHandler) cover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	isbn := strings.TrimSpace(q.Get("isbn"))
	title := strings.TrimSpace(q.Get("title"))
	author := strings.TrimSpace(q.Get("author"))

	if isbn == "" && title == "" {
		writeJSON(w, http.StatusOK, coverResponse{})
		return
	}

	res, found := h.resolver.ResolveCover(r.Context(), isbn, title, author)
	if !found {
		writeJSON(w, http.StatusOK, coverResponse{})
		return
	}
	writeJSON(w, http.StatusOK, coverResponse{URL: &res.URL, Source: &res.Source})
}
