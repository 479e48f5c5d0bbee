package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lepinkainen/tome/internal/datastore"
)

// DebugHandler exposes database introspection for development. It is only
// mounted when the debug.db config flag is on.
type DebugHandler struct {
	store *datastore.Store
}

func NewDebugHandler(store *datastore.Store) *DebugHandler {
	return &DebugHandler{store: store}
}

func (h *DebugHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/db", h.dbInfo)
	return r
}

type tableInfo struct {
	Table   string             `json:"table"`
	Count   int                `json:"count"`
	Columns []datastore.Column `json:"columns"`
}

func (h *DebugHandler) dbInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names, err := h.store.AllTables(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tables := make([]tableInfo, 0, len(names))
	for _, name := range names {
		cols, err := h.store.TableColumns(ctx, name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		count, err := h.store.TableCount(ctx, name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		tables = append(tables, tableInfo{Table: name, Count: count, Columns: cols})
	}

	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}
