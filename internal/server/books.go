package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lepinkainen/tome/internal/book"
	"github.com/lepinkainen/tome/internal/datastore"
	"github.com/lepinkainen/tome/internal/enrich"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// BooksHandler serves the catalog CRUD endpoints plus the bulk import and
// batch enrichment actions.
type BooksHandler struct {
	store  *datastore.Store
	runner *enrich.Runner
}

func NewBooksHandler(store *datastore.Store, runner *enrich.Runner) *BooksHandler {
	return &BooksHandler{store: store, runner: runner}
}

func (h *BooksHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id:[0-9]+}", h.get)
	r.Put("/{id:[0-9]+}", h.update)
	r.Delete("/{id:[0-9]+}", h.delete)
	r.Post("/bulk", h.bulkCreate)
	r.Post("/enrich", h.enrich)
	return r
}

type listResponse struct {
	Items  []book.Book `json:"items"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func (h *BooksHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultPageSize
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}

	filter := datastore.ListFilter{
		Query:  q.Get("query"),
		Limit:  limit,
		Offset: offset,
	}
	// Unrecognized status values fall through unfiltered.
	if s, ok := book.ParseStatus(q.Get("status")); ok {
		filter.Status = s
	}

	items, err := h.store.ListBooks(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if items == nil {
		items = []book.Book{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Limit: limit, Offset: offset})
}

func (h *BooksHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	b, err := h.store.GetBook(r.Context(), id)
	if errors.Is(err, datastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BooksHandler) create(w http.ResponseWriter, r *http.Request) {
	var p book.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := h.store.InsertBook(r.Context(), p.ToBook(0))
	if errors.Is(err, datastore.ErrConflict) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	created, err := h.store.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// update merges the request body over the stored record, so a partial
// body only changes the fields it names.
func (h *BooksHandler) update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	existing, err := h.store.GetBook(r.Context(), id)
	if errors.Is(err, datastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	p := payloadFromBook(existing)
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.UpdateBook(r.Context(), p.ToBook(id)); err != nil {
		switch {
		case errors.Is(err, datastore.ErrConflict):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, datastore.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		default:
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	updated, err := h.store.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *BooksHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	err := h.store.DeleteBook(r.Context(), id)
	if errors.Is(err, datastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type bulkConflict struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type bulkReport struct {
	Created   int            `json:"created"`
	Skipped   int            `json:"skipped"`
	Conflicts []bulkConflict `json:"conflicts"`
}

// bulkCreate inserts a JSON array of books, skipping invalid entries and
// reporting title/author conflicts individually.
func (h *BooksHandler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	var items []book.Payload
	if err := decodeJSON(r, &items); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON array of books")
		return
	}

	report := bulkReport{Conflicts: []bulkConflict{}}
	for i := range items {
		p := &items[i]
		p.Normalize()
		if err := p.Validate(); err != nil {
			report.Skipped++
			continue
		}

		_, err := h.store.InsertBook(r.Context(), p.ToBook(0))
		switch {
		case errors.Is(err, datastore.ErrConflict):
			report.Skipped++
			report.Conflicts = append(report.Conflicts, bulkConflict{Title: p.Title, Author: p.Author})
		case err != nil:
			report.Skipped++
		default:
			report.Created++
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *BooksHandler) enrich(w http.ResponseWriter, r *http.Request) {
	updated, err := h.runner.EnrichAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "enrichment failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func payloadFromBook(b *book.Book) book.Payload {
	return book.Payload{
		Title:         b.Title,
		Author:        b.Author,
		PageCount:     b.PageCount,
		Status:        string(b.Status),
		ISBN:          b.ISBN,
		CoverURL:      b.CoverURL,
		Description:   b.Description,
		YearPublished: b.YearPublished,
		Genre:         b.Genre,
	}
}
