package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/tome/internal/datastore"
	"github.com/lepinkainen/tome/internal/metadata"
	"github.com/lepinkainen/tome/internal/testutil"
)

const booksSchema = `
CREATE TABLE books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	page_count INTEGER,
	status TEXT NOT NULL DEFAULT 'PLANNED',
	added_at TEXT NOT NULL DEFAULT (datetime('now')),
	isbn TEXT,
	cover_url TEXT,
	description TEXT,
	year_published INTEGER,
	genre TEXT,
	UNIQUE(title, author)
);`

func newStore(t *testing.T) *datastore.Store {
	t.Helper()
	store, err := datastore.Open(filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.DB().Exec(booksSchema)
	require.NoError(t, err)
	return store
}

// newTestResolver points every provider at a dead server; tests override
// the endpoints they need.
func newTestResolver(t *testing.T) *metadata.Resolver {
	t.Helper()
	testutil.SetupTestCache(t)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(dead.Close)

	r := metadata.NewResolver()
	r.OpenLibrary.BaseURL = dead.URL
	r.OpenLibrary.CoversBaseURL = dead.URL
	r.GoogleBooks.BaseURL = dead.URL
	r.GoogleBooks.ContentURL = dead.URL + "/content"
	r.Yakaboo.SearchURL = dead.URL + "/search?q="
	return r
}

func insertBook(t *testing.T, store *datastore.Store, title, author string, cover, desc *string) int64 {
	t.Helper()
	res, err := store.DB().Exec(
		"INSERT INTO books (title, author, status, cover_url, description) VALUES (?, ?, 'PLANNED', ?, ?)",
		title, author, cover, desc)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func str(s string) *string { return &s }

func TestEnrichAllFillsMissingMetadata(t *testing.T) {
	store := newStore(t)
	resolver := newTestResolver(t)

	olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search.json":
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"docs": []map[string]any{{
					"title":          "Dune",
					"author_name":   []string{"Frank Herbert"},
					"cover_i":        int64(12345),
					"first_sentence": "A beginning is the time for taking the most delicate care.",
				}},
			}))
		case "/b/id/12345-L.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
		default:
			http.NotFound(w, r)
		}
	}))
	defer olSrv.Close()
	resolver.OpenLibrary.BaseURL = olSrv.URL
	resolver.OpenLibrary.CoversBaseURL = olSrv.URL

	id := insertBook(t, store, "Dune", "Frank Herbert", nil, nil)
	complete := insertBook(t, store, "Dune Messiah", "Frank Herbert",
		str("https://example.com/cover.jpg"), str("Already described."))

	updated, err := NewRunner(store, resolver).EnrichAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := store.GetBook(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got.CoverURL)
	assert.Equal(t, olSrv.URL+"/b/id/12345-L.jpg", *got.CoverURL)
	require.NotNil(t, got.Description)
	assert.Equal(t, "A beginning is the time for taking the most delicate care.", *got.Description)

	untouched, err := store.GetBook(context.Background(), complete)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cover.jpg", *untouched.CoverURL)
	assert.Equal(t, "Already described.", *untouched.Description)
}

func TestEnrichAllKeepsExistingCover(t *testing.T) {
	store := newStore(t)
	resolver := newTestResolver(t)

	olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"docs": []map[string]any{{
				"title":          "Dune",
				"first_sentence": "Found description.",
			}},
		}))
	}))
	defer olSrv.Close()
	resolver.OpenLibrary.BaseURL = olSrv.URL

	id := insertBook(t, store, "Dune", "Frank Herbert", str("https://example.com/manual.jpg"), nil)

	updated, err := NewRunner(store, resolver).EnrichAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := store.GetBook(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/manual.jpg", *got.CoverURL, "existing cover survives")
	require.NotNil(t, got.Description)
	assert.Equal(t, "Found description.", *got.Description)
}

func TestEnrichAllNothingFound(t *testing.T) {
	store := newStore(t)
	resolver := newTestResolver(t)

	insertBook(t, store, "Obscure Zine", "Nobody", nil, nil)

	updated, err := NewRunner(store, resolver).EnrichAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestEnrichOneNotFound(t *testing.T) {
	store := newStore(t)
	resolver := newTestResolver(t)

	_, err := NewRunner(store, resolver).EnrichOne(context.Background(), 999)
	assert.True(t, errors.Is(err, datastore.ErrNotFound))
}
