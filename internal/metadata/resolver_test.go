package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/tome/internal/ratelimit"
	"github.com/lepinkainen/tome/internal/testutil"
)

// newTestResolver builds a resolver whose providers all point at a dead
// server. Tests override the endpoints they actually exercise.
func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	testutil.SetupTestCache(t)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(dead.Close)

	ol := NewOpenLibraryClient()
	ol.BaseURL = dead.URL
	ol.CoversBaseURL = dead.URL
	ol.limiter = ratelimit.New("OpenLibrary", 1000)

	gb := NewGoogleBooksClient()
	gb.BaseURL = dead.URL
	gb.ContentURL = dead.URL + "/content"
	gb.limiter = ratelimit.New("GoogleBooks", 1000)

	yak := NewYakabooProbe()
	yak.SearchURL = dead.URL + "/search?q="

	return &Resolver{
		OpenLibrary:    ol,
		GoogleBooks:    gb,
		Yakaboo:        yak,
		validateClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func olResponse(docs ...olSearchDoc) olSearchResponse {
	return olSearchResponse{Docs: docs}
}

func gbResponse(items ...gbVolume) gbSearchResponse {
	return gbSearchResponse{TotalItems: len(items), Items: items}
}

func gbTestVolume(id, title, author, thumbnail string) gbVolume {
	var v gbVolume
	v.ID = id
	v.VolumeInfo.Title = title
	v.VolumeInfo.Authors = []string{author}
	v.VolumeInfo.ImageLinks.Thumbnail = thumbnail
	return v
}

func TestSplitQuery(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantTitle  string
		wantAuthor string
	}{
		{"title only", "Dune", "Dune", ""},
		{"title and author", "Dune — Frank Herbert", "Dune", "Frank Herbert"},
		{"extra whitespace", "  Dune  —  Frank Herbert  ", "Dune", "Frank Herbert"},
		{"empty title part", "— Frank Herbert", "— Frank Herbert", ""},
		{"hyphen is not a separator", "Catch-22", "Catch-22", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, author := SplitQuery(tt.query)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantAuthor, author)
		})
	}
}

func TestSearchMergesProviders(t *testing.T) {
	r := newTestResolver(t)

	olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, olResponse(olSearchDoc{
			Title:               "Dune",
			AuthorName:          []string{"Frank Herbert"},
			NumberOfPagesMedian: 412,
		}))
	}))
	defer olSrv.Close()
	r.OpenLibrary.BaseURL = olSrv.URL

	gbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, gbResponse(gbTestVolume("vol1", "Dune Messiah", "Frank Herbert", "")))
	}))
	defer gbSrv.Close()
	r.GoogleBooks.BaseURL = gbSrv.URL

	got := r.Search(context.Background(), "Dune — Frank Herbert")
	require.Len(t, got, 2)
	assert.Equal(t, SourceOpenLibrary, got[0].Source)
	assert.Equal(t, "Dune", got[0].Title)
	assert.Equal(t, 412, got[0].Pages)
	assert.Equal(t, SourceGoogleBooks, got[1].Source)
	assert.Equal(t, "Dune Messiah", got[1].Title)
}

func TestSearchDeduplicatesAcrossProviders(t *testing.T) {
	r := newTestResolver(t)

	olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, olResponse(olSearchDoc{Title: "Dune", AuthorName: []string{"Frank Herbert"}}))
	}))
	defer olSrv.Close()
	r.OpenLibrary.BaseURL = olSrv.URL

	gbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, gbResponse(gbTestVolume("vol1", "DUNE", "frank herbert", "")))
	}))
	defer gbSrv.Close()
	r.GoogleBooks.BaseURL = gbSrv.URL

	got := r.Search(context.Background(), "Dune — Frank Herbert")
	require.Len(t, got, 1)
	assert.Equal(t, SourceOpenLibrary, got[0].Source, "first provider wins on duplicate title/author")
}

func TestSearchTitleOnlyFallbackRound(t *testing.T) {
	r := newTestResolver(t)

	var olQueries []string
	olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		olQueries = append(olQueries, req.URL.Query().Get("author"))
		if req.URL.Query().Get("author") == "" {
			writeJSON(t, w, olResponse(olSearchDoc{Title: "Кобзар", AuthorName: []string{"Тарас Шевченко"}}))
			return
		}
		writeJSON(t, w, olResponse())
	}))
	defer olSrv.Close()
	r.OpenLibrary.BaseURL = olSrv.URL

	gbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, gbResponse())
	}))
	defer gbSrv.Close()
	r.GoogleBooks.BaseURL = gbSrv.URL

	got := r.Search(context.Background(), "Кобзар — Taras Shevchenko")
	require.Len(t, got, 1)
	assert.Equal(t, "Кобзар", got[0].Title)
	assert.Equal(t, []string{"Taras Shevchenko", ""}, olQueries, "second round drops the author")
}

func TestSearchSkipsFallbackWhenEnoughResults(t *testing.T) {
	r := newTestResolver(t)

	var olCalls int
	olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		olCalls++
		docs := make([]olSearchDoc, fallbackThreshold)
		for i := range docs {
			docs[i] = olSearchDoc{Title: "Dune " + string(rune('A'+i)), AuthorName: []string{"Frank Herbert"}}
		}
		writeJSON(t, w, olResponse(docs...))
	}))
	defer olSrv.Close()
	r.OpenLibrary.BaseURL = olSrv.URL

	gbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, gbResponse())
	}))
	defer gbSrv.Close()
	r.GoogleBooks.BaseURL = gbSrv.URL

	got := r.Search(context.Background(), "Dune — Frank Herbert")
	assert.Len(t, got, fallbackThreshold)
	assert.Equal(t, 1, olCalls, "no title-only round when the first round is rich enough")
}

func TestSearchSurvivesProviderFailure(t *testing.T) {
	r := newTestResolver(t)

	gbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, gbResponse(gbTestVolume("vol1", "Dune", "Frank Herbert", "")))
	}))
	defer gbSrv.Close()
	r.GoogleBooks.BaseURL = gbSrv.URL

	// OpenLibrary stays on the dead server and 404s.
	got := r.Search(context.Background(), "Dune — Frank Herbert")
	require.Len(t, got, 1)
	assert.Equal(t, SourceGoogleBooks, got[0].Source)
}

func TestSearchEmptyQuery(t *testing.T) {
	r := newTestResolver(t)
	assert.Empty(t, r.Search(context.Background(), "   "))
}

func TestFindDescription(t *testing.T) {
	tests := []struct {
		name   string
		olDoc  *olSearchDoc
		gbDesc string
		want   string
	}{
		{
			name:  "openlibrary first sentence string",
			olDoc: &olSearchDoc{Title: "Dune", FirstSentence: "A beginning is the time for taking the most delicate care."},
			want:  "A beginning is the time for taking the most delicate care.",
		},
		{
			name:  "openlibrary first sentence list",
			olDoc: &olSearchDoc{Title: "Dune", FirstSentence: []any{"First of the list."}},
			want:  "First of the list.",
		},
		{
			name:  "openlibrary subtitle fallback",
			olDoc: &olSearchDoc{Title: "Dune", Subtitle: "A novel of sand"},
			want:  "A novel of sand",
		},
		{
			name:   "google description when openlibrary has nothing",
			olDoc:  nil,
			gbDesc: "Science fiction classic.",
			want:   "Science fiction classic.",
		},
		{
			name: "no description anywhere",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t)

			olSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if tt.olDoc == nil {
					writeJSON(t, w, olResponse())
					return
				}
				writeJSON(t, w, olResponse(*tt.olDoc))
			}))
			defer olSrv.Close()
			r.OpenLibrary.BaseURL = olSrv.URL

			gbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				vol := gbTestVolume("vol1", "Dune", "Frank Herbert", "")
				vol.VolumeInfo.Description = tt.gbDesc
				if tt.gbDesc == "" {
					writeJSON(t, w, gbResponse())
					return
				}
				writeJSON(t, w, gbResponse(vol))
			}))
			defer gbSrv.Close()
			r.GoogleBooks.BaseURL = gbSrv.URL

			assert.Equal(t, tt.want, r.FindDescription(context.Background(), "Dune", "Frank Herbert"))
		})
	}
}

func TestDedupeCandidatesKeepsFirst(t *testing.T) {
	items := []Candidate{
		{Source: SourceOpenLibrary, Title: "Dune", Author: "Frank Herbert", Pages: 412},
		{Source: SourceGoogleBooks, Title: "dune", Author: "FRANK HERBERT", Pages: 500},
		{Source: SourceGoogleBooks, Title: "Dune Messiah", Author: "Frank Herbert"},
	}
	got := DedupeCandidates(items)
	require.Len(t, got, 2)
	assert.Equal(t, 412, got[0].Pages)
	assert.Equal(t, "Dune Messiah", got[1].Title)
}
