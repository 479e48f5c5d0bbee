package metadata

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// fallbackThreshold triggers a second, title-only search round when the
// combined first-round result count stays below it.
const fallbackThreshold = 12

const searchLimit = 10

// Resolver combines the external catalog providers behind one search and
// cover-resolution surface. Provider failures are swallowed: a dead
// provider contributes zero candidates, never an error.
type Resolver struct {
	OpenLibrary *OpenLibraryClient
	GoogleBooks *GoogleBooksClient
	Yakaboo     *YakabooProbe

	// validateClient performs cover reachability checks.
	validateClient *http.Client
}

// NewResolver creates a resolver with production provider clients.
func NewResolver() *Resolver {
	return &Resolver{
		OpenLibrary:    NewOpenLibraryClient(),
		GoogleBooks:    NewGoogleBooksClient(),
		Yakaboo:        NewYakabooProbe(),
		validateClient: &http.Client{Timeout: 6 * time.Second},
	}
}

// SplitQuery splits a free-form query on the em-dash separator into title
// and author. Without a separator the whole query is the title.
func SplitQuery(q string) (title, author string) {
	parts := strings.SplitN(q, "—", 2)
	title = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		author = strings.TrimSpace(parts[1])
	}
	if title == "" {
		title = strings.TrimSpace(q)
		author = ""
	}
	return title, author
}

// Search queries both providers for the given query and returns
// de-duplicated candidates. When the first title+author round yields too
// few results, a title-only round is appended.
func (r *Resolver) Search(ctx context.Context, query string) []Candidate {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Candidate{}
	}

	title, author := SplitQuery(query)

	items := r.searchRound(ctx, title, author)
	if len(items) < fallbackThreshold && author != "" {
		items = append(items, r.searchRound(ctx, title, "")...)
	}

	return DedupeCandidates(items)
}

// searchRound runs one round against both providers, sequentially, each
// failing independently.
func (r *Resolver) searchRound(ctx context.Context, title, author string) []Candidate {
	var items []Candidate

	if ol, err := r.OpenLibrary.Search(ctx, title, author, searchLimit); err != nil {
		slog.Warn("OpenLibrary search failed", "title", title, "author", author, "error", err)
	} else {
		items = append(items, ol...)
	}

	if gb, err := r.GoogleBooks.Search(ctx, title, author, searchLimit); err != nil {
		slog.Warn("Google Books search failed", "title", title, "author", author, "error", err)
	} else {
		items = append(items, gb...)
	}

	return items
}

// FindDescription returns the first available descriptive text for a book:
// OpenLibrary's first sentence or subtitle, then Google Books' description
// or subtitle. Empty string when neither provider has one.
func (r *Resolver) FindDescription(ctx context.Context, title, author string) string {
	if docs, err := r.OpenLibrary.searchDocs(ctx, title, author, 1); err != nil {
		slog.Warn("OpenLibrary description lookup failed", "title", title, "error", err)
	} else if len(docs) > 0 {
		if desc := docDescription(docs[0]); desc != "" {
			return desc
		}
	}

	if items, err := r.GoogleBooks.searchVolumes(ctx, title, author, "", 1); err != nil {
		slog.Warn("Google Books description lookup failed", "title", title, "error", err)
	} else if len(items) > 0 {
		v := items[0].VolumeInfo
		if v.Description != "" {
			return v.Description
		}
		if v.Subtitle != "" {
			return v.Subtitle
		}
	}

	return ""
}
