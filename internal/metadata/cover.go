package metadata

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// CoverResult is a validated cover image with the source stage that
// produced it, e.g. "openlibrary:isbn" or "google:search:content".
type CoverResult struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

type coverCandidate struct {
	url    string
	source string
}

// ResolveCover walks the cover source chain in priority order and returns
// the first candidate URL that validates as a reachable image. ISBN
// lookups come first, then title+author searches, then title-only
// searches when no candidate was gathered, and finally the storefront
// scrape. A miss is (zero, false), never an error.
func (r *Resolver) ResolveCover(ctx context.Context, isbn, title, author string) (CoverResult, bool) {
	isbn = strings.TrimSpace(isbn)
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)

	var cands []coverCandidate
	add := func(c coverCandidate) {
		if c.url == "" {
			return
		}
		for _, have := range cands {
			if have.url == c.url {
				return
			}
		}
		cands = append(cands, c)
	}

	if isbn != "" {
		add(coverCandidate{r.OpenLibrary.ISBNCoverURL(isbn), "openlibrary:isbn"})
		if c, ok := r.googleCandidate(ctx, "", "", isbn, "google:isbn"); ok {
			add(c)
		}
	}

	if title != "" {
		if c, ok := r.openLibraryCandidate(ctx, title, author, "openlibrary:search"); ok {
			add(c)
		}
		if c, ok := r.googleCandidate(ctx, title, author, "", "google:search"); ok {
			add(c)
		}

		// Title-only round, then the storefront scrape, each only when
		// nothing earlier produced a candidate at all.
		if len(cands) == 0 && author != "" {
			if c, ok := r.openLibraryCandidate(ctx, title, "", "openlibrary:title"); ok {
				add(c)
			}
			if c, ok := r.googleCandidate(ctx, title, "", "", "google:title"); ok {
				add(c)
			}
		}
		if len(cands) == 0 {
			if c, ok := r.storefrontCandidate(ctx, title, author); ok {
				add(c)
			}
		}
	}

	for _, c := range cands {
		if r.validateImage(ctx, c.url) {
			return CoverResult{URL: c.url, Source: c.source}, true
		}
	}
	return CoverResult{}, false
}

// openLibraryCandidate takes the top search doc and derives one cover URL:
// the cover id when present, else the doc's first ISBN.
func (r *Resolver) openLibraryCandidate(ctx context.Context, title, author, source string) (coverCandidate, bool) {
	docs, err := r.OpenLibrary.searchDocs(ctx, title, author, 1)
	if err != nil {
		slog.Warn("OpenLibrary cover search failed", "title", title, "error", err)
		return coverCandidate{}, false
	}
	if len(docs) == 0 {
		return coverCandidate{}, false
	}

	d := docs[0]
	if d.CoverID > 0 {
		return coverCandidate{r.OpenLibrary.coverIDURL(d.CoverID), source}, true
	}
	if len(d.ISBN) > 0 && d.ISBN[0] != "" {
		return coverCandidate{r.OpenLibrary.ISBNCoverURL(d.ISBN[0]), source + ":isbn"}, true
	}
	return coverCandidate{}, false
}

// googleCandidate takes the top volume and derives one cover URL: its
// image link when present, else the content-server URL for the volume id.
func (r *Resolver) googleCandidate(ctx context.Context, title, author, isbn, source string) (coverCandidate, bool) {
	vols, err := r.GoogleBooks.searchVolumes(ctx, title, author, isbn, 1)
	if err != nil {
		slog.Warn("Google Books cover search failed", "title", title, "isbn", isbn, "error", err)
		return coverCandidate{}, false
	}
	if len(vols) == 0 {
		return coverCandidate{}, false
	}

	v := vols[0]
	if u := volumeImageURL(v); u != "" {
		return coverCandidate{u, source}, true
	}
	if v.ID != "" {
		return coverCandidate{r.GoogleBooks.contentImageURL(v.ID), source + ":content"}, true
	}
	return coverCandidate{}, false
}

// storefrontCandidate scrapes the retail search page. The source tag
// records whether the browser user-agent retry was needed.
func (r *Resolver) storefrontCandidate(ctx context.Context, title, author string) (coverCandidate, bool) {
	query := title
	if author != "" {
		query = title + " " + author
	}

	url, retried, err := r.Yakaboo.FindCover(ctx, query)
	if err != nil {
		slog.Warn("storefront cover scrape failed", "query", query, "error", err)
		return coverCandidate{}, false
	}
	if url == "" {
		return coverCandidate{}, false
	}
	source := "yakaboo:search"
	if retried {
		source = "yakaboo:search:ua"
	}
	return coverCandidate{url, source}, true
}

// validateImage checks that a URL serves an actual image. A HEAD request
// with an OK status is enough; servers that reject HEAD get a GET and
// must answer with an image content type.
func (r *Resolver) validateImage(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	if resp, err := r.validateClient.Do(req); err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := r.validateClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK &&
		strings.Contains(resp.Header.Get("Content-Type"), "image")
}
