package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lepinkainen/tome/internal/cache"
	"github.com/lepinkainen/tome/internal/ratelimit"
)

const (
	defaultOpenLibraryBaseURL   = "https://openlibrary.org"
	defaultOpenLibraryCoversURL = "https://covers.openlibrary.org"
)

// OpenLibraryClient talks to the OpenLibrary search API and cover service.
type OpenLibraryClient struct {
	BaseURL       string
	CoversBaseURL string
	httpClient    *http.Client
	limiter       *ratelimit.Limiter
}

// NewOpenLibraryClient creates a client with production endpoints and a
// conservative request rate.
func NewOpenLibraryClient() *OpenLibraryClient {
	return &OpenLibraryClient{
		BaseURL:       defaultOpenLibraryBaseURL,
		CoversBaseURL: defaultOpenLibraryCoversURL,
		httpClient:    &http.Client{Timeout: 9 * time.Second},
		limiter:       ratelimit.New("OpenLibrary", 1),
	}
}

// olSearchDoc matches one entry of the search.json docs array.
type olSearchDoc struct {
	Title               string   `json:"title"`
	Subtitle            string   `json:"subtitle"`
	AuthorName          []string `json:"author_name"`
	NumberOfPagesMedian int      `json:"number_of_pages_median"`
	CoverID             int64    `json:"cover_i"`
	ISBN                []string `json:"isbn"`
	// first_sentence varies between a string and a list of strings
	FirstSentence any `json:"first_sentence"`
}

type olSearchResponse struct {
	Docs []olSearchDoc `json:"docs"`
}

// cachedOLSearch wraps search docs for the response cache.
type cachedOLSearch struct {
	Docs []olSearchDoc `json:"docs"`
}

// searchDocs queries search.json with an optional author constraint.
// Responses are cached; empty result sets get the shorter negative TTL.
func (c *OpenLibraryClient) searchDocs(ctx context.Context, title, author string, limit int) ([]olSearchDoc, error) {
	cacheKey := fmt.Sprintf("search|%s|%s|%d", title, author, limit)
	cached, _, err := cache.GetOrFetchWithTTL("openlibrary_cache", cacheKey, func() (*cachedOLSearch, error) {
		docs, err := c.fetchSearch(ctx, title, author, limit)
		if err != nil {
			return nil, err
		}
		return &cachedOLSearch{Docs: docs}, nil
	}, cache.SelectNegativeCacheTTL(func(r *cachedOLSearch) bool {
		return len(r.Docs) == 0
	}))
	if err != nil {
		return nil, err
	}
	return cached.Docs, nil
}

func (c *OpenLibraryClient) fetchSearch(ctx context.Context, title, author string, limit int) ([]olSearchDoc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.BaseURL + "/search.json")
	if err != nil {
		return nil, fmt.Errorf("invalid OpenLibrary base URL: %w", err)
	}
	q := u.Query()
	q.Set("title", title)
	if author != "" {
		q.Set("author", author)
	}
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenLibrary search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenLibrary returned status %d", resp.StatusCode)
	}

	var result olSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding OpenLibrary response: %w", err)
	}
	return result.Docs, nil
}

// Search returns normalized candidates for a title (+ optional author).
func (c *OpenLibraryClient) Search(ctx context.Context, title, author string, limit int) ([]Candidate, error) {
	docs, err := c.searchDocs(ctx, title, author, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(docs))
	for _, d := range docs {
		candidates = append(candidates, c.docToCandidate(d))
	}
	return candidates, nil
}

func (c *OpenLibraryClient) docToCandidate(d olSearchDoc) Candidate {
	cand := Candidate{
		Source:      SourceOpenLibrary,
		Title:       d.Title,
		Pages:       d.NumberOfPagesMedian,
		CoverURL:    c.docCoverURL(d),
		Description: docDescription(d),
	}
	if len(d.AuthorName) > 0 {
		cand.Author = d.AuthorName[0]
	}
	if len(d.ISBN) > 0 {
		cand.ISBN = d.ISBN[0]
	}
	return cand
}

// docCoverURL prefers the direct cover id, falls back to an ISBN-derived
// cover URL, else empty.
func (c *OpenLibraryClient) docCoverURL(d olSearchDoc) string {
	if d.CoverID > 0 {
		return c.coverIDURL(d.CoverID)
	}
	if len(d.ISBN) > 0 && d.ISBN[0] != "" {
		return c.ISBNCoverURL(d.ISBN[0])
	}
	return ""
}

func (c *OpenLibraryClient) coverIDURL(id int64) string {
	return fmt.Sprintf("%s/b/id/%d-L.jpg", c.CoversBaseURL, id)
}

// ISBNCoverURL builds the direct ISBN-keyed cover URL.
func (c *OpenLibraryClient) ISBNCoverURL(isbn string) string {
	return fmt.Sprintf("%s/b/isbn/%s-L.jpg", c.CoversBaseURL, url.PathEscape(isbn))
}

// docDescription extracts the best descriptive text from a search doc:
// first sentence, else subtitle.
func docDescription(d olSearchDoc) string {
	switch v := d.FirstSentence.(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s
			}
		}
	}
	return d.Subtitle
}
