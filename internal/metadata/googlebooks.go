package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/tome/internal/cache"
	"github.com/lepinkainen/tome/internal/ratelimit"
)

const (
	defaultGoogleBooksBaseURL    = "https://www.googleapis.com/books/v1"
	defaultGoogleBooksContentURL = "https://books.google.com/books/content"
)

// GoogleBooksClient talks to the Google Books volumes API.
type GoogleBooksClient struct {
	BaseURL    string
	ContentURL string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewGoogleBooksClient creates a client with production endpoints.
func NewGoogleBooksClient() *GoogleBooksClient {
	return &GoogleBooksClient{
		BaseURL:    defaultGoogleBooksBaseURL,
		ContentURL: defaultGoogleBooksContentURL,
		httpClient: &http.Client{Timeout: 9 * time.Second},
		limiter:    ratelimit.New("GoogleBooks", 1),
	}
}

type gbVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		PageCount           int      `json:"pageCount"`
		Description         string   `json:"description"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail      string `json:"thumbnail"`
			SmallThumbnail string `json:"smallThumbnail"`
			Small          string `json:"small"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

type gbSearchResponse struct {
	TotalItems int        `json:"totalItems"`
	Items      []gbVolume `json:"items"`
}

type cachedGBSearch struct {
	Items []gbVolume `json:"items"`
}

// buildQuery assembles the structured q parameter. An ISBN query always
// stands alone.
func buildQuery(title, author, isbn string) string {
	if isbn != "" {
		return "isbn:" + isbn
	}
	q := "intitle:" + title
	if author != "" {
		q += "+inauthor:" + author
	}
	return q
}

// searchVolumes queries the volumes endpoint. Responses are cached; empty
// result sets get the shorter negative TTL.
func (c *GoogleBooksClient) searchVolumes(ctx context.Context, title, author, isbn string, maxResults int) ([]gbVolume, error) {
	query := buildQuery(title, author, isbn)
	cacheKey := fmt.Sprintf("volumes|%s|%d", query, maxResults)
	cached, _, err := cache.GetOrFetchWithTTL("googlebooks_cache", cacheKey, func() (*cachedGBSearch, error) {
		items, err := c.fetchVolumes(ctx, query, maxResults)
		if err != nil {
			return nil, err
		}
		return &cachedGBSearch{Items: items}, nil
	}, cache.SelectNegativeCacheTTL(func(r *cachedGBSearch) bool {
		return len(r.Items) == 0
	}))
	if err != nil {
		return nil, err
	}
	return cached.Items, nil
}

func (c *GoogleBooksClient) fetchVolumes(ctx context.Context, query string, maxResults int) ([]gbVolume, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.BaseURL + "/volumes")
	if err != nil {
		return nil, fmt.Errorf("invalid Google Books base URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Google Books search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Google Books returned status %d", resp.StatusCode)
	}

	var result gbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding Google Books response: %w", err)
	}
	return result.Items, nil
}

// Search returns normalized candidates for a title (+ optional author).
func (c *GoogleBooksClient) Search(ctx context.Context, title, author string, maxResults int) ([]Candidate, error) {
	items, err := c.searchVolumes(ctx, title, author, "", maxResults)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, volumeToCandidate(item))
	}
	return candidates, nil
}

func volumeToCandidate(vol gbVolume) Candidate {
	v := vol.VolumeInfo
	cand := Candidate{
		Source:   SourceGoogleBooks,
		Title:    v.Title,
		Pages:    v.PageCount,
		CoverURL: volumeImageURL(vol),
	}
	if len(v.Authors) > 0 {
		cand.Author = v.Authors[0]
	}
	if len(v.IndustryIdentifiers) > 0 {
		cand.ISBN = v.IndustryIdentifiers[0].Identifier
	}
	if v.Description != "" {
		cand.Description = v.Description
	} else {
		cand.Description = v.Subtitle
	}
	return cand
}

// volumeImageURL picks the best image link from a volume, upgraded to https.
func volumeImageURL(vol gbVolume) string {
	links := vol.VolumeInfo.ImageLinks
	img := links.Thumbnail
	if img == "" {
		img = links.SmallThumbnail
	}
	if img == "" {
		img = links.Small
	}
	if img == "" {
		return ""
	}
	return strings.Replace(img, "http://", "https://", 1)
}

// contentImageURL is the frontcover content URL for a volume id, used when
// a volume has no image links.
func (c *GoogleBooksClient) contentImageURL(volumeID string) string {
	return fmt.Sprintf("%s?id=%s&printsec=frontcover&img=1&zoom=1&source=gbs_api",
		c.ContentURL, url.QueryEscape(volumeID))
}
