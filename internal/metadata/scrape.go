package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const yakabooSearchURL = "https://www.yakaboo.ua/ua/search/?q="

// Some storefronts serve a challenge page to unknown clients. A desktop
// browser UA usually gets the real markup on the second try.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

var yakabooCoverRe = regexp.MustCompile(`(?i)https://static\.yakaboo\.ua/media/catalog/product/[^"']+\.jpg`)

// YakabooProbe scrapes the Yakaboo storefront search page for product
// cover images. It is a last-resort source for books that the catalog
// APIs have no cover for, which in practice means Ukrainian editions.
type YakabooProbe struct {
	// SearchURL is the search page prefix the query is appended to.
	// Overridable for tests.
	SearchURL string

	httpClient *http.Client
}

func NewYakabooProbe() *YakabooProbe {
	return &YakabooProbe{
		SearchURL:  yakabooSearchURL,
		httpClient: &http.Client{Timeout: 9 * time.Second},
	}
}

// FindCover searches the storefront for the query and returns the first
// product image URL found in the page markup, or "" when none matched.
// retried reports that the plain fetch was rejected and the result came
// from the browser user-agent retry.
func (p *YakabooProbe) FindCover(ctx context.Context, query string) (url string, retried bool, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false, nil
	}

	page, err := p.fetchPage(ctx, query, "")
	if err != nil {
		// Retry once pretending to be a browser.
		page, err = p.fetchPage(ctx, query, browserUserAgent)
		if err != nil {
			return "", true, err
		}
		retried = true
	}

	return yakabooCoverRe.FindString(page), retried, nil
}

func (p *YakabooProbe) fetchPage(ctx context.Context, query, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.SearchURL+url.QueryEscape(query), nil)
	if err != nil {
		return "", fmt.Errorf("building search request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading search page: %w", err)
	}

	return string(body), nil
}
