// Package metadata queries external book catalogs and normalizes their
// heterogeneous responses into one candidate shape. Provider-specific JSON
// never leaves this package.
package metadata

import "strings"

// Source tags for search candidates.
const (
	SourceOpenLibrary = "openlibrary"
	SourceGoogleBooks = "googlebooks"
)

// Candidate is a provisional metadata record produced by a provider search.
// It is never persisted directly; selected fields get written into a book.
type Candidate struct {
	Source      string `json:"src"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Pages       int    `json:"pages"`
	CoverURL    string `json:"cover,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	Description string `json:"description,omitempty"`
}

// Key is the case-insensitive identity used for cross-provider
// de-duplication.
func (c Candidate) Key() string {
	return strings.ToLower(c.Title) + "|" + strings.ToLower(c.Author)
}

// DedupeCandidates removes duplicates by Key, keeping the first occurrence.
func DedupeCandidates(items []Candidate) []Candidate {
	seen := make(map[string]bool, len(items))
	result := make([]Candidate, 0, len(items))
	for _, item := range items {
		key := item.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, item)
	}
	return result
}
