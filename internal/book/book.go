// Package book defines the canonical book record and the validation and
// normalization rules every write path goes through.
package book

import (
	"fmt"
	"strings"
	"time"
)

// Status marks a book as already read or planned for reading.
type Status string

const (
	StatusRead    Status = "READ"
	StatusPlanned Status = "PLANNED"
)

// Book is the canonical catalog entry. Pointer fields distinguish
// "not set" from "empty string".
type Book struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	PageCount     *int    `json:"pageCount,omitempty"`
	Status        Status  `json:"status"`
	AddedAt       string  `json:"addedAt"`
	ISBN          *string `json:"isbn"`
	CoverURL      *string `json:"coverUrl"`
	Description   *string `json:"description"`
	YearPublished *int    `json:"yearPublished,omitempty"`
	Genre         *string `json:"genre,omitempty"`
}

// ParseStatus maps a raw status string onto the enum. The legacy spellings
// from pre-migration exports are accepted as aliases.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "READ", "PROCHYTANA":
		return StatusRead, true
	case "PLANNED", "PLANUYU":
		return StatusPlanned, true
	}
	return "", false
}

// NormalizeStatus is the lenient variant used by importers: anything that
// doesn't parse becomes PLANNED.
func NormalizeStatus(raw string) Status {
	if s, ok := ParseStatus(raw); ok {
		return s
	}
	return StatusPlanned
}

// readTokens are substrings that mark a legacy status value as "read".
// Covers English and Ukrainian variants seen in old exports.
var readTokens = []string{"read", "done", "finished", "прочитано", "прочитана", "готово"}

// StatusFromLegacy normalizes a free-form status cell from a legacy table.
// Substring match, case-insensitive; anything unrecognized is PLANNED.
func StatusFromLegacy(raw string) Status {
	s := strings.ToLower(raw)
	for _, tok := range readTokens {
		if strings.Contains(s, tok) {
			return StatusRead
		}
	}
	return StatusPlanned
}

// Payload is the mutable subset of Book accepted from clients and importers.
type Payload struct {
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	PageCount     *int    `json:"pageCount"`
	Status        string  `json:"status"`
	ISBN          *string `json:"isbn"`
	CoverURL      *string `json:"coverUrl"`
	Description   *string `json:"description"`
	YearPublished *int    `json:"yearPublished"`
	Genre         *string `json:"genre"`
}

// Normalize trims string fields in place and uppercases the status.
func (p *Payload) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Author = strings.TrimSpace(p.Author)
	p.Status = strings.ToUpper(strings.TrimSpace(p.Status))
	p.ISBN = trimPtr(p.ISBN)
	p.CoverURL = trimPtr(p.CoverURL)
	p.Description = trimPtr(p.Description)
	p.Genre = trimPtr(p.Genre)
}

// Validate reports the first problem with the payload, or nil.
// The status must parse; use NormalizeStatus first on lenient import paths.
func (p *Payload) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Author == "" {
		return fmt.Errorf("author is required")
	}
	if p.PageCount != nil && *p.PageCount < 0 {
		return fmt.Errorf("pageCount must be a non-negative integer")
	}
	if p.Status != "" {
		if _, ok := ParseStatus(p.Status); !ok {
			return fmt.Errorf("status must be READ or PLANNED")
		}
	}
	return nil
}

// StatusOrDefault returns the parsed status, defaulting to PLANNED when unset.
func (p *Payload) StatusOrDefault() Status {
	if s, ok := ParseStatus(p.Status); ok {
		return s
	}
	return StatusPlanned
}

// ToBook materializes the payload as a book record with the given id.
func (p *Payload) ToBook(id int64) *Book {
	return &Book{
		ID:            id,
		Title:         p.Title,
		Author:        p.Author,
		PageCount:     p.PageCount,
		Status:        p.StatusOrDefault(),
		ISBN:          p.ISBN,
		CoverURL:      p.CoverURL,
		Description:   p.Description,
		YearPublished: p.YearPublished,
		Genre:         p.Genre,
	}
}

// Now returns the timestamp format used for added_at columns.
func Now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

// ParseAddedAt validates an incoming timestamp, falling back to now.
func ParseAddedAt(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Now()
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if _, err := time.Parse(layout, raw); err == nil {
			return raw
		}
	}
	return Now()
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
