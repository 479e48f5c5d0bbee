package bootstrap

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/lepinkainen/tome/internal/book"
	"github.com/lepinkainen/tome/internal/datastore"
)

// seedBook mirrors one entry of a seed file. Canonical keys are preferred,
// but the aliases written by the pre-rewrite exporter are still accepted.
type seedBook struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	PageCount   *int    `json:"pageCount"`
	Status      string  `json:"status"`
	AddedAt     string  `json:"addedAt"`
	ISBN        *string `json:"isbn"`
	CoverURL    *string `json:"coverUrl"`
	Description *string `json:"description"`

	// Legacy aliases
	Tytul           string  `json:"tytul"`
	Autor           string  `json:"autor"`
	KilkistStorinok *int    `json:"kilkist_storinyok"`
	DataDodania     string  `json:"data_dodania"`
	CoverURLSnake   *string `json:"cover_url"`
}

func (s *seedBook) title() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Tytul
}

func (s *seedBook) author() string {
	if s.Author != "" {
		return s.Author
	}
	return s.Autor
}

func (s *seedBook) pages() *int {
	if s.PageCount != nil {
		return s.PageCount
	}
	return s.KilkistStorinok
}

func (s *seedBook) addedAt() string {
	if s.AddedAt != "" {
		return s.AddedAt
	}
	return s.DataDodania
}

func (s *seedBook) coverURL() *string {
	if s.CoverURL != nil {
		return s.CoverURL
	}
	return s.CoverURLSnake
}

// seedFile accepts either a bare array of books or an object wrapping one.
type seedFile struct {
	Books []seedBook `json:"books"`
}

// loadSeedCandidates returns the items of the first candidate path that
// exists and parses into a non-empty book list.
func loadSeedCandidates(paths []string) (string, []seedBook) {
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var items []seedBook
		if err := json.Unmarshal(raw, &items); err != nil {
			var wrapped seedFile
			if err := json.Unmarshal(raw, &wrapped); err != nil {
				continue
			}
			items = wrapped.Books
		}
		if len(items) > 0 {
			return path, items
		}
	}
	return "", nil
}

// ImportSeed imports books from the first usable seed file. Runs only when
// the canonical table is empty. Returns (imported, total candidates).
func ImportSeed(ctx context.Context, store *datastore.Store, paths []string) (int, int, error) {
	count, err := store.CountBooks(ctx)
	if err != nil {
		return 0, 0, err
	}
	if count > 0 {
		slog.Info("Seed import: books already populated, skipping", "rows", count)
		return 0, 0, nil
	}

	path, items := loadSeedCandidates(paths)
	if path == "" {
		slog.Info("Seed import: no seed file found, nothing to import")
		return 0, 0, nil
	}

	imported := 0
	for _, item := range items {
		title := strings.TrimSpace(item.title())
		author := strings.TrimSpace(item.author())
		if title == "" || author == "" {
			continue
		}

		if _, exists, err := store.FindIDByTitleAuthor(ctx, title, author); err != nil {
			return imported, len(items), err
		} else if exists {
			continue
		}

		b := book.Book{
			Title:       title,
			Author:      author,
			PageCount:   item.pages(),
			Status:      book.NormalizeStatus(item.Status),
			AddedAt:     book.ParseAddedAt(item.addedAt()),
			ISBN:        item.ISBN,
			CoverURL:    item.coverURL(),
			Description: item.Description,
		}
		if _, err := store.InsertBook(ctx, &b); err != nil {
			return imported, len(items), err
		}
		imported++
	}

	slog.Info("Seed import: complete", "file", path, "imported", imported, "total", len(items))
	return imported, len(items), nil
}
