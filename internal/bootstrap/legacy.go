// Package bootstrap holds the one-time startup importers: legacy table
// reconciliation and JSON seed import. Both are gated on the canonical
// table being empty, so a populated catalog makes them no-ops.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lepinkainen/tome/internal/book"
	"github.com/lepinkainen/tome/internal/datastore"
)

// Candidate column names per semantic role. Old databases were created by
// hand in several languages, so the lists cover English, transliterated and
// Cyrillic spellings. Order matters: first match wins.
var (
	titleCandidates  = []string{"tytul", "title", "name", "nazva", "назва", "book_title", "book", "bookname", "book_name"}
	authorCandidates = []string{"autor", "author", "avtor", "writer", "book_author", "автор", "author_name"}
	pagesCandidates  = []string{"kilkist_storinyok", "pages", "page_count", "num_pages", "сторінок", "pages_count"}
	statusCandidates = []string{"status", "state", "статус"}
	isbnCandidates   = []string{"isbn", "isbn13", "isbn_13", "isbn10", "isbn_10"}
	coverCandidates  = []string{"cover_url", "cover", "image", "img", "poster", "thumbnail", "coverurl", "cover_url_l"}
	descCandidates   = []string{"description", "desc", "about", "summary", "annotation", "anotation", "опис", "summary_text"}
)

// RoleMapping assigns actual column names of a legacy table to the semantic
// roles of the canonical schema. Title and Author are required for a table
// to qualify; the rest may be empty.
type RoleMapping struct {
	Title       string
	Author      string
	Pages       string
	Status      string
	ISBN        string
	Cover       string
	Description string
}

// Score is 10 base points for the required roles plus one per resolved
// optional role, 15 max.
func (m RoleMapping) Score() int {
	score := 10
	for _, col := range []string{m.Pages, m.Status, m.ISBN, m.Cover, m.Description} {
		if col != "" {
			score++
		}
	}
	return score
}

// pickColumn finds the first candidate present in cols, case-insensitively,
// returning the column's original spelling.
func pickColumn(cols []string, candidates []string) string {
	lower := make([]string, len(cols))
	for i, c := range cols {
		lower[i] = strings.ToLower(c)
	}
	for _, cand := range candidates {
		for i, lc := range lower {
			if lc == cand {
				return cols[i]
			}
		}
	}
	return ""
}

// MapColumns attempts to map a legacy table's columns onto the seven roles.
// Returns false when the required title and author roles cannot both be
// resolved. Pure function, no storage access.
func MapColumns(cols []string) (RoleMapping, bool) {
	m := RoleMapping{
		Title:  pickColumn(cols, titleCandidates),
		Author: pickColumn(cols, authorCandidates),
	}
	if m.Title == "" || m.Author == "" {
		return RoleMapping{}, false
	}
	m.Pages = pickColumn(cols, pagesCandidates)
	m.Status = pickColumn(cols, statusCandidates)
	m.ISBN = pickColumn(cols, isbnCandidates)
	m.Cover = pickColumn(cols, coverCandidates)
	m.Description = pickColumn(cols, descCandidates)
	return m, true
}

// legacyCandidate is a qualifying table with its mapping and score.
type legacyCandidate struct {
	table   string
	mapping RoleMapping
	score   int
}

// ReconcileLegacy imports the best-scoring legacy table into the canonical
// schema. Runs only when the books table is empty; returns the number of
// imported rows (zero when nothing qualified).
func ReconcileLegacy(ctx context.Context, store *datastore.Store) (int, error) {
	count, err := store.CountBooks(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		slog.Info("Legacy reconcile: books already populated, skipping", "rows", count)
		return 0, nil
	}

	tables, err := store.UserTables(ctx)
	if err != nil {
		return 0, err
	}
	if len(tables) == 0 {
		slog.Info("Legacy reconcile: no user tables found")
		return 0, nil
	}

	best, ok, err := selectBestTable(ctx, store, tables)
	if err != nil {
		return 0, err
	}
	if !ok {
		slog.Info("Legacy reconcile: no table with title+author columns, nothing to import")
		return 0, nil
	}

	slog.Info("Legacy reconcile: selected table",
		"table", best.table, "score", best.score,
		"title", best.mapping.Title, "author", best.mapping.Author,
		"pages", best.mapping.Pages, "status", best.mapping.Status,
		"isbn", best.mapping.ISBN, "cover", best.mapping.Cover,
		"description", best.mapping.Description)

	imported, err := importTable(ctx, store, best.table, best.mapping)
	if err != nil {
		return 0, err
	}
	slog.Info("Legacy reconcile: import complete", "table", best.table, "imported", imported)
	return imported, nil
}

// selectBestTable scores every table and keeps the highest. Ties keep the
// first table in enumeration order, so scanning order never changes the
// winner between equal candidates.
func selectBestTable(ctx context.Context, store *datastore.Store, tables []string) (legacyCandidate, bool, error) {
	var best legacyCandidate
	found := false
	for _, table := range tables {
		cols, err := store.TableColumns(ctx, table)
		if err != nil {
			return legacyCandidate{}, false, err
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		mapping, ok := MapColumns(names)
		if !ok {
			continue
		}
		cand := legacyCandidate{table: table, mapping: mapping, score: mapping.Score()}
		if !found || cand.score > best.score {
			best = cand
			found = true
		}
	}
	return best, found, nil
}

// importTable reads every row of the selected legacy table and inserts the
// valid ones. Rows without a title or author are skipped silently, as are
// (title, author) pairs that already exist.
func importTable(ctx context.Context, store *datastore.Store, table string, m RoleMapping) (int, error) {
	selects := []string{
		datastore.QuoteIdent(m.Title) + " AS c0",
		datastore.QuoteIdent(m.Author) + " AS c1",
		roleSelect(m.Pages, "c2"),
		roleSelect(m.Status, "c3"),
		roleSelect(m.ISBN, "c4"),
		roleSelect(m.Cover, "c5"),
		roleSelect(m.Description, "c6"),
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), datastore.QuoteIdent(table))

	rows, err := store.DB().QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	imported := 0
	for rows.Next() {
		var c0, c1, c2, c3, c4, c5, c6 sql.NullString
		if err := rows.Scan(&c0, &c1, &c2, &c3, &c4, &c5, &c6); err != nil {
			return imported, fmt.Errorf("failed to scan legacy row: %w", err)
		}

		title := strings.TrimSpace(c0.String)
		author := strings.TrimSpace(c1.String)
		if title == "" || author == "" {
			continue
		}

		b := book.Book{
			Title:       title,
			Author:      author,
			PageCount:   coerceInt(c2),
			Status:      book.StatusFromLegacy(c3.String),
			ISBN:        passthrough(c4),
			CoverURL:    passthrough(c5),
			Description: passthrough(c6),
		}

		if _, exists, err := store.FindIDByTitleAuthor(ctx, title, author); err != nil {
			return imported, err
		} else if exists {
			continue
		}

		if _, err := store.InsertBook(ctx, &b); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, rows.Err()
}

func roleSelect(col, alias string) string {
	if col == "" {
		return "NULL AS " + alias
	}
	return datastore.QuoteIdent(col) + " AS " + alias
}

// coerceInt parses a legacy pages cell into an int, or nil when missing or
// unparseable.
func coerceInt(ns sql.NullString) *int {
	if !ns.Valid {
		return nil
	}
	s := strings.TrimSpace(ns.String)
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	if n == 0 {
		return nil
	}
	return &n
}

func passthrough(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}
