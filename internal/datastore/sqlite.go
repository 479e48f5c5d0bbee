// Package datastore provides the SQLite-backed catalog store: the canonical
// books table, schema migrations, and the introspection queries used by the
// legacy reconciler and the debug endpoint.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lepinkainen/tome/internal/book"
)

var (
	// ErrNotFound is returned when a book id does not exist.
	ErrNotFound = errors.New("book not found")
	// ErrConflict is returned when an insert or update would violate the
	// (title, author) uniqueness constraint.
	ErrConflict = errors.New("book with this title and author already exists")
)

// Store wraps the catalog SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the catalog database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway, and a single
	// conn keeps savepoint-based migrations on one session.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to database: %w", err), closeErr)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			closeErr := db.Close()
			return nil, errors.Join(fmt.Errorf("failed to set pragma: %w", err), closeErr)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for packages that compose their own
// queries (legacy reconciliation reads arbitrary tables).
func (s *Store) DB() *sql.DB {
	return s.db
}

// ListFilter narrows ListBooks results.
type ListFilter struct {
	Query  string
	Status book.Status
	Limit  int
	Offset int
}

const bookColumns = `id, title, author, page_count, status, added_at, isbn, cover_url, description, year_published, genre`

func scanBook(scanner interface{ Scan(...any) error }) (*book.Book, error) {
	var b book.Book
	var pageCount, yearPublished sql.NullInt64
	var isbn, coverURL, description, genre sql.NullString
	err := scanner.Scan(&b.ID, &b.Title, &b.Author, &pageCount, &b.Status, &b.AddedAt,
		&isbn, &coverURL, &description, &yearPublished, &genre)
	if err != nil {
		return nil, err
	}
	if pageCount.Valid {
		v := int(pageCount.Int64)
		b.PageCount = &v
	}
	if yearPublished.Valid {
		v := int(yearPublished.Int64)
		b.YearPublished = &v
	}
	b.ISBN = nullString(isbn)
	b.CoverURL = nullString(coverURL)
	b.Description = nullString(description)
	b.Genre = nullString(genre)
	return &b, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// ListBooks returns books newest-first, optionally filtered by a title/author
// substring and a status.
func (s *Store) ListBooks(ctx context.Context, f ListFilter) ([]book.Book, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if f.Query != "" {
		where = append(where, "(title LIKE ? OR author LIKE ?)")
		args = append(args, "%"+f.Query+"%", "%"+f.Query+"%")
	}
	if f.Status == book.StatusRead || f.Status == book.StatusPlanned {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT " + bookColumns + " FROM books"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY datetime(added_at) DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []book.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// GetBook fetches a single book by id.
func (s *Store) GetBook(ctx context.Context, id int64) (*book.Book, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return b, nil
}

// InsertBook inserts a new book and returns its generated id. A NULL or
// empty AddedAt defaults to the current time.
func (s *Store) InsertBook(ctx context.Context, b *book.Book) (int64, error) {
	addedAt := sql.NullString{String: b.AddedAt, Valid: b.AddedAt != ""}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO books (title, author, page_count, status, added_at, isbn, cover_url, description, year_published, genre)
		 VALUES (?, ?, ?, ?, COALESCE(?, datetime('now')), ?, ?, ?, ?, ?)`,
		b.Title, b.Author, intPtr(b.PageCount), string(b.Status), addedAt,
		strPtr(b.ISBN), strPtr(b.CoverURL), strPtr(b.Description), intPtr(b.YearPublished), strPtr(b.Genre))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("failed to insert book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read generated id: %w", err)
	}
	return id, nil
}

// UpdateBook overwrites the mutable fields of an existing book.
func (s *Store) UpdateBook(ctx context.Context, b *book.Book) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET title=?, author=?, page_count=?, status=?, isbn=?, cover_url=?, description=?, year_published=?, genre=?
		 WHERE id=?`,
		b.Title, b.Author, intPtr(b.PageCount), string(b.Status),
		strPtr(b.ISBN), strPtr(b.CoverURL), strPtr(b.Description), intPtr(b.YearPublished), strPtr(b.Genre), b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBook removes a book by id.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountBooks returns the number of rows in the canonical table. The
// bootstrap importers use this as their "already imported" gate.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return count, nil
}

// FindIDByTitleAuthor reports whether a (title, author) pair already exists.
func (s *Store) FindIDByTitleAuthor(ctx context.Context, title, author string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM books WHERE title = ? AND author = ?", title, author).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up title/author: %w", err)
	}
	return id, true, nil
}

// MetaRow is the subset of a book used by the enrichment batch runner.
type MetaRow struct {
	ID          int64
	Title       string
	Author      string
	ISBN        *string
	CoverURL    *string
	Description *string
}

// ListMissingMeta returns books lacking a cover or a description. Empty
// strings count as absent.
func (s *Store) ListMissingMeta(ctx context.Context) ([]MetaRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, author, isbn, cover_url, description FROM books
		 WHERE cover_url IS NULL OR TRIM(cover_url) = ''
		    OR description IS NULL OR TRIM(description) = ''
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books missing metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []MetaRow
	for rows.Next() {
		var r MetaRow
		var isbn, cover, desc sql.NullString
		if err := rows.Scan(&r.ID, &r.Title, &r.Author, &isbn, &cover, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.ISBN = nullString(isbn)
		r.CoverURL = nullString(cover)
		r.Description = nullString(desc)
		result = append(result, r)
	}
	return result, rows.Err()
}

// CoalesceUpdateMeta writes a fetched cover and/or description without ever
// overwriting an existing non-null value.
func (s *Store) CoalesceUpdateMeta(ctx context.Context, id int64, coverURL, description *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE books
		    SET cover_url = CASE WHEN cover_url IS NULL OR TRIM(cover_url) = ''
		                         THEN COALESCE(?, cover_url) ELSE cover_url END,
		        description = CASE WHEN description IS NULL OR TRIM(description) = ''
		                           THEN COALESCE(?, description) ELSE description END
		  WHERE id = ?`,
		strPtr(coverURL), strPtr(description), id)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func strPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func intPtr(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
