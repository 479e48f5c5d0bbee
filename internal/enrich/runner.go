// Package enrich fills in missing book metadata from external catalogs,
// one record at a time. External lookups are best effort: a book the
// providers know nothing about is skipped, never an error.
package enrich

import (
	"context"
	"log/slog"

	"github.com/lepinkainen/tome/internal/datastore"
	"github.com/lepinkainen/tome/internal/metadata"
)

// Runner walks the catalog and backfills covers and descriptions.
type Runner struct {
	store    *datastore.Store
	resolver *metadata.Resolver
}

func NewRunner(store *datastore.Store, resolver *metadata.Resolver) *Runner {
	return &Runner{store: store, resolver: resolver}
}

// EnrichAll processes every book missing a cover or description and
// returns how many rows received new metadata. Only listing the work and
// writing results can fail; lookup misses just leave a row untouched.
func (r *Runner) EnrichAll(ctx context.Context) (int, error) {
	rows, err := r.store.ListMissingMeta(ctx)
	if err != nil {
		return 0, err
	}

	slog.Info("Starting metadata enrichment", "candidates", len(rows))

	updated := 0
	for _, row := range rows {
		changed, err := r.enrichRow(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return updated, ctx.Err()
			}
			slog.Warn("Failed to enrich book", "id", row.ID, "title", row.Title, "error", err)
			continue
		}
		if changed {
			updated++
		}
	}

	slog.Info("Metadata enrichment finished", "updated", updated, "scanned", len(rows))
	return updated, nil
}

// EnrichOne backfills a single book by id.
func (r *Runner) EnrichOne(ctx context.Context, id int64) (bool, error) {
	b, err := r.store.GetBook(ctx, id)
	if err != nil {
		return false, err
	}

	row := datastore.MetaRow{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		ISBN:        b.ISBN,
		CoverURL:    b.CoverURL,
		Description: b.Description,
	}
	return r.enrichRow(ctx, row)
}

// enrichRow resolves whatever the row is missing and writes it with a
// coalescing update so concurrent manual edits are never overwritten.
func (r *Runner) enrichRow(ctx context.Context, row datastore.MetaRow) (bool, error) {
	var coverURL, description *string

	if !present(row.CoverURL) {
		isbn := ""
		if row.ISBN != nil {
			isbn = *row.ISBN
		}
		if res, ok := r.resolver.ResolveCover(ctx, isbn, row.Title, row.Author); ok {
			slog.Debug("Found cover", "id", row.ID, "source", res.Source)
			coverURL = &res.URL
		}
	}

	if !present(row.Description) {
		if desc := r.resolver.FindDescription(ctx, row.Title, row.Author); desc != "" {
			description = &desc
		}
	}

	if coverURL == nil && description == nil {
		return false, nil
	}

	if err := r.store.CoalesceUpdateMeta(ctx, row.ID, coverURL, description); err != nil {
		return false, err
	}
	return true, nil
}

func present(s *string) bool {
	return s != nil && *s != ""
}
