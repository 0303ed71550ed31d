package extract

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
)

// Result is what one sub-extractor call produces: zero or more folded
// FilmWorks, and the cursor the caller should persist once the batch is
// successfully loaded. CursorOut is nil when the sub-extractor is
// mid-fan-out and isn't ready to advance the persisted cursor yet.
type Result struct {
	FilmWorks []*model.FilmWork
	CursorOut *model.Cursor
}

func (r Result) Empty() bool { return len(r.FilmWorks) == 0 }

// FilmworkExtractor is the by-filmwork sub-extractor: film_work rows
// changed directly since the last FilmworksAt watermark.
// It is the simplest of the three sub-extractors — one query, one fold,
// one watermark to advance — and is also exercised by the other two
// sub-extractors' enrichment step.
type FilmworkExtractor struct {
	db        DBTX
	batchSize int
}

func NewFilmworkExtractor(db DBTX, batchSize int) *FilmworkExtractor {
	return &FilmworkExtractor{db: db, batchSize: batchSize}
}

func (e *FilmworkExtractor) Next(ctx context.Context, cursor model.Cursor) (Result, error) {
	ids, err := e.changedIDs(ctx, cursor.FilmworksAt)
	if err != nil {
		return Result{}, err
	}
	if len(ids) == 0 {
		return Result{}, nil
	}

	films, err := fetchEnriched(ctx, e.db, ids)
	if err != nil {
		return Result{}, err
	}

	filmworksAt := cursor.FilmworksAt
	personsAt := cursor.PersonsAt
	genresAt := cursor.GenresAt
	for _, f := range films {
		filmworksAt = model.Max(filmworksAt, f.UpdatedAt)
		personsAt = model.Max(personsAt, model.Max(f.Actors.MaxUpdatedAt(), model.Max(f.Writers.MaxUpdatedAt(), f.Directors.MaxUpdatedAt())))
		genresAt = model.Max(genresAt, f.Genres.MaxUpdatedAt())
	}

	out := model.Cursor{FilmworksAt: filmworksAt, PersonsAt: personsAt, GenresAt: genresAt}
	return Result{FilmWorks: films, CursorOut: &out}, nil
}

func (e *FilmworkExtractor) changedIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := e.db.QueryContext(ctx, selectChangedFilmworksSQL, since, e.batchSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
