package extract

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
)

// fanout implements the two-phase fan-out shape shared by the by-person
// and by-genre sub-extractors: Phase A lists entities (persons or
// genres) changed since the entity watermark;
// Phase B paginates through every film_work touching that entity set,
// independent of the outer FilmworksAt watermark, since those films may
// not have changed themselves. The active entity set and fan-out
// pagination point are internal, non-persisted state: only entityAt
// advances the cursor the caller persists, and only once Phase B has
// drained the whole set.
type fanout struct {
	db        DBTX
	batchSize int

	changedSQL string // SELECT id, updated_at ... WHERE updated_at > $1 ORDER BY updated_at LIMIT $2
	fanoutSQL  string // SELECT DISTINCT fw.id, fw.updated_at ... WHERE x_id = ANY($1) AND fw.updated_at > $2 ... LIMIT $3

	getEntityAt func(model.Cursor) time.Time
	setEntityAt func(*model.Cursor, time.Time)

	// active fan-out state; nil ids means "start a fresh Phase A".
	ids         []uuid.UUID
	maxEntityAt time.Time
	innerFilmAt time.Time
}

func (f *fanout) next(ctx context.Context, cursor model.Cursor) (Result, error) {
	if f.ids == nil {
		ids, maxAt, err := f.changedEntities(ctx, f.getEntityAt(cursor))
		if err != nil {
			return Result{}, err
		}
		if len(ids) == 0 {
			return Result{}, nil
		}
		f.ids = ids
		f.maxEntityAt = maxAt
		f.innerFilmAt = time.Time{}
	}

	filmIDs, maxFilmAt, err := f.changedFilmworks(ctx, f.ids, f.innerFilmAt)
	if err != nil {
		return Result{}, err
	}

	if len(filmIDs) == 0 {
		// Phase B exhausted for the active entity set: advance the
		// persisted watermark and reset for the next poll's Phase A.
		out := cursor
		f.setEntityAt(&out, f.maxEntityAt)
		f.ids = nil
		return Result{CursorOut: &out}, nil
	}

	f.innerFilmAt = maxFilmAt
	films, err := fetchEnriched(ctx, f.db, filmIDs)
	if err != nil {
		return Result{}, err
	}
	return Result{FilmWorks: films}, nil
}

func (f *fanout) changedEntities(ctx context.Context, since time.Time) ([]uuid.UUID, time.Time, error) {
	rows, err := f.db.QueryContext(ctx, f.changedSQL, since, f.batchSize)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	var maxAt time.Time
	for rows.Next() {
		var id uuid.UUID
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, time.Time{}, err
		}
		ids = append(ids, id)
		maxAt = model.Max(maxAt, at)
	}
	return ids, maxAt, rows.Err()
}

func (f *fanout) changedFilmworks(ctx context.Context, entityIDs []uuid.UUID, since time.Time) ([]uuid.UUID, time.Time, error) {
	rows, err := f.db.QueryContext(ctx, f.fanoutSQL, uuidArray(entityIDs), since, f.batchSize)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	var maxAt time.Time
	for rows.Next() {
		var id uuid.UUID
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, time.Time{}, err
		}
		ids = append(ids, id)
		maxAt = model.Max(maxAt, at)
	}
	return ids, maxAt, rows.Err()
}
