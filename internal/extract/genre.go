package extract

import (
	"context"
	"time"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
)

// GenreExtractor is the by-genre sub-extractor, the same fan-out shape
// as PersonExtractor applied to genre reassignment.
type GenreExtractor struct {
	f *fanout
}

func NewGenreExtractor(db DBTX, batchSize int) *GenreExtractor {
	return &GenreExtractor{f: &fanout{
		db:          db,
		batchSize:   batchSize,
		changedSQL:  selectChangedGenresSQL,
		fanoutSQL:   selectFilmworksByGenreSQL,
		getEntityAt: func(c model.Cursor) time.Time { return c.GenresAt },
		setEntityAt: func(c *model.Cursor, t time.Time) { c.GenresAt = t },
	}}
}

func (e *GenreExtractor) Next(ctx context.Context, cursor model.Cursor) (Result, error) {
	return e.f.next(ctx, cursor)
}
