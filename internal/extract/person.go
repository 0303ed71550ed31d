package extract

import (
	"context"
	"time"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
)

// PersonExtractor is the by-person sub-extractor: a renamed actor or
// director should resurface every film they appear in, even if the
// film_work row itself hasn't changed.
type PersonExtractor struct {
	f *fanout
}

func NewPersonExtractor(db DBTX, batchSize int) *PersonExtractor {
	return &PersonExtractor{f: &fanout{
		db:          db,
		batchSize:   batchSize,
		changedSQL:  selectChangedPersonsSQL,
		fanoutSQL:   selectFilmworksByPersonSQL,
		getEntityAt: func(c model.Cursor) time.Time { return c.PersonsAt },
		setEntityAt: func(c *model.Cursor, t time.Time) { c.PersonsAt = t },
	}}
}

func (e *PersonExtractor) Next(ctx context.Context, cursor model.Cursor) (Result, error) {
	return e.f.next(ctx, cursor)
}
