// Package extract implements the three chained sub-extractors and the
// coordinator that round-robins between them.
package extract

import (
	"context"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
)

type subExtractor interface {
	Next(ctx context.Context, cursor model.Cursor) (Result, error)
}

// Extractor round-robins across the filmwork, person, and genre
// sub-extractors. Each call to ExtractBatch tries sub-extractors in
// rotation order starting from the pointer left by the previous call,
// stopping at the first one that produces work (FilmWorks or a cursor
// advance). If every sub-extractor comes back with neither, the source
// is caught up for this poll and the caller should sleep.
//
// A sub-extractor that hands back FilmWorks stays the active one for
// the next call too, so a multi-batch fan-out (person/genre) runs to
// completion before the pointer moves on; the pointer only advances
// once that sub-extractor reports it has nothing left (an empty
// FilmWorks batch, whether or not it came with a cursor advance).
//
// The pointer only rotates across polls within one orchestrator
// iteration; a new iteration constructs a fresh Extractor, so restarts
// never starve a sub-extractor that was mid-cycle.
type Extractor struct {
	subs [3]subExtractor
	next int
}

// NewExtractor builds a coordinator over a fresh connection, wiring
// each sub-extractor to the same batch size and database handle.
func NewExtractor(db DBTX, batchSize int) *Extractor {
	return &Extractor{
		subs: [3]subExtractor{
			NewFilmworkExtractor(db, batchSize),
			NewPersonExtractor(db, batchSize),
			NewGenreExtractor(db, batchSize),
		},
	}
}

// ExtractBatch returns the next batch of changed FilmWorks and, if the
// responsible sub-extractor is ready to advance the persisted
// watermark, the cursor to persist once the batch has been loaded
// successfully. A fully empty Result (no FilmWorks, nil CursorOut)
// means every sub-extractor is caught up.
func (e *Extractor) ExtractBatch(ctx context.Context, cursor model.Cursor) (Result, error) {
	for i := 0; i < len(e.subs); i++ {
		idx := (e.next + i) % len(e.subs)
		res, err := e.subs[idx].Next(ctx, cursor)
		if err != nil {
			return Result{}, err
		}
		if res.Empty() && res.CursorOut == nil {
			continue
		}
		if res.Empty() {
			// Empty FilmWorks with a cursor advance: this sub-extractor
			// just drained its active fan-out. Nothing left to hand
			// over until its next Phase A, so move on.
			e.next = (idx + 1) % len(e.subs)
		} else {
			// Still has FilmWorks: keep it active so the next call
			// resumes its fan-out instead of rotating away mid-batch.
			e.next = idx
		}
		return res, nil
	}
	return Result{}, nil
}
