package extract

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
)

// fetchEnriched runs the enrichment query for filmIDs and folds the
// resulting rows into FilmWorks. Rows must arrive ordered by
// (updated_at, id) so consecutive rows sharing an id can be folded into
// one FilmWork without look-ahead. Person and genre columns are
// nullable because the joins are LEFT JOINs: a film with no persons, or
// no genres, still yields a row with those columns null.
func fetchEnriched(ctx context.Context, db DBTX, filmIDs []uuid.UUID) ([]*model.FilmWork, error) {
	if len(filmIDs) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, enrichFilmworksSQL, uuidArray(filmIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.FilmWork
	var current *model.FilmWork
	for rows.Next() {
		var (
			filmID                                                   uuid.UUID
			title, description, kind, personRole, genreName, personFN sql.NullString
			rating                                                   sql.NullFloat64
			filmUpdatedAt                                             time.Time
			personID, genreID                                        uuid.NullUUID
			personUpdatedAt, genreUpdatedAt                           sql.NullTime
		)
		if err := rows.Scan(&filmID, &title, &description, &rating, &kind, &filmUpdatedAt,
			&personRole, &personID, &personFN, &personUpdatedAt,
			&genreID, &genreName, &genreUpdatedAt); err != nil {
			return nil, err
		}

		if current == nil || current.ID != filmID {
			current = model.NewFilmWork(filmID, title.String, description.String, kind.String, nullableRating(rating), filmUpdatedAt)
			out = append(out, current)
		}

		if personRole.Valid && personID.Valid {
			item := model.NamedItem{ID: personID.UUID, Name: personFN.String, UpdatedAt: personUpdatedAt.Time}
			switch personRole.String {
			case "actor":
				current.Actors.Add(item)
			case "writer":
				current.Writers.Add(item)
			case "director":
				current.Directors.Add(item)
			}
		}
		if genreID.Valid {
			current.Genres.Add(model.NamedItem{ID: genreID.UUID, Name: genreName.String, UpdatedAt: genreUpdatedAt.Time})
		}
	}
	return out, rows.Err()
}

func nullableRating(r sql.NullFloat64) *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Float64
	return &v
}

// uuidArray binds a UUID slice as a single array parameter against
// = ANY($1) rather than string-interpolating the IDs into the query.
func uuidArray(ids []uuid.UUID) []uuid.UUID { return ids }
