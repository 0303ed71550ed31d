// Package model holds the immutable value types shared by the extractor,
// loader, and state store: the denormalized search document and the
// cursor triple that tracks how far the sync has progressed.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NamedItem is a person or genre reference attached to a FilmWork.
// Equality is by ID: two NamedItems with the same ID are the same item
// even if Name or UpdatedAt differ transiently during a fold.
type NamedItem struct {
	ID        uuid.UUID
	Name      string
	UpdatedAt time.Time
}

// NamedItemSet deduplicates NamedItems by ID. It is not safe for
// concurrent use; each FilmWork owns its own sets.
type NamedItemSet map[uuid.UUID]NamedItem

// Add inserts item, overwriting any prior entry with the same ID.
func (s NamedItemSet) Add(item NamedItem) { s[item.ID] = item }

// Slice returns the set's members in no particular order.
func (s NamedItemSet) Slice() []NamedItem {
	out := make([]NamedItem, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

// MaxUpdatedAt returns the latest UpdatedAt among the set's members, or
// the zero Time if the set is empty.
func (s NamedItemSet) MaxUpdatedAt() time.Time {
	var max time.Time
	for _, v := range s {
		if v.UpdatedAt.After(max) {
			max = v.UpdatedAt
		}
	}
	return max
}

// FilmWork is the denormalized document folded from one film_work row
// plus its joined persons and genres. A FilmWork with an empty Title
// represents a tombstone: the document should be deleted from the
// index rather than indexed.
type FilmWork struct {
	ID          uuid.UUID
	Title       string
	Description string
	Type        string
	Rating      *float64
	UpdatedAt   time.Time

	Genres    NamedItemSet
	Actors    NamedItemSet
	Writers   NamedItemSet
	Directors NamedItemSet
}

// NewFilmWork returns a FilmWork with initialized, empty nested sets.
func NewFilmWork(id uuid.UUID, title, description, kind string, rating *float64, updatedAt time.Time) *FilmWork {
	return &FilmWork{
		ID:          id,
		Title:       title,
		Description: description,
		Type:        kind,
		Rating:      rating,
		UpdatedAt:   updatedAt,
		Genres:      NamedItemSet{},
		Actors:      NamedItemSet{},
		Writers:     NamedItemSet{},
		Directors:   NamedItemSet{},
	}
}

// IsTombstone reports whether this document should be deleted from the
// search index rather than indexed: an absent title means the source
// row was deleted.
func (f *FilmWork) IsTombstone() bool { return f.Title == "" }

// Cursor is the triple of independent watermarks into the source
// tables. Zero value is the epoch minimum for all three components —
// Go's zero time.Time is already 0001-01-01T00:00:00Z, which doubles as
// the "no prior sync" sentinel.
type Cursor struct {
	FilmworksAt time.Time
	PersonsAt   time.Time
	GenresAt    time.Time
}

// Max returns the later of two times.
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
