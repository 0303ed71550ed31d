// Package orchestrator runs the top-level poll/load/persist loop: it
// owns the source connection, rebuilds the coordinator once per
// iteration, and sleeps between polls once every sub-extractor reports
// it is caught up.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sammeown/postgres-to-search-sync/internal/extract"
	"github.com/sammeown/postgres-to-search-sync/internal/model"
	"github.com/sammeown/postgres-to-search-sync/internal/retry"
	"github.com/sammeown/postgres-to-search-sync/internal/statestore"
)

// extractErr marks a pollOnce failure as coming from the Postgres-side
// ExtractBatch call, as opposed to the search-side Load call, so Run
// only attempts Postgres connection recovery for the backend that
// actually failed.
type extractErr struct{ err error }

func (e *extractErr) Error() string { return e.err.Error() }
func (e *extractErr) Unwrap() error { return e.err }

const (
	keyFilmworksAt = "filmworks_synced_date"
	keyPersonsAt   = "persons_synced_date"
	keyGenresAt    = "genres_synced_date"
)

// Loader is the subset of searchload.Loader the orchestrator depends
// on, kept as an interface so tests can substitute a fake.
type Loader interface {
	Load(ctx context.Context, films []*model.FilmWork) (bool, error)
}

// coordinator is the subset of *extract.Extractor the orchestrator
// depends on, kept as an interface so pollOnce can be tested without a
// database.
type coordinator interface {
	ExtractBatch(ctx context.Context, cursor model.Cursor) (extract.Result, error)
}

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize    int
	SyncInterval time.Duration
}

// Orchestrator drives one (source, state, sink) triple through its
// lifetime. A new instance should be constructed whenever the source
// connection is rebuilt, so the coordinator's round-robin pointer
// always starts fresh for a new connection.
type Orchestrator struct {
	db      *sql.DB
	state   *statestore.Store
	loader  Loader
	cfg     Config
	connect *retry.Backoff
	log     zerolog.Logger
}

func New(db *sql.DB, state *statestore.Store, loader Loader, cfg Config, connect *retry.Backoff, log zerolog.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	return &Orchestrator{db: db, state: state, loader: loader, cfg: cfg, connect: connect, log: log}
}

// Run polls until ctx is canceled. Each iteration builds a fresh
// Extractor over the current connection; a failed poll or load is
// logged and retried on the next tick rather than aborting the whole
// process. Only an ExtractBatch failure triggers a Postgres
// connection-recovery attempt — Load already retries transient search
// failures under its own backoff, so a load error reaching here means
// the search backend, not Postgres, needs attention.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info().Int("batch", o.cfg.BatchSize).Dur("interval", o.cfg.SyncInterval).Msg("sync orchestrator starting")

	if err := o.state.Load(); err != nil {
		o.log.Error().Err(err).Msg("state file load failed")
		return err
	}

	ticker := time.NewTicker(o.cfg.SyncInterval)
	defer ticker.Stop()

	coordinator := extract.NewExtractor(o.db, o.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			o.log.Info().Msg("sync orchestrator stopping")
			return ctx.Err()
		default:
		}

		drained, err := o.pollOnce(ctx, coordinator)
		if err != nil {
			o.log.Error().Err(err).Msg("poll failed")
			var fromExtract *extractErr
			if errors.As(err, &fromExtract) {
				if pingErr := o.connect.Do(ctx, o.db.PingContext); pingErr != nil {
					o.log.Error().Err(pingErr).Msg("connection did not recover within backoff budget")
				}
			}
		}
		if err != nil || drained {
			// Either caught up, or an error we already logged: both
			// cases wait out the rest of the interval before retrying.
			select {
			case <-ctx.Done():
				o.log.Info().Msg("sync orchestrator stopping")
				return ctx.Err()
			case <-ticker.C:
			}
			coordinator = extract.NewExtractor(o.db, o.cfg.BatchSize)
		}
	}
}

// pollOnce runs one ExtractBatch/Load/persist step. It returns
// drained=true when the coordinator reports every sub-extractor is
// caught up, or when the backend rejected the batch, signalling the
// caller to sleep and start a new iteration.
func (o *Orchestrator) pollOnce(ctx context.Context, coord coordinator) (drained bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Msg("recovered panic during poll")
			err = nil
			drained = true
		}
	}()

	cursor := o.loadCursor()

	res, err := coord.ExtractBatch(ctx, cursor)
	if err != nil {
		return false, &extractErr{err}
	}
	if res.Empty() && res.CursorOut == nil {
		return true, nil
	}

	if len(res.FilmWorks) > 0 {
		ok, loadErr := o.loader.Load(ctx, res.FilmWorks)
		if loadErr != nil {
			return false, loadErr
		}
		if !ok {
			// Load failed: the cursor must not advance, and the
			// iteration ends so a fresh Extractor retries the same
			// batch in the next one.
			o.log.Warn().Int("films", len(res.FilmWorks)).Msg("bulk load rejected; cursor not advanced")
			return true, nil
		}
	}

	if res.CursorOut != nil {
		if err := o.persistCursor(*res.CursorOut); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (o *Orchestrator) loadCursor() model.Cursor {
	var c model.Cursor
	if v, ok := o.state.Get(keyFilmworksAt); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.FilmworksAt = t
		}
	}
	if v, ok := o.state.Get(keyPersonsAt); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.PersonsAt = t
		}
	}
	if v, ok := o.state.Get(keyGenresAt); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.GenresAt = t
		}
	}
	return c
}

func (o *Orchestrator) persistCursor(c model.Cursor) error {
	return o.state.Set(map[string]string{
		keyFilmworksAt: c.FilmworksAt.Format(time.RFC3339),
		keyPersonsAt:   c.PersonsAt.Format(time.RFC3339),
		keyGenresAt:    c.GenresAt.Format(time.RFC3339),
	})
}
