package searchload

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
	"github.com/sammeown/postgres-to-search-sync/internal/retry"
)

// testBackoff gives tests a backoff that exhausts in well under a
// second, so a deliberately-failing server doesn't slow the suite down.
func testBackoff() *retry.Backoff {
	return retry.New("test-bulk-load", retry.Policy{
		Start:   time.Millisecond,
		Factor:  2,
		Ceiling: 5 * time.Millisecond,
		Budget:  20 * time.Millisecond,
	}, IsTransientBulkErr, zerolog.Nop())
}

func TestLoad_SendsOneIndexActionPerFilmAndOneDeleteForTombstones(t *testing.T) {
	var lines []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_bulk" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-ndjson" {
			t.Errorf("unexpected content-type %q", ct)
		}
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":false}`))
	}))
	defer srv.Close()

	l := New(srv.URL, "movies", testBackoff())
	kept := model.NewFilmWork(uuid.New(), "Kept Film", "desc", "movie", nil, fixedTime())
	kept.Genres.Add(model.NamedItem{ID: uuid.New(), Name: "Drama"})
	tomb := model.NewFilmWork(uuid.New(), "", "", "", nil, fixedTime())

	ok, err := l.Load(context.Background(), []*model.FilmWork{kept, tomb})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 NDJSON lines (index action, index doc, delete action), got %d: %v", len(lines), lines)
	}

	var action0 map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &action0); err != nil {
		t.Fatalf("parse action line: %v", err)
	}
	if _, ok := action0["index"]; !ok {
		t.Errorf("expected first action to be an index action, got %v", action0)
	}

	var action2 map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &action2); err != nil {
		t.Fatalf("parse delete action: %v", err)
	}
	if _, ok := action2["delete"]; !ok {
		t.Errorf("expected third line to be a delete action for the tombstone, got %v", action2)
	}
}

func TestLoad_BackendErrorsFlagFailsTheWholeBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":true}`))
	}))
	defer srv.Close()

	l := New(srv.URL, "movies", testBackoff())
	f := model.NewFilmWork(uuid.New(), "Film", "", "movie", nil, fixedTime())

	ok, err := l.Load(context.Background(), []*model.FilmWork{f})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false when the backend reports errors:true")
	}
}

func TestLoad_NonOKStatusIsAnError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := New(srv.URL, "movies", testBackoff())
	f := model.NewFilmWork(uuid.New(), "Film", "", "movie", nil, fixedTime())

	if _, err := l.Load(context.Background(), []*model.FilmWork{f}); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
	if attempts < 2 {
		t.Errorf("expected a 503 to be retried under backoff, got %d attempt(s)", attempts)
	}
}

func TestLoad_RetriesATransientFailureThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":false}`))
	}))
	defer srv.Close()

	l := New(srv.URL, "movies", testBackoff())
	f := model.NewFilmWork(uuid.New(), "Film", "", "movie", nil, fixedTime())

	ok, err := l.Load(context.Background(), []*model.FilmWork{f})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true once the backend recovers")
	}
	if attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestLoad_DoesNotRetryA4xxResponse(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	l := New(srv.URL, "movies", testBackoff())
	f := model.NewFilmWork(uuid.New(), "Film", "", "movie", nil, fixedTime())

	if _, err := l.Load(context.Background(), []*model.FilmWork{f}); err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if attempts != 1 {
		t.Errorf("expected a 4xx response not to be retried, got %d attempt(s)", attempts)
	}
}

func TestLoad_EmptyBatchIsANoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	l := New(srv.URL, "movies", testBackoff())
	ok, err := l.Load(context.Background(), nil)
	if err != nil || !ok {
		t.Fatalf("expected ok=true, nil error for an empty batch, got ok=%v err=%v", ok, err)
	}
	if called {
		t.Error("expected no HTTP call for an empty batch")
	}
}

func fixedTime() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
