// Package searchload bulk-loads folded FilmWorks into the search
// backend's NDJSON _bulk endpoint.
package searchload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sammeown/postgres-to-search-sync/internal/model"
	"github.com/sammeown/postgres-to-search-sync/internal/retry"
)

// Loader POSTs a batch of FilmWorks to the search backend's bulk
// endpoint as newline-delimited index/delete actions. Connection-level
// failures and 5xx responses are retried under backoff inside Load;
// Load returns once a request completes, a non-retryable client error
// occurs, or the backoff budget is spent (then with the last error).
type Loader struct {
	client    *resty.Client
	indexName string
	backoff   *retry.Backoff
}

// New builds a Loader against baseURL (e.g. "http://localhost:9200"),
// bulk-loading into indexName. backoff governs retries of the whole
// bulk request on transient failure.
func New(baseURL, indexName string, backoff *retry.Backoff) *Loader {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Loader{client: c, indexName: indexName, backoff: backoff}
}

// statusError carries the HTTP status of a non-200 bulk response so
// IsTransientBulkErr can tell a 5xx (retry) from a 4xx (fatal) apart.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bulk load status %d: %s", e.status, e.body)
}

// IsTransientBulkErr classifies errors from Load for retry.Backoff: a
// network-level error (no response at all) is always worth retrying; a
// non-200 response is retried only for 5xx, since a 4xx means the
// request itself is malformed and retrying it would never succeed.
func IsTransientBulkErr(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true
}

// document is the denormalized shape the search index expects: nested
// person/genre objects plus the flattened, comma-joined *_names
// convenience fields used for simple text search.
type document struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Rating      *float64     `json:"imdb_rating"`
	Type        string       `json:"type"`
	Genres      []namedField `json:"genres"`
	Actors      []namedField `json:"actors"`
	Writers     []namedField `json:"writers"`
	Directors   []namedField `json:"directors"`

	GenresNames    string `json:"genres_names"`
	ActorsNames    string `json:"actors_names"`
	WritersNames   string `json:"writers_names"`
	DirectorsNames string `json:"directors_names"`
}

type namedField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bulkAction struct {
	Index *bulkRef `json:"index,omitempty"`
	Delete *bulkRef `json:"delete,omitempty"`
}

type bulkRef struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
}

// Load sends one bulk request for films, retrying the whole request
// under backoff on a transient failure. It returns ok=true when the
// backend accepted every action (HTTP 200 and errors:false); the
// caller must not advance the persisted cursor when ok is false or
// err is non-nil.
func (l *Loader) Load(ctx context.Context, films []*model.FilmWork) (bool, error) {
	if len(films) == 0 {
		return true, nil
	}

	body, err := buildBulkBody(films, l.indexName)
	if err != nil {
		return false, fmt.Errorf("build bulk body: %w", err)
	}

	var ok bool
	err = l.backoff.Do(ctx, func(ctx context.Context) error {
		var doErr error
		ok, doErr = l.doBulk(ctx, body)
		return doErr
	})
	return ok, err
}

func (l *Loader) doBulk(ctx context.Context, body []byte) (bool, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-ndjson").
		SetQueryParam("filter_path", "errors").
		SetBody(body).
		Post("/_bulk")
	if err != nil {
		return false, err
	}
	if resp.StatusCode() != 200 {
		return false, &statusError{status: resp.StatusCode(), body: resp.String()}
	}

	if len(bytes.TrimSpace(resp.Body())) == 0 {
		return true, nil
	}
	var br bulkResponse
	if err := json.Unmarshal(resp.Body(), &br); err != nil {
		return false, fmt.Errorf("decode bulk response: %w", err)
	}
	return !br.Errors, nil
}

func buildBulkBody(films []*model.FilmWork, index string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range films {
		action := bulkAction{}
		if f.IsTombstone() {
			action.Delete = &bulkRef{Index: index, ID: f.ID.String()}
			if err := enc.Encode(action); err != nil {
				return nil, err
			}
			continue
		}

		action.Index = &bulkRef{Index: index, ID: f.ID.String()}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		if err := enc.Encode(toDocument(f)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func toDocument(f *model.FilmWork) document {
	return document{
		ID:             f.ID.String(),
		Title:          f.Title,
		Description:    f.Description,
		Rating:         f.Rating,
		Type:           f.Type,
		Genres:         toNamedFields(f.Genres),
		Actors:         toNamedFields(f.Actors),
		Writers:        toNamedFields(f.Writers),
		Directors:      toNamedFields(f.Directors),
		GenresNames:    joinNames(f.Genres),
		ActorsNames:    joinNames(f.Actors),
		WritersNames:   joinNames(f.Writers),
		DirectorsNames: joinNames(f.Directors),
	}
}

func toNamedFields(set model.NamedItemSet) []namedField {
	items := set.Slice()
	out := make([]namedField, 0, len(items))
	for _, it := range items {
		out = append(out, namedField{ID: it.ID.String(), Name: it.Name})
	}
	return out
}

func joinNames(set model.NamedItemSet) string {
	items := set.Slice()
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return strings.Join(names, ", ")
}
