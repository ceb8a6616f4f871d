package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alfredjeanlab/eventify/internal/model"
)

// Endpoint describes one list endpoint of the API.
type Endpoint struct {
	Path     string
	Envelope Envelope

	// Params renames filter keys to query parameters; keys not listed are
	// sent under their own name.
	Params map[string]string
	// PageParam defaults to "page".
	PageParam string
	// PageSizeParam, when set, sends the page size with every request.
	PageSizeParam string
	// Static parameters are sent with every request.
	Static url.Values
}

// Query encodes spec as the endpoint's query string values. Empty filters
// are left out.
func (e Endpoint) Query(spec model.QuerySpec) url.Values {
	q := url.Values{}
	for k, vs := range e.Static {
		q[k] = append([]string(nil), vs...)
	}
	for _, f := range spec.Active() {
		name := f.Key
		if mapped, ok := e.Params[f.Key]; ok && mapped != "" {
			name = mapped
		}
		q.Set(name, f.Value)
	}
	pageParam := e.PageParam
	if pageParam == "" {
		pageParam = "page"
	}
	q.Set(pageParam, strconv.Itoa(spec.Page()))
	if e.PageSizeParam != "" {
		q.Set(e.PageSizeParam, strconv.Itoa(spec.PageSize()))
	}
	return q
}

// Source fetches pages of T from one endpoint. It satisfies
// listing.DataSource.
type Source[T any] struct {
	client   *HTTPClient
	endpoint Endpoint
}

// NewSource validates the endpoint's envelope and returns a source for it.
func NewSource[T any](c *HTTPClient, ep Endpoint) (*Source[T], error) {
	if ep.Path == "" {
		return nil, fmt.Errorf("endpoint: path is required")
	}
	if err := ep.Envelope.Validate(); err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", ep.Path, err)
	}
	return &Source[T]{client: c, endpoint: ep}, nil
}

// Endpoint returns the endpoint the source reads.
func (s *Source[T]) Endpoint() Endpoint { return s.endpoint }

// FetchPage fetches and normalizes one page. Any failure, including a body
// that does not match the envelope, is returned as an error with an empty
// page.
func (s *Source[T]) FetchPage(ctx context.Context, spec model.QuerySpec) (model.Page[T], error) {
	if err := spec.Validate(); err != nil {
		return model.Page[T]{}, err
	}
	doc, err := s.client.GetDocument(ctx, s.endpoint.Path, s.endpoint.Query(spec))
	if err != nil {
		return model.Page[T]{}, fmt.Errorf("fetching %s: %w", s.endpoint.Path, err)
	}
	raw, meta, err := s.endpoint.Envelope.Normalize(doc)
	if err != nil {
		return model.Page[T]{}, fmt.Errorf("fetching %s: %w", s.endpoint.Path, err)
	}
	items, err := decodeItems[T](raw)
	if err != nil {
		return model.Page[T]{}, fmt.Errorf("fetching %s: %w", s.endpoint.Path, err)
	}
	return model.Page[T]{Items: items, Meta: meta}, nil
}

func decodeItems[T any](raw []any) ([]T, error) {
	out := make([]T, 0, len(raw))
	// Records are already the decoded shape.
	if recs, ok := any(&out).(*[]model.Record); ok {
		for i, r := range raw {
			m, isMap := r.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("%w: item %d is %s, not an object", ErrEnvelope, i, kind(r))
			}
			*recs = append(*recs, model.Record(m))
		}
		return out, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding items: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding items: %v", ErrEnvelope, err)
	}
	return out, nil
}
