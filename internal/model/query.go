package model

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageSize is the page size most list screens use.
const DefaultPageSize = 10

// Filter is one key/value pair of a QuerySpec. An empty Value means "no filter".
type Filter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// QuerySpec is the immutable set of parameters for one fetch: ordered filters,
// a 1-based page number and a fixed page size. Every builder method returns a
// new QuerySpec; a spec handed to a fetch is never mutated afterwards.
type QuerySpec struct {
	filters  []Filter
	page     int
	pageSize int
}

// NewQuerySpec returns an unfiltered spec for page 1.
func NewQuerySpec(pageSize int) QuerySpec {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return QuerySpec{page: 1, pageSize: pageSize}
}

// Page returns the 1-based page number.
func (q QuerySpec) Page() int {
	if q.page < 1 {
		return 1
	}
	return q.page
}

// PageSize returns the page size.
func (q QuerySpec) PageSize() int {
	if q.pageSize < 1 {
		return DefaultPageSize
	}
	return q.pageSize
}

// Offset returns the zero-based index of the first item on the page.
func (q QuerySpec) Offset() int {
	return (q.Page() - 1) * q.PageSize()
}

// Filters returns a copy of the filters in insertion order, including empty ones.
func (q QuerySpec) Filters() []Filter {
	out := make([]Filter, len(q.filters))
	copy(out, q.filters)
	return out
}

// Active returns only the filters with a non-empty value.
func (q QuerySpec) Active() []Filter {
	var out []Filter
	for _, f := range q.filters {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// Get returns the value of a filter, or "" when it is unset.
func (q QuerySpec) Get(key string) string {
	for _, f := range q.filters {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// WithFilter returns a copy with key set to value. Existing keys keep their
// position; new keys are appended.
func (q QuerySpec) WithFilter(key, value string) QuerySpec {
	out := q.clone()
	for i := range out.filters {
		if out.filters[i].Key == key {
			out.filters[i].Value = value
			return out
		}
	}
	out.filters = append(out.filters, Filter{Key: key, Value: value})
	return out
}

// WithFilters returns a copy with all the given filters applied in order.
func (q QuerySpec) WithFilters(filters []Filter) QuerySpec {
	out := q
	for _, f := range filters {
		out = out.WithFilter(f.Key, f.Value)
	}
	return out
}

// WithPage returns a copy pointing at page. Values below 1 become 1.
func (q QuerySpec) WithPage(page int) QuerySpec {
	out := q.clone()
	if page < 1 {
		page = 1
	}
	out.page = page
	return out
}

// Key returns a canonical encoding of the spec. Two specs with the same active
// filters, page and page size have the same key regardless of filter order.
func (q QuerySpec) Key() string {
	v := url.Values{}
	for _, f := range q.Active() {
		v.Set(f.Key, f.Value)
	}
	v.Set("page", strconv.Itoa(q.Page()))
	v.Set("page_size", strconv.Itoa(q.PageSize()))
	return v.Encode()
}

// Equal reports whether two specs would produce the same fetch.
func (q QuerySpec) Equal(other QuerySpec) bool {
	return q.Key() == other.Key()
}

// String implements fmt.Stringer for logging.
func (q QuerySpec) String() string {
	var b strings.Builder
	b.WriteString("page=")
	b.WriteString(strconv.Itoa(q.Page()))
	for _, f := range q.Active() {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(f.Value))
	}
	return b.String()
}

func (q QuerySpec) clone() QuerySpec {
	out := QuerySpec{page: q.Page(), pageSize: q.PageSize()}
	if len(q.filters) > 0 {
		out.filters = make([]Filter, len(q.filters))
		copy(out.filters, q.filters)
	}
	return out
}
