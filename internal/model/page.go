package model

// PageMeta is the normalized pagination metadata of one backend response.
// TotalPages is set only by backends that report it directly; Next and
// Previous are nil when the backend is not cursor-style.
type PageMeta struct {
	Count      int   `json:"count"`
	TotalPages int   `json:"total_pages,omitempty"`
	Next       *bool `json:"next,omitempty"`
	Previous   *bool `json:"previous,omitempty"`
}

// Page is the result of one data source fetch.
type Page[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}

// PageState is the navigation state derived from the latest fulfilled fetch.
type PageState struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalCount  int  `json:"total_count"`
	PageSize    int  `json:"page_size"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// InitialPageState is the state shown before anything has been fetched.
func InitialPageState(pageSize int) PageState {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return PageState{CurrentPage: 1, TotalPages: 1, PageSize: pageSize}
}

// Flag returns a pointer to b, for building cursor-style PageMeta values.
func Flag(b bool) *bool {
	return &b
}

// Record is a schemaless row decoded from a backend list response.
type Record map[string]any
