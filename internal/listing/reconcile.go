package listing

import "github.com/alfredjeanlab/eventify/internal/model"

// DefaultWindow is the number of page buttons a windowed pager shows.
const DefaultWindow = 5

// TotalPages returns the page count implied by meta: the backend's own
// total_pages when it sends one, otherwise ceil(count / pageSize). Never less
// than 1.
func TotalPages(meta model.PageMeta, pageSize int) int {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	total := meta.TotalPages
	if total <= 0 {
		total = (meta.Count + pageSize - 1) / pageSize
	}
	if total < 1 {
		total = 1
	}
	return total
}

// Reconcile turns backend pagination metadata into navigation state for the
// requested page. When requestedPage lies beyond the last page it also returns
// the page that should be fetched instead; otherwise the second result is 0.
func Reconcile(meta model.PageMeta, pageSize, requestedPage int) (model.PageState, int) {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	total := TotalPages(meta, pageSize)

	redispatch := 0
	current := requestedPage
	if current < 1 {
		current = 1
	}
	if current > total {
		redispatch = total
		current = total
	}

	st := model.PageState{
		CurrentPage: current,
		TotalPages:  total,
		TotalCount:  meta.Count,
		PageSize:    pageSize,
		HasNext:     current < total,
		HasPrevious: current > 1,
	}
	// Cursor flags can only narrow navigation, never open a page past the
	// computed range.
	if meta.Next != nil {
		st.HasNext = st.HasNext && *meta.Next
	}
	if meta.Previous != nil {
		st.HasPrevious = st.HasPrevious && *meta.Previous
	}
	return st, redispatch
}

// WindowPages returns the page numbers a windowed pager shows: every page when
// there are at most window of them, otherwise window consecutive pages centred
// on current and slid inwards at either end.
func WindowPages(current, total, window int) []int {
	if total < 1 {
		total = 1
	}
	if window < 1 {
		window = 1
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	if total <= window {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	start := current - window/2
	if start < 1 {
		start = 1
	}
	end := start + window - 1
	if end > total {
		end = total
		start = end - window + 1
	}

	pages := make([]int, 0, window)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

// Pager is everything needed to render a windowed page selector.
type Pager struct {
	Pages       []int
	Current     int
	Total       int
	LeadingGap  bool // pages before the window exist
	TrailingGap bool // pages after the window exist
	HasNext     bool
	HasPrevious bool
}

// BuildPager lays out a windowed pager for st.
func BuildPager(st model.PageState, window int) Pager {
	pages := WindowPages(st.CurrentPage, st.TotalPages, window)
	return Pager{
		Pages:       pages,
		Current:     st.CurrentPage,
		Total:       st.TotalPages,
		LeadingGap:  pages[0] > 1,
		TrailingGap: pages[len(pages)-1] < st.TotalPages,
		HasNext:     st.HasNext,
		HasPrevious: st.HasPrevious,
	}
}

// Range is the 1-based span of items shown on the current page.
type Range struct {
	Start int // 0 when nothing is shown
	End   int
	Total int
}

// DisplayRange computes the "showing Start to End of Total" values for a page
// that rendered shown items.
func DisplayRange(st model.PageState, shown int) Range {
	if shown <= 0 {
		return Range{Total: st.TotalCount}
	}
	size := st.PageSize
	if size < 1 {
		size = model.DefaultPageSize
	}
	current := st.CurrentPage
	if current < 1 {
		current = 1
	}
	start := (current-1)*size + 1
	return Range{Start: start, End: start + shown - 1, Total: st.TotalCount}
}
