package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/eventify/internal/apitest"
	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
)

func newAPIClient(t *testing.T) (*apitest.Server, *HTTPClient) {
	t.Helper()
	api := apitest.New(t)
	return api, NewHTTPClient(api.URL, "", WithLogger(quietLogger), WithRetries(1, time.Millisecond))
}

func screenSource(t *testing.T, c *HTTPClient, name string) (Screen, *Source[model.Record]) {
	t.Helper()
	screen, err := DefaultCatalog().Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	src, err := NewSource[model.Record](c, screen.Endpoint)
	if err != nil {
		t.Fatalf("NewSource(%s) error = %v", name, err)
	}
	return screen, src
}

func TestEndpoint_Query(t *testing.T) {
	ep := Endpoint{
		Path:          "/coupon/coupons/",
		Params:        map[string]string{"active": "is_active"},
		PageSizeParam: "page_size",
	}
	ep.Static = map[string][]string{"ordering": {"-created_at"}}

	spec := model.NewQuerySpec(20).
		WithFilter("search", "SAVE").
		WithFilter("active", "true").
		WithFilter("organizer", "").
		WithPage(3)

	q := ep.Query(spec)
	want := "is_active=true&ordering=-created_at&page=3&page_size=20&search=SAVE"
	if got := q.Encode(); got != want {
		t.Errorf("Query() = %s, want %s", got, want)
	}

	ep.PageParam = "p"
	ep.PageSizeParam = ""
	if got := ep.Query(model.NewQuerySpec(10)).Encode(); got != "ordering=-created_at&p=1" {
		t.Errorf("Query() with custom page param = %s", got)
	}
}

// Every screen of the catalog must read its fake endpoint and agree with it
// on the number of rows.
func TestSource_EveryScreen(t *testing.T) {
	api, c := newAPIClient(t)

	for _, tc := range []struct {
		screen string
		count  int // 0 when the endpoint reports total_pages only
		pages  int
	}{
		{screen: "events", count: apitest.SeedEvents, pages: 5},
		{screen: "organizers", count: apitest.SeedOrganizers, pages: 2},
		{screen: "wallet", count: apitest.SeedTransactions, pages: 3},
		{screen: "organizer-events", count: apitest.SeedOrganizerEvents, pages: 2},
		{screen: "organizer-bookings", count: apitest.SeedBookings, pages: 3},
		{screen: "organizer-wallet", count: apitest.SeedTransactions, pages: 3},
		{screen: "admin-clients", pages: 4},
		{screen: "admin-organizers", pages: 2},
		{screen: "admin-events", count: apitest.SeedEvents, pages: 5},
		{screen: "coupons", count: apitest.SeedCoupons, pages: 2},
		{screen: "admin-wallet", count: apitest.SeedTransactions, pages: 3},
	} {
		t.Run(tc.screen, func(t *testing.T) {
			screen, src := screenSource(t, c, tc.screen)
			page, err := src.FetchPage(context.Background(), model.NewQuerySpec(screen.PageSize))
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if page.Meta.Count != tc.count {
				t.Errorf("Count = %d, want %d", page.Meta.Count, tc.count)
			}
			if got := listing.TotalPages(page.Meta, screen.PageSize); got != tc.pages {
				t.Errorf("TotalPages = %d, want %d", got, tc.pages)
			}
			if len(page.Items) != screen.PageSize {
				t.Errorf("items = %d, want a full page of %d", len(page.Items), screen.PageSize)
			}
			for _, col := range screen.Columns[:1] {
				if col.Value(page.Items[0]) == "" {
					t.Errorf("column %s empty on first row %v", col.Header, page.Items[0])
				}
			}
		})
	}
	if n := len(api.Requests()); n != 11 {
		t.Errorf("requests = %d, want 11", n)
	}
}

func TestSource_FiltersReachBackend(t *testing.T) {
	api, c := newAPIClient(t)
	_, src := screenSource(t, c, "events")

	spec := model.NewQuerySpec(10).WithFilter("search", "jazz").WithFilter("category", "")
	page, err := src.FetchPage(context.Background(), spec)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Meta.Count != apitest.SeedJazzEvents {
		t.Errorf("Count = %d, want %d", page.Meta.Count, apitest.SeedJazzEvents)
	}
	for _, it := range page.Items {
		if !strings.Contains(strings.ToLower(it["title"].(string)), "jazz") {
			t.Errorf("unexpected row %v", it["title"])
		}
	}

	reqs := api.RequestsTo("/events/")
	if len(reqs) != 1 {
		t.Fatalf("requests = %d", len(reqs))
	}
	if _, sent := reqs[0].Query["category"]; sent {
		t.Error("empty filter was sent")
	}
	if reqs[0].Query.Get("page") != "1" {
		t.Errorf("page param = %q", reqs[0].Query.Get("page"))
	}
}

func TestSource_PageSizeParam(t *testing.T) {
	api, c := newAPIClient(t)
	_, src := screenSource(t, c, "coupons")

	page, err := src.FetchPage(context.Background(), model.NewQuerySpec(5).WithPage(4))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("items on last page = %d, want 2", len(page.Items))
	}
	if got := api.RequestsTo("/coupon/coupons/")[0].Query.Get("page_size"); got != "5" {
		t.Errorf("page_size = %q, want 5", got)
	}
}

func TestSource_TypedItems(t *testing.T) {
	_, c := newAPIClient(t)
	screen, err := DefaultCatalog().Lookup("organizer-bookings")
	if err != nil {
		t.Fatal(err)
	}

	type booking struct {
		ID     string `json:"booking_id"`
		Name   string `json:"booking_name"`
		Total  int    `json:"total_price"`
		Status string `json:"payment_status"`
	}
	src, err := NewSource[booking](c, screen.Endpoint)
	if err != nil {
		t.Fatal(err)
	}
	page, err := src.FetchPage(context.Background(), model.NewQuerySpec(10).WithFilter("status", "pending"))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) == 0 {
		t.Fatal("no pending bookings")
	}
	for _, b := range page.Items {
		if b.Status != "pending" || b.ID == "" || b.Total == 0 {
			t.Errorf("booking = %+v", b)
		}
	}
}

func TestSource_Failures(t *testing.T) {
	api, c := newAPIClient(t)
	_, src := screenSource(t, c, "admin-events")

	api.FailNext(http.StatusInternalServerError, http.StatusInternalServerError)
	page, err := src.FetchPage(context.Background(), model.NewQuerySpec(10))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Fatalf("error = %v, want HTTP 500", err)
	}
	if page.Items != nil || page.Meta != (model.PageMeta{}) {
		t.Errorf("failed fetch returned partial page %+v", page)
	}

	api.FailNext(http.StatusBadGateway)
	if _, err := src.FetchPage(context.Background(), model.NewQuerySpec(10)); err != nil {
		t.Errorf("single 502 should be retried, got %v", err)
	}

	if _, err := src.FetchPage(context.Background(), model.NewQuerySpec(10).WithFilter("page", "2")); err == nil {
		t.Error("invalid spec was fetched")
	}
}

func TestSource_EnvelopeMismatch(t *testing.T) {
	api, c := newAPIClient(t)
	src, err := NewSource[model.Record](c, Endpoint{Path: "/events/", Envelope: DRF()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = src.FetchPage(context.Background(), model.NewQuerySpec(10))
	if !errors.Is(err, ErrEnvelope) {
		t.Fatalf("error = %v, want ErrEnvelope", err)
	}
	if n := len(api.Requests()); n != 1 {
		t.Errorf("envelope errors must not be retried: %d requests", n)
	}
}

func TestNewSource_Invalid(t *testing.T) {
	c := NewHTTPClient("http://localhost", "")
	if _, err := NewSource[model.Record](c, Endpoint{Envelope: DRF()}); err == nil {
		t.Error("missing path accepted")
	}
	if _, err := NewSource[model.Record](c, Endpoint{Path: "/x/"}); err == nil {
		t.Error("empty envelope accepted")
	}
}

// A controller over the real adapter settles on the clamped page when a
// refresh finds the result set has shrunk.
func TestSource_ControllerClampsShrunkResults(t *testing.T) {
	api, c := newAPIClient(t)
	screen, src := screenSource(t, c, "events")

	ctl := listing.New[model.Record](src, screen.ListingOptions(20*time.Millisecond, quietLogger))
	defer ctl.Close()

	ctl.SetPage(5)
	waitSettled(t, ctl)
	if st := ctl.State(); st.Page.CurrentPage != 5 || st.Page.TotalPages != 5 {
		t.Fatalf("page = %d of %d, want 5 of 5", st.Page.CurrentPage, st.Page.TotalPages)
	}

	api.SetRows("events", api.Rows("events")[:25])
	ctl.Refresh()
	waitSettled(t, ctl)

	st := ctl.State()
	if st.Page.CurrentPage != 3 || st.Page.TotalPages != 3 {
		t.Errorf("page = %d of %d, want 3 of 3", st.Page.CurrentPage, st.Page.TotalPages)
	}
	if len(st.Items) != 5 {
		t.Errorf("items = %d, want 5", len(st.Items))
	}
	if got := api.RequestsTo("/events/"); len(got) != 3 || got[2].Query.Get("page") != "3" {
		t.Errorf("requests = %+v", got)
	}
}

func waitSettled(t *testing.T, ctl *listing.Controller[model.Record]) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if st := ctl.State(); !st.Loading && st.Sequence > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("controller never settled")
}
