package client

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
)

// ErrUnknownScreen is returned by Catalog.Lookup for names it does not know.
var ErrUnknownScreen = errors.New("client: unknown screen")

// Column is one display column of a screen.
type Column struct {
	Header string
	Expr   string // JMESPath over one record
}

// Value renders the column for rec. Missing values render as "".
func (c Column) Value(rec model.Record) string {
	v, err := jmespath.Search(c.Expr, map[string]any(rec))
	if err != nil {
		return ""
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', 2, 64)
	}
	return fmt.Sprint(v)
}

// Screen is one list view of the Eventify frontend: the endpoint it reads,
// how its filters dispatch and what it shows.
type Screen struct {
	Name     string
	Title    string
	Role     string // client, organizer or admin
	Endpoint Endpoint
	PageSize int
	Filters  []listing.FilterConfig
	Columns  []Column
	// Topics are the live update categories that make this screen stale.
	Topics []string
}

// Filter returns the configuration of key.
func (s Screen) Filter(key string) (listing.FilterConfig, bool) {
	for _, f := range s.Filters {
		if f.Key == key {
			return f, true
		}
	}
	return listing.FilterConfig{}, false
}

// Tune returns a copy with a different page size and extra immediate keys.
// Zero pageSize keeps the screen's own.
func (s Screen) Tune(pageSize int, immediate []string) Screen {
	if pageSize > 0 {
		s.PageSize = pageSize
	}
	filters := make([]listing.FilterConfig, len(s.Filters))
	copy(filters, s.Filters)
	for _, key := range immediate {
		for i := range filters {
			if filters[i].Key == key {
				filters[i].Immediate = true
			}
		}
	}
	s.Filters = filters
	return s
}

// ListingOptions builds controller options for the screen.
func (s Screen) ListingOptions(debounce time.Duration, log *slog.Logger) listing.Options {
	return listing.Options{
		PageSize: s.PageSize,
		Debounce: debounce,
		Filters:  s.Filters,
		Logger:   log,
	}
}

// Catalog is a registry of screens by name.
type Catalog struct {
	screens map[string]Screen
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{screens: make(map[string]Screen)}
}

// Register adds or replaces a screen after validating its endpoint.
func (c *Catalog) Register(s Screen) error {
	if s.Name == "" {
		return fmt.Errorf("screen: name is required")
	}
	if s.Endpoint.Path == "" {
		return fmt.Errorf("screen %s: endpoint path is required", s.Name)
	}
	if err := s.Endpoint.Envelope.Validate(); err != nil {
		return fmt.Errorf("screen %s: %w", s.Name, err)
	}
	for _, col := range s.Columns {
		if _, err := jmespath.Compile(col.Expr); err != nil {
			return fmt.Errorf("screen %s: column %s: %w", s.Name, col.Header, err)
		}
	}
	if s.PageSize < 1 {
		s.PageSize = model.DefaultPageSize
	}
	c.screens[s.Name] = s
	return nil
}

// Lookup returns the screen called name.
func (c *Catalog) Lookup(name string) (Screen, error) {
	s, ok := c.screens[name]
	if !ok {
		return Screen{}, fmt.Errorf("%w: %s", ErrUnknownScreen, name)
	}
	return s, nil
}

// Screens returns every screen sorted by role then name.
func (c *Catalog) Screens() []Screen {
	out := make([]Screen, 0, len(c.screens))
	for _, s := range c.screens {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Name < out[j].Name
	})
	return out
}

var (
	searchFilter = listing.FilterConfig{Key: "search"}
	immediate    = func(key string) listing.FilterConfig {
		return listing.FilterConfig{Key: key, Immediate: true}
	}
	walletColumns = []Column{
		{Header: "ID", Expr: "transaction_id"},
		{Header: "TYPE", Expr: "transaction_type"},
		{Header: "AMOUNT", Expr: "amount"},
		{Header: "REFERENCE", Expr: "reference_id"},
		{Header: "DATE", Expr: "created_at"},
	}
)

// DefaultCatalog returns the list screens of the Eventify frontend.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, s := range []Screen{
		{
			Name: "events", Title: "Events", Role: "client",
			Endpoint: Endpoint{Path: "/events/", Envelope: Keyed("events")},
			PageSize: 10,
			Filters:  []listing.FilterConfig{searchFilter, immediate("category"), {Key: "location"}},
			Columns: []Column{
				{Header: "TITLE", Expr: "title"},
				{Header: "DATE", Expr: "date"},
				{Header: "LOCATION", Expr: "location"},
				{Header: "PRICE", Expr: "pricePerTicket"},
				{Header: "SOLD", Expr: "ticketsSold"},
				{Header: "LIMIT", Expr: "ticketLimit"},
			},
			Topics: []string{"event"},
		},
		{
			Name: "organizers", Title: "Organizers", Role: "client",
			Endpoint: Endpoint{Path: "/organizers/", Envelope: Envelope{Items: "results || organizers", Count: "count"}},
			PageSize: 12,
			Filters:  []listing.FilterConfig{searchFilter},
			Columns: []Column{
				{Header: "NAME", Expr: "full_name || organization_name"},
				{Header: "EMAIL", Expr: "email"},
				{Header: "LOCATION", Expr: "location"},
			},
		},
		{
			Name: "wallet", Title: "My wallet", Role: "client",
			Endpoint: Endpoint{Path: "/wallet/transactions/", Envelope: NestedResults("transactions")},
			PageSize: 10,
			Filters:  []listing.FilterConfig{immediate("transaction_type")},
			Columns:  walletColumns,
			Topics:   []string{"wallet", "booking"},
		},
		{
			Name: "organizer-bookings", Title: "Bookings", Role: "organizer",
			Endpoint: Endpoint{Path: "/organizer/organizer-bookings/", Envelope: SuccessList("bookings")},
			PageSize: 10,
			Filters:  []listing.FilterConfig{searchFilter, immediate("event_id"), immediate("status")},
			Columns: []Column{
				{Header: "ID", Expr: "booking_id"},
				{Header: "NAME", Expr: "booking_name"},
				{Header: "EVENT", Expr: "event.title || event_title"},
				{Header: "TOTAL", Expr: "total_price"},
				{Header: "STATUS", Expr: "payment_status"},
				{Header: "CANCELLED", Expr: "is_booking_cancelled"},
			},
			Topics: []string{"booking"},
		},
		{
			Name: "organizer-events", Title: "My events", Role: "organizer",
			Endpoint: Endpoint{Path: "/organizer/organizer-events/", Envelope: organizerEventsEnvelope(), PageSizeParam: "page_size"},
			PageSize: 10,
			Filters:  []listing.FilterConfig{immediate("is_completed")},
			Columns: []Column{
				{Header: "TITLE", Expr: "title"},
				{Header: "DATE", Expr: "date"},
				{Header: "LOCATION", Expr: "location"},
				{Header: "SOLD", Expr: "ticketsSold"},
				{Header: "LIMIT", Expr: "ticketLimit"},
				{Header: "COMPLETED", Expr: "is_completed"},
				{Header: "ON HOLD", Expr: "on_hold"},
			},
			Topics: []string{"event", "booking"},
		},
		{
			Name: "organizer-wallet", Title: "Organizer wallet", Role: "organizer",
			Endpoint: Endpoint{Path: "/wallet/organizer/transactions/", Envelope: NestedResults("transactions")},
			PageSize: 10,
			Filters:  []listing.FilterConfig{immediate("transaction_type")},
			Columns:  append(append([]Column(nil), walletColumns...), Column{Header: "EVENT", Expr: "event.title || event"}),
			Topics:   []string{"wallet", "booking"},
		},
		{
			Name: "admin-clients", Title: "Clients", Role: "admin",
			Endpoint: Endpoint{Path: "/users/clients/", Envelope: PagesOnly()},
			PageSize: 10,
			Filters:  []listing.FilterConfig{searchFilter},
			Columns:  userColumns(),
		},
		{
			Name: "admin-organizers", Title: "Organizers", Role: "admin",
			Endpoint: Endpoint{Path: "/users/organizers/", Envelope: PagesOnly()},
			PageSize: 10,
			Filters:  []listing.FilterConfig{searchFilter},
			Columns:  userColumns(),
		},
		{
			Name: "admin-events", Title: "Event management", Role: "admin",
			Endpoint: Endpoint{Path: "/admin/events/", Envelope: SuccessList("events")},
			PageSize: 10,
			Filters: []listing.FilterConfig{
				searchFilter, immediate("organizer_id"), immediate("status"), immediate("settlement_status"),
			},
			Columns: eventAdminColumns(),
			Topics:  []string{"event", "booking"},
		},
		{
			Name: "settlements", Title: "Event settlement", Role: "admin",
			Endpoint: Endpoint{Path: "/admin/events/", Envelope: SuccessList("events")},
			PageSize: 10,
			Filters: []listing.FilterConfig{
				searchFilter,
				immediate("organizer_id"),
				{Key: "settlement_status", Default: "available_for_settlement", Immediate: true},
			},
			Columns: eventAdminColumns(),
			Topics:  []string{"event", "wallet"},
		},
		{
			Name: "coupons", Title: "Coupons", Role: "admin",
			Endpoint: Endpoint{Path: "/coupon/coupons/", Envelope: Keyed("results"), PageSizeParam: "page_size"},
			PageSize: 10,
			Filters:  []listing.FilterConfig{searchFilter, immediate("is_active")},
			Columns: []Column{
				{Header: "CODE", Expr: "code"},
				{Header: "ORGANIZER", Expr: "organizer_name"},
				{Header: "DISCOUNT", Expr: "discount_amount"},
				{Header: "MIN", Expr: "minimum_purchase_amt"},
				{Header: "FROM", Expr: "valid_from"},
				{Header: "TO", Expr: "valid_to"},
				{Header: "ACTIVE", Expr: "is_active"},
			},
			Topics: []string{"coupon"},
		},
		{
			Name: "admin-wallet", Title: "Company wallet", Role: "admin",
			Endpoint: Endpoint{Path: "/admin/wallet/", Envelope: SuccessList("transactions")},
			PageSize: 10,
			Filters:  []listing.FilterConfig{searchFilter, immediate("transaction_type")},
			Columns: []Column{
				{Header: "TYPE", Expr: "transaction_type"},
				{Header: "AMOUNT", Expr: "transaction_amount"},
				{Header: "BALANCE", Expr: "total_balance"},
				{Header: "REFERENCE", Expr: "reference_id"},
				{Header: "DATE", Expr: "created_at"},
			},
			Topics: []string{"wallet"},
		},
	} {
		if err := c.Register(s); err != nil {
			panic(err)
		}
	}
	return c
}

// organizerEventsEnvelope is {count, next, previous, results: {success,
// count, events}}.
func organizerEventsEnvelope() Envelope {
	e := NestedResults("events")
	e.Success = "results.success"
	e.Message = "results.message"
	return e
}

func userColumns() []Column {
	return []Column{
		{Header: "ID", Expr: "user_id"},
		{Header: "NAME", Expr: "full_name"},
		{Header: "EMAIL", Expr: "email"},
		{Header: "MOBILE", Expr: "mobile"},
		{Header: "BLOCKED", Expr: "is_blocked"},
	}
}

func eventAdminColumns() []Column {
	return []Column{
		{Header: "TITLE", Expr: "title"},
		{Header: "DATE", Expr: "date"},
		{Header: "ORGANIZER", Expr: "organizer_name || hostedBy"},
		{Header: "SOLD", Expr: "ticketsSold"},
		{Header: "COMPLETED", Expr: "is_completed"},
		{Header: "ON HOLD", Expr: "on_hold"},
		{Header: "SETTLED", Expr: "is_settled"},
	}
}
