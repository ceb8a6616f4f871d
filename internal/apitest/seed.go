package apitest

import "fmt"

// Seed sizes, for tests that assert on counts.
const (
	SeedEvents          = 45
	SeedOrganizers      = 14
	SeedClients         = 31
	SeedBookings        = 23
	SeedCoupons         = 17
	SeedTransactions    = 27
	SeedMusicEvents     = 15 // events with category "music"
	SeedJazzEvents      = 3  // events whose title mentions jazz
	SeedSettleableEvent = 5  // admin events available for settlement
	SeedOrganizerEvents = 15 // events hosted by the signed-in organizer
	SeedCompletedEvents = 2  // of those, completed
)

var categories = []string{"music", "art", "tech"}

// Seed returns the default datasets.
func Seed() map[string][]Row {
	events := make([]Row, 0, SeedEvents)
	for i := 1; i <= SeedEvents; i++ {
		title := fmt.Sprintf("Event %02d", i)
		if i%15 == 1 {
			title = fmt.Sprintf("Jazz Night %d", i/15+1)
		}
		settlement := "unsettled"
		switch {
		case i <= SeedSettleableEvent:
			settlement = "available_for_settlement"
		case i > 40:
			settlement = "settled"
		}
		events = append(events, Row{
			"eventId":           fmt.Sprintf("evt-%03d", i),
			"title":             title,
			"category":          categories[(i-1)%len(categories)],
			"date":              fmt.Sprintf("2026-%02d-%02d", (i-1)%12+1, (i-1)%28+1),
			"location":          []string{"Kochi", "Bengaluru", "Chennai"}[i%3],
			"pricePerTicket":    100 + i*10,
			"ticketsSold":       i * 3,
			"ticketLimit":       200,
			"is_completed":      i > 40,
			"on_hold":           i%9 == 0,
			"organizer_id":      fmt.Sprintf("org-%02d", (i-1)%SeedOrganizers+1),
			"organizer_name":    fmt.Sprintf("Organizer %02d", (i-1)%SeedOrganizers+1),
			"settlement_status": settlement,
			"is_settled":        settlement == "settled",
			"status":            map[bool]string{true: "completed", false: "upcoming"}[i > 40],
		})
	}

	// The signed-in organizer hosts the tech events.
	hosted := make([]Row, 0, SeedOrganizerEvents)
	for _, e := range events {
		if e["category"] == "tech" {
			hosted = append(hosted, e)
		}
	}

	organizers := make([]Row, 0, SeedOrganizers)
	for i := 1; i <= SeedOrganizers; i++ {
		organizers = append(organizers, Row{
			"user_id":           fmt.Sprintf("org-%02d", i),
			"full_name":         fmt.Sprintf("Organizer %02d", i),
			"organization_name": fmt.Sprintf("Org House %02d", i),
			"email":             fmt.Sprintf("org%02d@eventify.test", i),
			"mobile":            fmt.Sprintf("90000000%02d", i),
			"location":          []string{"Kochi", "Bengaluru"}[i%2],
			"is_blocked":        false,
		})
	}

	clients := make([]Row, 0, SeedClients)
	for i := 1; i <= SeedClients; i++ {
		clients = append(clients, Row{
			"user_id":    fmt.Sprintf("usr-%02d", i),
			"full_name":  fmt.Sprintf("Client %02d", i),
			"email":      fmt.Sprintf("client%02d@eventify.test", i),
			"mobile":     fmt.Sprintf("80000000%02d", i),
			"role":       "client",
			"is_blocked": i%10 == 0,
		})
	}

	bookings := make([]Row, 0, SeedBookings)
	for i := 1; i <= SeedBookings; i++ {
		status := []string{"completed", "pending", "failed"}[i%3]
		bookings = append(bookings, Row{
			"booking_id":           fmt.Sprintf("bk-%03d", i),
			"booking_name":         fmt.Sprintf("Guest %02d", i),
			"event_id":             fmt.Sprintf("evt-%03d", (i-1)%5+1),
			"event_title":          fmt.Sprintf("Event %02d", (i-1)%5+1),
			"total_price":          250 * (i%4 + 1),
			"payment_status":       status,
			"status":               status,
			"is_booking_cancelled": i%7 == 0,
			"created_at":           fmt.Sprintf("2026-02-%02dT10:00:00Z", (i-1)%28+1),
		})
	}

	coupons := make([]Row, 0, SeedCoupons)
	for i := 1; i <= SeedCoupons; i++ {
		coupons = append(coupons, Row{
			"couponId":             i,
			"code":                 fmt.Sprintf("SAVE%02d", i),
			"organizer":            fmt.Sprintf("org-%02d", (i-1)%SeedOrganizers+1),
			"organizer_name":       fmt.Sprintf("Organizer %02d", (i-1)%SeedOrganizers+1),
			"discount_amount":      50 + i,
			"minimum_purchase_amt": 500,
			"valid_from":           "2026-01-01",
			"valid_to":             "2026-12-31",
			"is_active":            i%4 != 0,
		})
	}

	return map[string][]Row{
		"events":           events,
		"organizers":       organizers,
		"clients":          clients,
		"admin-organizers": organizers,
		"admin-events":     events,
		"organizer-events": hosted,
		"company-wallet":   transactions("cw", true),
		"coupons":          coupons,
		"bookings":         bookings,
		"user-wallet":      transactions("uw", false),
		"organizer-wallet": transactions("ow", false),
	}
}

func transactions(prefix string, company bool) []Row {
	rows := make([]Row, 0, SeedTransactions)
	balance := 0
	for i := 1; i <= SeedTransactions; i++ {
		kind := "credit"
		amount := 100 * (i%5 + 1)
		if i%4 == 0 {
			kind = "debit"
			balance -= amount
		} else {
			balance += amount
		}
		row := Row{
			"transaction_id":   fmt.Sprintf("%s-%03d", prefix, i),
			"transaction_type": kind,
			"reference_id":     fmt.Sprintf("ref-%03d", i),
			"created_at":       fmt.Sprintf("2026-03-%02dT09:30:00Z", (i-1)%28+1),
		}
		if company {
			row["transaction_amount"] = amount
			row["total_balance"] = balance
		} else {
			row["amount"] = amount
		}
		rows = append(rows, row)
	}
	return rows
}
