package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/eventify/internal/listing"
)

// PagerLine renders a windowed page selector such as
// "< prev  1 [2] 3 4 5 ...  next >". Unavailable directions are muted.
func PagerLine(p listing.Pager) string {
	var b strings.Builder
	if p.HasPrevious {
		b.WriteString("< prev")
	} else {
		b.WriteString(RenderMuted("< prev"))
	}
	b.WriteString(" ")
	if p.LeadingGap {
		b.WriteString(" ...")
	}
	for _, n := range p.Pages {
		b.WriteString(" ")
		if n == p.Current {
			b.WriteString(RenderAccent("[" + strconv.Itoa(n) + "]"))
		} else {
			b.WriteString(strconv.Itoa(n))
		}
	}
	if p.TrailingGap {
		b.WriteString(" ...")
	}
	b.WriteString("  ")
	if p.HasNext {
		b.WriteString("next >")
	} else {
		b.WriteString(RenderMuted("next >"))
	}
	return b.String()
}

// RangeLine renders "Showing 11 to 20 of 45". Backends that report only a
// page count leave the total out.
func RangeLine(r listing.Range) string {
	if r.Start == 0 {
		return "No results"
	}
	if r.Total <= 0 {
		return fmt.Sprintf("Showing %d to %d", r.Start, r.End)
	}
	return fmt.Sprintf("Showing %d to %d of %d", r.Start, r.End, r.Total)
}
