package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/client"
	"github.com/alfredjeanlab/eventify/internal/model"
	"github.com/alfredjeanlab/eventify/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <screen>",
	Short:   "Print rows of a screen page as they appear or change",
	GroupID: "views",
	Long: `Shows one page of a screen and keeps it current. New or changed rows are
printed whenever the event bus (EVENTIFY_NATS_URL) announces a relevant change,
or every --interval when no bus is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringArray("filter")
		filters, err := parseFilters(raw)
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		once, _ := cmd.Flags().GetBool("once")
		if cmd.Flags().Changed("interval") {
			cfg.PollInterval, _ = cmd.Flags().GetDuration("interval")
		}

		s, err := newSession(cfg, prof, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		return runWatch(cmd.Context(), cmd.OutOrStdout(), s, listParams{
			screen: args[0], filters: filters, page: page,
		}, once)
	},
}

// runWatch prints the first settled page in full and then only the rows that
// are new or changed, until ctx is done.
func runWatch(ctx context.Context, w io.Writer, s *session, p listParams, once bool) error {
	ctrl, scr, err := s.controller(p.screen, p.pageSize)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ch, cancel := ctrl.Subscribe()
	defer cancel()
	ctrl.SetQuery(p.filters, p.page)

	if !once {
		go func() {
			if err := follow(ctx, s.cfg.NATSURL, s.cfg.PollInterval, s.log, topicFilter(scr.Topics), func(reconnected bool) {
				liveUpdate(ctrl, reconnected)
			}); err != nil {
				s.log.Warn("watch: live updates stopped", "err", err)
			}
		}()
	}

	seen := make(map[string]string)
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-ch:
			if !ok {
				return nil
			}
			if st.Loading {
				continue
			}
			if st.Err != nil {
				if once {
					return st.Err
				}
				fmt.Fprintln(w, ui.RenderError("fetch failed: ")+st.Err.Error())
				continue
			}
			if st.Sequence == 0 || st.Sequence == lastSeq {
				continue
			}
			first := lastSeq == 0
			lastSeq = st.Sequence

			if first {
				diffRecords(st.Items, seen)
				if err := printState(w, scr, st, ui.Width()); err != nil {
					return err
				}
				if once {
					return nil
				}
				continue
			}
			if changed := diffRecords(st.Items, seen); len(changed) > 0 {
				if err := printChanges(w, scr, changed); err != nil {
					return err
				}
			}
		}
	}
}

func printChanges(w io.Writer, scr client.Screen, changed []model.Record) error {
	if jsonOutput {
		return printJSON(w, changed)
	}
	fmt.Fprintln(w, ui.RenderMuted(time.Now().Format("15:04:05"))+" "+
		ui.RenderAccent(fmt.Sprintf("%d changed", len(changed))))
	headers, cells := rows(scr, changed)
	return ui.Table(w, headers, cells, ui.CellWidth(ui.Width(), len(headers)))
}

// idKeys are the record fields the Eventify API uses as identifiers.
var idKeys = []string{"id", "booking_id", "transaction_id", "couponId", "coupon_id", "eventId", "event_id", "user_id", "organizer_id", "code"}

// recordKey identifies rec across fetches. Records without a known ID field
// are identified by their content, so an edit shows up as a new row.
func recordKey(rec model.Record) string {
	for _, k := range idKeys {
		if v, ok := rec[k]; ok && v != nil {
			return k + "=" + fmt.Sprint(v)
		}
	}
	return fingerprint(rec)
}

func fingerprint(rec model.Record) string {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprint(rec)
	}
	return string(data)
}

// diffRecords returns the records that are new or differ from what seen
// holds, and updates seen in place.
func diffRecords(items []model.Record, seen map[string]string) []model.Record {
	var changed []model.Record
	for _, rec := range items {
		key, sum := recordKey(rec), fingerprint(rec)
		if prev, ok := seen[key]; !ok || prev != sum {
			changed = append(changed, rec)
		}
		seen[key] = sum
	}
	return changed
}

func init() {
	watchCmd.Flags().StringArrayP("filter", "f", nil, "filter as key=value (repeatable)")
	watchCmd.Flags().Int("page", 1, "page to watch")
	watchCmd.Flags().Duration("interval", 30*time.Second, "polling interval when no event bus is configured")
	watchCmd.Flags().Bool("once", false, "print the page and exit")
}
