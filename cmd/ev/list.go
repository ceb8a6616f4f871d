package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/model"
	"github.com/alfredjeanlab/eventify/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list <screen>",
	Short:   "Fetch and print one page of a screen",
	GroupID: "views",
	Example: `  ev list events --filter search=jazz
  ev list admin-events --filter on_hold=true --page 2
  ev list coupons --page-size 25 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringArray("filter")
		filters, err := parseFilters(raw)
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("page-size")

		s, err := newSession(cfg, prof, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		return runList(cmd.Context(), cmd.OutOrStdout(), s, listParams{
			screen: args[0], filters: filters, page: page, pageSize: size,
		})
	},
}

type listParams struct {
	screen   string
	filters  []model.Filter
	page     int
	pageSize int
}

// runList applies the whole query to a controller as one change, waits for the
// page to settle and prints it.
func runList(ctx context.Context, w io.Writer, s *session, p listParams) error {
	ctrl, scr, err := s.controller(p.screen, p.pageSize)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	for _, f := range p.filters {
		if _, ok := scr.Filter(f.Key); !ok {
			s.log.Warn("filter is not declared by the screen; sending it as is", "screen", scr.Name, "key", f.Key)
		}
	}
	ctrl.SetQuery(p.filters, p.page)

	st, err := awaitSettled(ctx, ctrl)
	if err != nil {
		return err
	}
	return printState(w, scr, st, ui.Width())
}

func init() {
	listCmd.Flags().StringArrayP("filter", "f", nil, "filter as key=value (repeatable)")
	listCmd.Flags().Int("page", 1, "page to show")
	listCmd.Flags().Int("page-size", 0, "page size, for screens whose API accepts one")
}
