package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/client"
	"github.com/alfredjeanlab/eventify/internal/config"
	"github.com/alfredjeanlab/eventify/internal/export"
	"github.com/alfredjeanlab/eventify/internal/model"
)

var exportCmd = &cobra.Command{
	Use:     "export <screen>",
	Short:   "Snapshot every page of a screen",
	GroupID: "data",
	Long: `Fetches every page of a screen under the given filters and writes the rows as
JSON Lines. Destinations come from the environment:

  EVENTIFY_EXPORT_DIR           local directory (default ".")
  EVENTIFY_EXPORT_S3_BUCKET     also upload to S3 (EVENTIFY_EXPORT_S3_ENDPOINT for MinIO)
  EVENTIFY_EXPORT_DATABASE_URL  also record the snapshot in Postgres

With --interval (or EVENTIFY_EXPORT_INTERVAL) the export repeats until interrupted.`,
	Example: `  ev export admin-events -f is_settled=false
  ev export coupons --stdout > coupons.jsonl
  ev export settlements --interval 15m
  ev export admin-events --history`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringArray("filter")
		filters, err := parseFilters(raw)
		if err != nil {
			return err
		}
		history, _ := cmd.Flags().GetBool("history")
		toStdout, _ := cmd.Flags().GetBool("stdout")
		if cmd.Flags().Changed("dir") {
			cfg.Export.Dir, _ = cmd.Flags().GetString("dir")
		}
		if cmd.Flags().Changed("interval") {
			cfg.Export.Interval, _ = cmd.Flags().GetDuration("interval")
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Export.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}
		cfg.Export.Sanitize()

		if history {
			return printExportHistory(cmd.Context(), cmd.OutOrStdout(), cfg.Export, args[0])
		}

		s, err := newSession(cfg, prof, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		var out io.Writer
		if toStdout {
			out = cmd.OutOrStdout()
		}
		return runExport(cmd.Context(), cmd.ErrOrStderr(), s, args[0], filters, out)
	},
}

// stdoutDestination streams the snapshot to a writer instead of a file.
type stdoutDestination struct {
	w io.Writer
}

func (d stdoutDestination) Name() string { return "stdout" }

func (d stdoutDestination) Write(_ context.Context, snap *export.Snapshot) error {
	return export.EncodeJSONL(d.w, snap)
}

// destinations builds the configured export targets. out, when set,
// replaces the local directory. The returned cleanup closes the database.
func destinations(ctx context.Context, ec config.ExportConfig, out io.Writer) ([]export.Destination, func(), error) {
	var dests []export.Destination
	cleanup := func() {}

	if out != nil {
		dests = append(dests, stdoutDestination{w: out})
	} else {
		fd, err := export.NewFileDestination(ec.Dir)
		if err != nil {
			return nil, cleanup, err
		}
		dests = append(dests, fd)
	}
	if ec.S3Bucket != "" {
		sd, err := export.NewS3Destination(ctx, ec.S3Bucket, ec.S3Prefix, ec.S3Region, ec.S3Endpoint)
		if err != nil {
			return nil, cleanup, err
		}
		dests = append(dests, sd)
	}
	if ec.DatabaseURL != "" {
		pd, err := export.NewPostgresDestination(ec.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		dests = append(dests, pd)
		cleanup = func() { pd.Close() }
	}
	return dests, cleanup, nil
}

// exportSpec starts from the screen's default filters and applies filters.
func exportSpec(scr client.Screen, filters []model.Filter) model.QuerySpec {
	spec := model.NewQuerySpec(scr.PageSize)
	for _, fc := range scr.Filters {
		spec = spec.WithFilter(fc.Key, fc.Default)
	}
	return spec.WithFilters(filters)
}

func runExport(ctx context.Context, log io.Writer, s *session, name string, filters []model.Filter, out io.Writer) error {
	scr, _, err := s.screen(name, 0)
	if err != nil {
		return err
	}
	// Exports always read the API; a cached page could be older than its
	// neighbours.
	src, err := client.NewSource[model.Record](s.api, scr.Endpoint)
	if err != nil {
		return err
	}
	dests, cleanup, err := destinations(ctx, s.cfg.Export, out)
	if err != nil {
		return err
	}
	defer cleanup()

	exporter := &export.Exporter{
		Screen:      scr.Name,
		Source:      src,
		Spec:        exportSpec(scr, filters),
		Concurrency: s.cfg.Export.Concurrency,
	}
	sched := export.NewScheduler(exporter, dests, s.cfg.Export.Interval, s.log)

	if s.cfg.Export.Interval <= 0 {
		snap, err := sched.RunOnce(ctx)
		if snap != nil {
			fmt.Fprintf(log, "exported %d rows of %s (%s)\n", len(snap.Items), snap.Screen, snap.ID)
			for _, d := range dests {
				if fd, ok := d.(*export.FileDestination); ok {
					fmt.Fprintf(log, "  %s\n", fd.Path(snap))
				}
			}
		}
		return err
	}

	fmt.Fprintf(log, "exporting %s every %s (Ctrl-C to stop)\n", scr.Name, s.cfg.Export.Interval)
	sched.Start()
	<-ctx.Done()
	sched.Stop()
	return nil
}

func printExportHistory(ctx context.Context, w io.Writer, ec config.ExportConfig, screen string) error {
	if ec.DatabaseURL == "" {
		return fmt.Errorf("--history needs %sEXPORT_DATABASE_URL", config.EnvPrefix)
	}
	pd, err := export.NewPostgresDestination(ec.DatabaseURL)
	if err != nil {
		return err
	}
	defer pd.Close()

	snaps, err := pd.List(ctx, screen, 20)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(w, snaps)
	}
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no exports recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAKEN\tCOUNT\tPAGES\tFILTERS")
	for _, snap := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			snap.ID, snap.TakenAt.Local().Format(time.DateTime), snap.Count, snap.Pages,
			filterSummaryPlain(snap.Filters))
	}
	return tw.Flush()
}

func filterSummaryPlain(filters []model.Filter) string {
	if len(filters) == 0 {
		return "-"
	}
	out := ""
	for i, f := range filters {
		if i > 0 {
			out += " "
		}
		out += f.Key + "=" + f.Value
	}
	return out
}

func init() {
	exportCmd.Flags().StringArrayP("filter", "f", nil, "filter as key=value (repeatable)")
	exportCmd.Flags().String("dir", ".", "directory for the JSONL file")
	exportCmd.Flags().Bool("stdout", false, "write JSONL to stdout instead of a file")
	exportCmd.Flags().Duration("interval", 0, "repeat the export at this interval")
	exportCmd.Flags().Int("concurrency", 4, "pages fetched in parallel")
	exportCmd.Flags().Bool("history", false, "list exports recorded in Postgres")
}
