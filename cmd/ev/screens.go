package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/client"
)

var screensCmd = &cobra.Command{
	Use:     "screens",
	Short:   "List the screens ev can show",
	GroupID: "views",
	Args:    cobra.NoArgs,
	// The catalog is built in; no API connection is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return printScreens(cmd.OutOrStdout(), client.DefaultCatalog())
	},
}

type screenInfo struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Role     string   `json:"role"`
	Path     string   `json:"path"`
	PageSize int      `json:"page_size"`
	Filters  []string `json:"filters"`
	Topics   []string `json:"topics"`
}

func printScreens(w io.Writer, cat *client.Catalog) error {
	var infos []screenInfo
	for _, s := range cat.Screens() {
		info := screenInfo{
			Name: s.Name, Title: s.Title, Role: s.Role,
			Path: s.Endpoint.Path, PageSize: s.PageSize,
			Filters: []string{}, Topics: append([]string{}, s.Topics...),
		}
		for _, f := range s.Filters {
			name := f.Key
			if f.Immediate {
				name += "*"
			}
			info.Filters = append(info.Filters, name)
		}
		infos = append(infos, info)
	}
	if jsonOutput {
		return printJSON(w, infos)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLE\tTITLE\tPATH\tSIZE\tFILTERS")
	for _, s := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.Name, s.Role, s.Title, s.Path, s.PageSize, strings.Join(s.Filters, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "\n* applies without debounce")
	return nil
}

var cacheCmd = &cobra.Command{
	Use:     "cache",
	Short:   "Manage the shared Redis page cache",
	GroupID: "data",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <screen>...",
	Short: "Drop every cached page of the given screens",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cfg, prof, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		for _, name := range args {
			scr, err := s.catalog.Lookup(name)
			if err != nil {
				return err
			}
			n, err := s.purge(cmd.Context(), scr)
			if err != nil {
				return fmt.Errorf("purging %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d cached pages removed\n", name, n)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
}
