package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/client"
	"github.com/alfredjeanlab/eventify/internal/config"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Short:   "Manage named API profiles",
	GroupID: "system",
	// Profiles are a local file; nothing needs an API connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

// editProfiles loads the profiles file, applies fn and saves the result.
func editProfiles(fn func(p *config.Profiles) error) error {
	path, err := config.ProfilesPath()
	if err != nil {
		return err
	}
	p, err := config.LoadProfiles(path)
	if err != nil {
		return err
	}
	if err := fn(&p); err != nil {
		return err
	}
	return config.SaveProfiles(path, p)
}

func loadProfiles() (config.Profiles, error) {
	path, err := config.ProfilesPath()
	if err != nil {
		return config.Profiles{}, err
	}
	return config.LoadProfiles(path)
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <api-url>",
	Short: "Add or update a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, url := args[0], args[1]
		tok, _ := cmd.Flags().GetString("token")
		natsURL, _ := cmd.Flags().GetString("nats")
		err := editProfiles(func(p *config.Profiles) error {
			prof := p.Profiles[name]
			prof.URL, prof.Token, prof.NATSURL = url, tok, natsURL
			p.Profiles[name] = prof
			if p.Active == "" {
				p.Active = name
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q saved (%s)\n", name, url)
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := editProfiles(func(p *config.Profiles) error { return p.Remove(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q removed\n", args[0])
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := editProfiles(func(p *config.Profiles) error { return p.Use(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active profile set to %q\n", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfiles()
		if err != nil {
			return err
		}
		return printProfiles(cmd.OutOrStdout(), p)
	},
}

func printProfiles(w io.Writer, p config.Profiles) error {
	if len(p.Profiles) == 0 {
		fmt.Fprintln(w, "no profiles configured (add one with 'ev profile add <name> <api-url>')")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tURL\tTOKEN\tNATS")
	for _, name := range p.Names() {
		prof := p.Profiles[name]
		marker := "  "
		if name == p.Active {
			marker = "* "
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", marker, name, prof.URL, shortToken(prof.Token), prof.NATSURL)
	}
	return tw.Flush()
}

func shortToken(tok string) string {
	if len(tok) > 8 {
		return tok[:8] + "..."
	}
	return tok
}

func maskToken(tok string) string {
	if len(tok) > 8 {
		return tok[:8] + strings.Repeat("*", len(tok)-8)
	}
	return tok
}

var profileShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a profile (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfiles()
		if err != nil {
			return err
		}
		name := p.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active profile; specify a name or run 'ev profile use <name>'")
		}
		prof, err := p.Get(name)
		if err != nil {
			return err
		}
		return printProfile(cmd.OutOrStdout(), name, name == p.Active, prof)
	},
}

func printProfile(w io.Writer, name string, active bool, prof config.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	suffix := ""
	if active {
		suffix = " (active)"
	}
	fmt.Fprintf(tw, "name:\t%s%s\n", name, suffix)
	fmt.Fprintf(tw, "url:\t%s\n", prof.URL)
	if prof.Token != "" {
		fmt.Fprintf(tw, "token:\t%s\n", maskToken(prof.Token))
	}
	if prof.NATSURL != "" {
		fmt.Fprintf(tw, "nats_url:\t%s\n", prof.NATSURL)
	}
	screens := make([]string, 0, len(prof.Screens))
	for s := range prof.Screens {
		screens = append(screens, s)
	}
	sort.Strings(screens)
	for _, s := range screens {
		o, _ := prof.Override(s)
		var parts []string
		if o.Debounce.Duration > 0 {
			parts = append(parts, "debounce="+o.Debounce.String())
		}
		if o.PageSize > 0 {
			parts = append(parts, fmt.Sprintf("page_size=%d", o.PageSize))
		}
		if len(o.Immediate) > 0 {
			parts = append(parts, "immediate="+strings.Join(o.Immediate, ","))
		}
		fmt.Fprintf(tw, "screen %s:\t%s\n", s, strings.Join(parts, " "))
	}
	return tw.Flush()
}

var profileTuneCmd = &cobra.Command{
	Use:   "tune <name> <screen>",
	Short: "Set the debounce, page size or immediate filters of a screen",
	Example: `  ev profile tune prod events --debounce 600ms
  ev profile tune prod coupons --page-size 25 --immediate search`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, screen := args[0], args[1]
		if _, err := client.DefaultCatalog().Lookup(screen); err != nil {
			return err
		}
		err := editProfiles(func(p *config.Profiles) error {
			prof, err := p.Get(name)
			if err != nil {
				return err
			}
			if prof.Screens == nil {
				prof.Screens = make(map[string]config.ScreenOverride)
			}
			o := prof.Screens[screen]
			if cmd.Flags().Changed("debounce") {
				d, _ := cmd.Flags().GetDuration("debounce")
				o.Debounce = config.Duration{Duration: config.ClampDebounce(d)}
			}
			if cmd.Flags().Changed("page-size") {
				n, _ := cmd.Flags().GetInt("page-size")
				o.PageSize = config.ClampPageSize(n)
			}
			if cmd.Flags().Changed("immediate") {
				o.Immediate, _ = cmd.Flags().GetStringSlice("immediate")
			}
			prof.Screens[screen] = o
			p.Profiles[name] = prof
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile %q: %s tuned\n", name, screen)
		return nil
	},
}

func init() {
	profileAddCmd.Flags().String("token", "", "bearer token for the API")
	profileAddCmd.Flags().String("nats", "", "NATS URL for live updates")

	profileTuneCmd.Flags().Duration("debounce", 400*time.Millisecond, "input debounce for the screen")
	profileTuneCmd.Flags().Int("page-size", 0, "page size, for screens whose API accepts one")
	profileTuneCmd.Flags().StringSlice("immediate", nil, "filter keys that apply without debounce")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileRemoveCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileTuneCmd)
}
