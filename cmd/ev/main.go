package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/config"
	"github.com/alfredjeanlab/eventify/internal/ui"
)

var (
	apiURL      string
	token       string
	profileName string
	jsonOutput  bool
	verbose     bool
	noColor     bool

	cfg    *config.Config
	prof   config.Profile
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "ev <command>",
	Short:         "Terminal client for the Eventify booking API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

// setup loads configuration in order of precedence: flags, environment
// (and .env), then the selected profile.
func setup() error {
	if noColor || !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	logger = newLogger(verbose)
	slog.SetDefault(logger)

	c, err := config.Load()
	if err != nil {
		return err
	}
	name := profileName
	if name == "" {
		name = c.Profile
	}
	path, err := config.ProfilesPath()
	if err != nil {
		return err
	}
	profiles, err := config.LoadProfiles(path)
	if err != nil {
		return err
	}
	p, err := profiles.Get(name)
	if err != nil {
		return err
	}
	if apiURL != "" {
		c.APIURL = apiURL
	}
	if token != "" {
		c.Token = token
	}
	c.ApplyProfile(p)

	cfg, prof = c, p
	return nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (default: $EVENTIFY_API_URL or the active profile)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token for the API")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "profile to use instead of the active one")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")

	rootCmd.AddGroup(
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Views
	rootCmd.AddCommand(screensCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(watchCmd)

	// Data
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(cacheCmd)

	// System
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(busCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error:"), err)
		os.Exit(1)
	}
}
