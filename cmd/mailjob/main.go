package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/app"
	"github.com/foxzi/mailjob/internal/config"
	"github.com/foxzi/mailjob/internal/session"
	"github.com/foxzi/mailjob/internal/ui"
)

var (
	cfgFile   string
	verbose   bool
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("Error: "+userMessage(err)))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mailjob",
	Short:         "mailjob - email scheduling client",
	Long:          `mailjob schedules one-off, timed and recurring emails through a remote scheduling service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailjob version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/mailjob/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if cfg.API.UserAgent == "mailjob" {
		cfg.API.UserAgent = "mailjob/" + version
	}
	return cfg, nil
}

// openApp loads the configuration and wires the application. The caller
// must Close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return a, nil
}

// openSession is openApp for commands that need a signed-in user
func openSession(cmd *cobra.Command) (*app.App, error) {
	a, err := openApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.RequireSession(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// userMessage turns an error into the line printed before exiting
func userMessage(err error) string {
	if errors.Is(err, session.ErrNotAuthenticated) || errors.Is(err, api.ErrUnauthorized) {
		return "not logged in, run `mailjob login`"
	}
	return err.Error()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.API.BaseURL)
	fmt.Printf("  Token storage: %s\n", cfg.Session.Backend)
	if cfg.CacheEnabled() {
		fmt.Printf("  Cache: %s\n", cfg.Cache.Path)
	} else {
		fmt.Printf("  Cache: disabled\n")
	}
	fmt.Printf("  Callback: %s\n", cfg.Callback.ListenAddr)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
