package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mindcare-go/internal/app"
	"mindcare-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var (
	flagOffline bool
	flagVerbose bool
	flagJSON    bool
)

// newApp reads the config and creates an App for cmd. The caller must defer closeApp.
func newApp(cmd *cobra.Command) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg, cmd.CommandPath(), app.Options{
		Offline: flagOffline,
		Verbose: flagVerbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// closeApp records the command outcome and closes the app. Use it as
//
//	defer closeApp(a, &err)
//
// in a RunE with a named error result.
func closeApp(a *app.App, errp *error) {
	a.Session().Fail(*errp)
	if cerr := a.Close(); cerr != nil && *errp == nil {
		*errp = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:          "mindcare",
	Short:        "Offline-first screening, resources and helplines",
	SilenceUsage: true,
	Version:      app.Version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Do not contact the backend")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Copy log output to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Write JSON even when stdout is a terminal")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(screeningCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(helplinesCmd)
}
