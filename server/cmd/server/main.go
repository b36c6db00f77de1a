// Command server runs the linkscore hub: it accepts page observer channels,
// scores reported links against the backend and streams results to viewers.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// level is shared by the JSON handler and the config watcher.
var level = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "linkscore hub",
	Long: `linkscore hub: scores links reported by page observers and
streams the results to attached viewers.

Commands:
  server serve          Run the hub
  server check-config   Validate a config file and exit`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override server.log.level: debug, info, warn, error")
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
