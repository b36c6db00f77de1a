// Command viewer follows a linkscore hub session from a terminal.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/linkscore/linkscore/pkg/types"
)

var (
	hubURL    string
	sessionID string
	filterArg string
	apiKey    string
	apiHeader string
	noColor   bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "viewer",
	Short: "Follow scored links for a hub session",
	Long: `viewer shows the links a page observer reported to the hub and
their scores.

Commands:
  viewer attach     Stream the session and redraw on every change
  viewer snapshot   Print the session once and exit`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl := slog.LevelWarn
		if verbose {
			lvl = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&hubURL, "hub", "ws://127.0.0.1:8080", "hub base URL")
	pf.StringVar(&sessionID, "session", "", "session key to follow (required)")
	pf.StringVar(&filterArg, "filter", "all", "score filter: all, low, mid, high")
	pf.StringVar(&apiKey, "api-key", "", "hub API key (default $LINKSCORE_API_KEY)")
	pf.StringVar(&apiHeader, "api-header", "x-api-key", "header carrying the API key")
	pf.BoolVar(&noColor, "no-color", false, "disable colored scores")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log connection activity to stderr")
	_ = rootCmd.MarkPersistentFlagRequired("session")
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolvedAPIKey returns --api-key or $LINKSCORE_API_KEY.
func resolvedAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return os.Getenv("LINKSCORE_API_KEY")
}

func parsedFilter() (types.Filter, error) {
	return types.ParseFilter(filterArg)
}

// colorEnabled reports whether stdout is a terminal and color is not disabled.
func colorEnabled() bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return stdoutIsTerminal()
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
