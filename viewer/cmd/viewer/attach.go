package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linkscore/linkscore/viewer/internal/stream"
	"github.com/linkscore/linkscore/viewer/internal/view"
)

const clearScreen = "\033[H\033[2J"

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Stream the session and redraw on every change",
	Args:  cobra.NoArgs,
	RunE:  runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	filter, err := parsedFilter()
	if err != nil {
		return err
	}

	renderer := view.NewRenderer(colorEnabled())
	redraw := stdoutIsTerminal()
	out := cmd.OutOrStdout()

	var mu sync.Mutex
	draw := func(v *view.View) {
		mu.Lock()
		defer mu.Unlock()
		var buf bytes.Buffer
		if redraw {
			buf.WriteString(clearScreen)
		}
		if err := renderer.Render(&buf, v, filter); err != nil {
			return
		}
		if !redraw {
			buf.WriteString("\n")
		}
		out.Write(buf.Bytes()) //nolint:errcheck
	}

	client, err := stream.New(stream.Options{
		Hub:      hubURL,
		Session:  sessionID,
		APIKey:   resolvedAPIKey(),
		Header:   apiHeader,
		OnChange: draw,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(os.Stderr, "following session %s on %s (Ctrl-C to stop)\n", sessionID, hubURL)
	return client.Run(ctx)
}
