package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/viewer/internal/view"
)

var snapshotJSON bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the session once and exit",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "print the raw bulk-results JSON")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	filter, err := parsedFilter()
	if err != nil {
		return err
	}
	endpoint, err := sessionURL(hubURL, sessionID, filter)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if key := resolvedAPIKey(); key != "" {
		req.Header.Set(apiHeader, key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out := cmd.OutOrStdout()
	if snapshotJSON {
		_, err := out.Write(body)
		return err
	}

	var bulk types.BulkResults
	if err := json.Unmarshal(body, &bulk); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	v := view.New(sessionID)
	v.Apply(bulk)
	return view.NewRenderer(colorEnabled()).Render(out, v, filter)
}

// sessionURL builds the REST backfill URL for key from a ws:// or http://
// hub base URL.
func sessionURL(hub, key string, filter types.Filter) (string, error) {
	u, err := url.Parse(strings.TrimRight(hub, "/"))
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported hub scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/sessions/" + key
	u.RawQuery = url.Values{"filter": {string(filter)}}.Encode()
	return u.String(), nil
}
