package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linkscore/linkscore/server/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		s := cfg.Server
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %s\n", configPath)
		fmt.Fprintf(out, "  http_port:          %d\n", s.HTTPPort)
		fmt.Fprintf(out, "  grpc_port:          %d\n", s.GRPCPort)
		fmt.Fprintf(out, "  auth.mode:          %s\n", orNone(s.Auth.Mode))
		fmt.Fprintf(out, "  scoring.endpoint:   %s\n", s.Scoring.Endpoint)
		fmt.Fprintf(out, "  scoring.timeout:    %s\n", s.Scoring.Timeout)
		fmt.Fprintf(out, "  sessions.max:       %d\n", s.Sessions.MaxSessions)
		fmt.Fprintf(out, "  sessions.retain:    %s\n", s.Sessions.RetainAfterClose)
		fmt.Fprintf(out, "  sessions.sweep:     %s\n", s.Sessions.SweepSchedule)
		fmt.Fprintf(out, "  stream.send_buffer: %d\n", s.Stream.SendBuffer)
		fmt.Fprintf(out, "  log.level:          %s\n", s.Log.Level)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
