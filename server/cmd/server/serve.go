package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/linkscore/linkscore/server/internal/api"
	"github.com/linkscore/linkscore/server/internal/auth"
	"github.com/linkscore/linkscore/server/internal/config"
	"github.com/linkscore/linkscore/server/internal/coordinator"
	"github.com/linkscore/linkscore/server/internal/metrics"
	"github.com/linkscore/linkscore/server/internal/scoring"
	"github.com/linkscore/linkscore/server/internal/session"
	"github.com/linkscore/linkscore/server/internal/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	healthService   = "linkscore.Hub"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel == "" {
		level.Set(cfg.Server.Log.SlogLevel())
	}

	s := cfg.Server
	slog.Info("linkscore hub starting",
		"config", configPath,
		"http_port", s.HTTPPort,
		"grpc_port", s.GRPCPort,
		"auth_mode", s.Auth.Mode,
		"scoring_endpoint", s.Scoring.Endpoint,
		"max_sessions", s.Sessions.MaxSessions,
		"retain_after_close", s.Sessions.RetainAfterClose,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Live log level changes; everything else needs a restart.
	go func() {
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			if logLevel != "" {
				return
			}
			level.Set(c.Server.Log.SlogLevel())
			slog.Info("log level applied", "level", c.Server.Log.SlogLevel().String())
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	st := session.New(session.Options{
		MaxSessions:      s.Sessions.MaxSessions,
		RetainAfterClose: s.Sessions.RetainAfterClose,
	})

	stopSweep, err := startSweep(st, s.Sessions.SweepSchedule)
	if err != nil {
		return err
	}
	defer stopSweep()

	scorer := scoring.New(scoring.Options{
		Endpoint:           s.Scoring.Endpoint,
		Timeout:            s.Scoring.Timeout,
		InsecureSkipVerify: s.Scoring.InsecureSkipVerify,
	})
	coord := coordinator.New(st, scorer, coordinator.Options{
		ForgetOnClose:      s.Sessions.ForgetOnClose,
		SkipKnown:          s.Sessions.SkipKnown,
		SubscriptionBuffer: s.Stream.SendBuffer,
	})

	hub := ws.New(coord, s.Stream.SendBuffer)
	go hub.Run(ctx)

	policy := auth.NewPolicy(s.Auth.Mode, s.Auth.EffectiveHeader(), s.Auth.Key())
	if s.Auth.Mode == "apikey" && !policy.Enabled() {
		slog.Warn("auth mode is apikey but the key env var is empty; access is open", "key_env", s.Auth.KeyEnv)
	}

	// gRPC health service for orchestrators.
	var (
		grpcSrv   *grpc.Server
		healthSrv *health.Server
	)
	if s.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", s.GRPCPort, err)
		}
		grpcSrv = grpc.NewServer(
			grpc.UnaryInterceptor(policy.UnaryInterceptor()),
			grpc.StreamInterceptor(policy.StreamInterceptor()),
		)
		healthSrv = health.NewServer()
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)

		go func() {
			slog.Info("gRPC health listening", "port", s.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
	}

	// Combined HTTP server: REST API, both WebSocket endpoints and /metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, coord))
	httpMux.HandleFunc("/ws/observer", hub.ServeObserver)
	httpMux.HandleFunc("/ws/viewer", hub.ServeViewer)
	httpMux.Handle("/metrics", metrics.Handler(metrics.Sources{
		Coordinator: coord,
		Sessions:    st,
		Connections: hub,
	}))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           policy.Middleware(httpMux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			httpErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-httpErr:
		cancel()
	}
	slog.Info("linkscore hub shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if healthSrv != nil {
		healthSrv.Shutdown()
	}
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if cerr := coord.Shutdown(shutdownCtx); cerr != nil {
		slog.Warn("coordinator shutdown incomplete", "err", cerr)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return err
}

// startSweep schedules the retention sweep for st. The returned func stops
// the scheduler and waits for a running sweep to finish.
func startSweep(st *session.Store, schedule string) (func(), error) {
	sched := cron.New()
	if _, err := sched.AddFunc(schedule, func() { st.Sweep() }); err != nil {
		return nil, fmt.Errorf("sessions.sweep_schedule: %w", err)
	}
	sched.Start()
	return func() { <-sched.Stop().Done() }, nil
}
