package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/ledgerwatch/internal/app"
	"github.com/BrandonDHaskell/ledgerwatch/internal/events"
	"github.com/BrandonDHaskell/ledgerwatch/internal/grpcapi"
	"github.com/BrandonDHaskell/ledgerwatch/internal/httpapi"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/health"
	"github.com/BrandonDHaskell/ledgerwatch/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC health service and the hourly recorder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := app.OpenBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		cs, closeCache, err := app.OpenCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeCache()

		pub, err := app.OpenPublisher(cfg)
		if err != nil {
			return err
		}
		defer pub.Close()

		observers := []health.Observer{
			metrics.HealthObserver{},
			events.NewTransitionNotifier(pub, logger),
		}

		// gRPC health
		var grpcLis net.Listener
		grpcSrv, reporter := grpcapi.NewServer(logger)
		if cfg.GRPCAddr != "" {
			grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			observers = append(observers, reporter)
		}

		svc, err := app.NewServices(backend, cs, cfg, logger, observers...)
		if err != nil {
			return err
		}

		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger:     logger,
			Addr:       cfg.HTTPAddr,
			Health:     svc.Health,
			Query:      svc.Query,
			Devices:    svc.Devices,
			Badges:     svc.Badges,
			Heartbeats: svc.Heartbeats,
			Scans:      svc.Scans,
			APITokens:  cfg.APITokens,
			Ready:      backend.Ping,
		})

		svc.Recorder.Start(ctx)
		defer svc.Recorder.Stop()

		if grpcLis != nil {
			go func() {
				logger.Info("grpc listening", "addr", cfg.GRPCAddr)
				if err := grpcSrv.Serve(grpcLis); err != nil {
					logger.Error("grpc server error", "error", err)
					stop()
				}
			}()
		}

		go func() {
			logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.Env, "auth", len(cfg.APITokens) > 0)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
				stop()
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reporter.Shutdown()
		if grpcLis != nil {
			grpcSrv.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	},
}
