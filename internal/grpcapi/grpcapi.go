// Package grpcapi serves the standard gRPC health protocol, reporting the
// ledger's health status for load balancers and orchestrators.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/types"
)

// LedgerService is the health-checked service name.
const LedgerService = "ledgerwatch.Ledger"

// HealthReporter maps ledger health onto the gRPC health service. The ledger
// service is SERVING while healthy or warning and NOT_SERVING while critical
// or unknown.
type HealthReporter struct {
	srv    *health.Server
	logger *slog.Logger
}

// NewServer creates a gRPC server with logging and recovery interceptors and
// registers the health service and reflection.
func NewServer(logger *slog.Logger) (*grpc.Server, *HealthReporter) {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus(LedgerService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, &HealthReporter{srv: hs, logger: logger}
}

// ServingStatus returns the gRPC status for a ledger health status.
func ServingStatus(st types.Status) healthpb.HealthCheckResponse_ServingStatus {
	switch st {
	case types.StatusHealthy, types.StatusWarning:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

func (h *HealthReporter) ObserveHealth(_ context.Context, snap types.HealthSnapshot) {
	h.srv.SetServingStatus(LedgerService, ServingStatus(snap.Status))
}

// Shutdown marks every service NOT_SERVING ahead of a graceful stop.
func (h *HealthReporter) Shutdown() {
	h.srv.Shutdown()
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Error("rpc completed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			logger.Debug("rpc completed", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}

func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
