// Package grpcserver runs the gRPC side listener that reports control-plane
// health through the standard grpc.health.v1 service.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service name reported alongside the overall ("") status.
const ServiceName = "zerobase.ControlPlane"

// Pinger reports control-plane database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health mirrors /api/health: SERVING while the control-plane database
// answers pings, NOT_SERVING otherwise.
type Health struct {
	srv      *health.Server
	pinger   Pinger
	interval time.Duration
	log      *zap.Logger
}

// NewHealth constructs a Health probing every interval (default 10s).
func NewHealth(pinger Pinger, interval time.Duration, log *zap.Logger) *Health {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Health{srv: health.NewServer(), pinger: pinger, interval: interval, log: log}
}

// Check probes once and publishes the result.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Ping(ctx); err != nil {
		h.log.Warn("grpc health: database ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
	return st
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (h *Health) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// New builds a gRPC server exposing h with panic recovery and access logging.
func New(h *Health, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	healthpb.RegisterHealthServer(s, h.srv)
	return s
}
