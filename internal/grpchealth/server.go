// Package grpchealth serves the standard gRPC health protocol for the token
// relay so orchestrators can probe it without calling /token.
package grpchealth

import (
	"context"
	"net"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// Service is the health entry for the relay itself.
const Service = "modelviewer.TokenRelay"

const requestIDMetadataKey = "x-request-id"

// Server wraps a grpc.Server exposing only grpc.health.v1.Health.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    logging.Logger
}

// New returns a server already reporting SERVING for Service and the
// overall ("") status.
func New(log logging.Logger) *Server {
	log = logging.OrNoop(log)
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(RequestIDUnaryServerInterceptor(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	return &Server{grpc: gs, health: hs, log: log}
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING to watchers, then stops gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// RequestIDUnaryServerInterceptor puts a request id on the context, taking it
// from inbound x-request-id metadata when present, and logs each call at
// debug level.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, vals[0])
			}
		}
		ctx, id := logging.EnsureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, id))

		resp, err := handler(ctx, req)
		fields := []logging.Field{logging.String("method", info.FullMethod), logging.String("request_id", id)}
		if err != nil {
			fields = append(fields, logging.Err(err))
		}
		base.Debug(ctx, "grpc call", fields...)
		return resp, err
	}
}
