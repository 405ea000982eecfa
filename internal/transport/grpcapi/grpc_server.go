package grpcapi

import (
	"errors"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
)

// ServerMetrics регистрирует серверные метрики gRPC в reg, переиспользуя уже зарегистрированные.
func ServerMetrics(reg prometheus.Registerer, logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if reg == nil {
		return grpcMetrics
	}
	if err := reg.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		if logger != nil {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	return grpcMetrics
}

// NewGRPCServer собирает grpc.Server с TicketService, health-сервисом и цепочкой
// интерцепторов: метрики, аутентификация, перевод ошибок.
func NewGRPCServer(srv TicketServiceServer, verifier *auth.Verifier, grpcMetrics *promgrpc.ServerMetrics, logger *log.Entry) (*grpc.Server, *health.Server) {
	interceptors := make([]grpc.UnaryServerInterceptor, 0, 3)
	if grpcMetrics != nil {
		interceptors = append(interceptors, grpcMetrics.UnaryServerInterceptor())
	}
	interceptors = append(interceptors, AuthInterceptor(verifier), ErrorInterceptor(logger))

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterTicketServiceServer(server, srv)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	if grpcMetrics != nil {
		grpcMetrics.InitializeMetrics(server)
	}
	return server, healthServer
}
