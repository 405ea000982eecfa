package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/tickets/internal/health"
	"github.com/vladislavdragonenkov/tickets/internal/metrics"
	"github.com/vladislavdragonenkov/tickets/internal/service/availability"
	"github.com/vladislavdragonenkov/tickets/internal/service/cart"
	"github.com/vladislavdragonenkov/tickets/internal/service/checkout"
	"github.com/vladislavdragonenkov/tickets/internal/service/events"
	"github.com/vladislavdragonenkov/tickets/internal/service/ledger"
	"github.com/vladislavdragonenkov/tickets/internal/service/outbox"
	"github.com/vladislavdragonenkov/tickets/internal/service/payment"
	"github.com/vladislavdragonenkov/tickets/internal/service/retention"
	"github.com/vladislavdragonenkov/tickets/internal/transport/grpcapi"
	"github.com/vladislavdragonenkov/tickets/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/tickets/internal/version"
)

const shutdownTimeout = 5 * time.Second

// services: прикладной слой, собранный поверх выбранного хранилища.
type services struct {
	cart     *cart.Store
	ledger   *ledger.Ledger
	checkout *checkout.Coordinator
	payments *payment.Processor
}

func buildServices(deps *runtimeDependencies, cfg Config, recorder *events.Recorder, ticketMetrics *metrics.TicketMetrics, logger *log.Entry) services {
	orderLedger := ledger.New(deps.users, deps.orders,
		ledger.WithLogger(logger.WithField("component", "order-ledger")),
		ledger.WithMetrics(ticketMetrics),
		ledger.WithRecorder(recorder),
	)
	return services{
		cart: cart.NewStore(deps.users, deps.concerts, deps.cart,
			cart.WithLogger(logger.WithField("component", "cart")),
			cart.WithMetrics(ticketMetrics),
			cart.WithRecorder(recorder),
			cart.WithMaxQuantity(cfg.CartMaxQuantity),
		),
		ledger: orderLedger,
		checkout: checkout.NewCoordinator(deps.users, deps.cart, deps.orders,
			availability.NewGuard(deps.concerts), orderLedger,
			checkout.WithLogger(logger.WithField("component", "checkout")),
			checkout.WithMetrics(ticketMetrics),
			checkout.WithRecorder(recorder),
		),
		payments: payment.NewProcessor(deps.users, deps.concerts, deps.orders, deps.payments,
			payment.WithLogger(logger.WithField("component", "payment-processor")),
			payment.WithMetrics(ticketMetrics),
			payment.WithRecorder(recorder),
		),
	}
}

// Run поднимает HTTP API, gRPC, метрики и outbox worker и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDependencies(deps, logger)

	msgBroker, err := initBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBroker(msgBroker, logger)

	var recorder *events.Recorder
	if msgBroker != nil {
		recorder = events.NewRecorder(deps.outbox, logger.WithField("component", "event-recorder"))
	}

	ticketMetrics := metrics.NewTicketMetrics()
	svc := buildServices(deps, cfg, recorder, ticketMetrics, logger)

	redisClient := initRedis(ctx, cfg.RedisAddr, logger)
	defer closeRedis(redisClient, logger)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if verifier == nil {
		logger.Warn("jwt secret is empty, authentication is disabled")
	}

	httpOpts := []httpapi.Option{
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithVerifier(verifier),
	}
	if redisClient != nil {
		httpOpts = append(httpOpts, httpapi.WithRateLimiter(httpapi.NewRateLimiter(redisClient, httpapi.RateLimitConfig{
			Capacity:       cfg.RateLimitCapacity,
			RefillInterval: cfg.RateLimitRefillInterval,
		}, logger.WithField("component", "rate-limiter"))))
	}
	api := httpapi.New(httpapi.Services{
		Concerts: deps.concerts,
		Cart:     svc.cart,
		Checkout: svc.checkout,
		Ledger:   svc.ledger,
		Payments: svc.payments,
	}, httpOpts...)

	grpcLogger := logger.WithField("layer", "grpc")
	grpcService := grpcapi.NewServer(grpcapi.Services{
		Cart:     svc.cart,
		Checkout: svc.checkout,
		Ledger:   svc.ledger,
		Payments: svc.payments,
	}, verifier != nil, grpcLogger)
	grpcServer, grpcHealth := grpcapi.NewGRPCServer(grpcService, verifier,
		grpcapi.ServerMetrics(prometheus.DefaultRegisterer, grpcLogger), grpcLogger)

	healthHandler := newHealthHandler(deps, msgBroker, redisClient)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps, msgBroker, logger)
	cleanupCancel, cleanupDone := startOutboxCleanup(ctx, cfg, deps, msgBroker, logger)

	httpSrv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := func() {
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(httpSrv, logger)
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
		shutdownOutboxWorker(cleanupCancel, cleanupDone, logger.WithField("worker", "cleanup"))
		shutdownHTTP(metricsSrv, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newHealthHandler(deps *runtimeDependencies, msgBroker *broker, redisClient *redis.Client) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		handler.RegisterChecker("storage", deps.storageChecker)
	}
	if msgBroker != nil && msgBroker.checker != nil {
		handler.RegisterChecker(msgBroker.kind, msgBroker.checker)
	}
	if redisClient != nil {
		handler.RegisterChecker("redis", healthcheck.NewOptionalChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	return handler
}

// startOutboxWorker запускает публикацию outbox, если настроен брокер.
func startOutboxWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, msgBroker *broker, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	if msgBroker == nil {
		return nil, nil
	}

	opts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if msgBroker.dlq != nil {
		opts = append(opts, outbox.WithDLQPublisher(msgBroker.dlq))
	}
	worker := outbox.NewWorker(deps.outbox, msgBroker.publisher, opts...)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	logger.WithField("broker", msgBroker.kind).Info("outbox worker started")
	return cancel, done
}

// startOutboxCleanup запускает удаление обработанных событий outbox.
// Нулевой retention отключает очистку.
func startOutboxCleanup(ctx context.Context, cfg Config, deps *runtimeDependencies, msgBroker *broker, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	if msgBroker == nil || deps.purger == nil || cfg.OutboxRetention <= 0 {
		return nil, nil
	}

	worker := retention.NewCleanupWorker(deps.purger,
		retention.WithLogger(logger.WithField("component", "outbox-cleanup")),
		retention.WithInterval(cfg.OutboxCleanupInterval),
		retention.WithBatchSize(cfg.OutboxBatchSize),
		retention.WithRetention(cfg.OutboxRetention),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("outbox worker stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

func closeDependencies(deps *runtimeDependencies, logger *log.Entry) {
	if deps == nil || deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
