package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/tickets/internal/health"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
	"github.com/vladislavdragonenkov/tickets/internal/storage/postgres"
)

// runtimeDependencies: репозитории выбранного хранилища и их жизненный цикл.
type runtimeDependencies struct {
	users    domain.UserDirectory
	concerts domain.ConcertCatalog
	cart     domain.CartRepository
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	outbox   domain.OutboxRepository
	purger   domain.OutboxPurger

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return initMemoryDependencies(logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(logger *log.Entry) *runtimeDependencies {
	store := memory.NewStore()
	catalog := memory.NewCatalog(store)
	seedDemoCatalog(catalog)
	outboxRepo := memory.NewOutboxRepository()
	logger.Info("storage driver: memory (demo catalog seeded)")

	return &runtimeDependencies{
		users:    catalog,
		concerts: catalog,
		cart:     memory.NewCartRepository(store),
		orders:   memory.NewOrderRepository(store),
		payments: memory.NewPaymentRepository(store),
		outbox:   outboxRepo,
		purger:   outboxRepo,
		storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
			return nil
		}),
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := prepareSchema(ctx, store, cfg.PostgresAutoMigrate); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("storage driver: postgres")

	catalog := postgres.NewCatalogRepository(store)
	outboxRepo := postgres.NewOutboxRepository(store)
	return &runtimeDependencies{
		users:          catalog,
		concerts:       catalog,
		cart:           postgres.NewCartRepository(store),
		orders:         postgres.NewOrderRepository(store),
		payments:       postgres.NewPaymentRepository(store),
		outbox:         outboxRepo,
		purger:         outboxRepo,
		storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
		closeFn:        store.Close,
	}, nil
}

// prepareSchema применяет миграции или, при выключенной автомиграции,
// требует, чтобы схема уже была актуальной.
func prepareSchema(ctx context.Context, store *postgres.Store, autoMigrate bool) error {
	if autoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	}

	status, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	if pending := status.Pending(); pending > 0 {
		return fmt.Errorf("database schema is outdated: %d pending migration(s), run cmd/migrate -direction up", pending)
	}
	return nil
}

// seedDemoCatalog наполняет in-memory каталог для локального запуска.
func seedDemoCatalog(catalog *memory.Catalog) {
	catalog.PutUser(domain.User{Username: "alice", Role: domain.RoleUser})
	catalog.PutUser(domain.User{Username: "bob", Role: domain.RoleUser})
	catalog.PutUser(domain.User{Username: "admin", Role: domain.RoleAdmin})

	base := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 1, 0)
	demo := []domain.Concert{
		{Name: "Rock Night", Address: "Main Arena", Price: decimal.NewFromInt(50), Date: base},
		{Name: "Jazz Evening", Address: "Blue Hall", Price: decimal.NewFromInt(30), Date: base.AddDate(0, 0, 7)},
		{Name: "Symphony Gala", Address: "Opera House", Price: decimal.RequireFromString("75.50"), Date: base.AddDate(0, 0, 14)},
	}
	for _, concert := range demo {
		concert.Description = concert.Name + " at " + concert.Address
		concert.Available = true
		catalog.PutConcert(concert)
	}
}
