package cart

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/metrics"
	"github.com/vladislavdragonenkov/tickets/internal/service/availability"
	"github.com/vladislavdragonenkov/tickets/internal/service/events"
)

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.TicketMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithRecorder подключает запись событий в outbox.
func WithRecorder(recorder *events.Recorder) Option {
	return func(s *Store) {
		s.events = recorder
	}
}

// WithMaxQuantity меняет потолок количества билетов в одной позиции.
func WithMaxQuantity(max int) Option {
	return func(s *Store) {
		s.maxQuantity = max
	}
}

// Store управляет корзиной: одна позиция на пару (пользователь, концерт).
type Store struct {
	users       domain.UserDirectory
	concerts    domain.ConcertCatalog
	guard       *availability.Guard
	repo        domain.CartRepository
	events      *events.Recorder
	metrics     *metrics.TicketMetrics
	logger      *log.Entry
	maxQuantity int
}

// NewStore собирает корзину поверх справочников и репозитория.
func NewStore(users domain.UserDirectory, concerts domain.ConcertCatalog, repo domain.CartRepository, opts ...Option) *Store {
	s := &Store{
		users:       users,
		concerts:    concerts,
		guard:       availability.NewGuard(concerts),
		repo:        repo,
		maxQuantity: domain.DefaultMaxCartQuantity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "cart-store")
	}
	if s.maxQuantity <= 0 {
		s.maxQuantity = domain.DefaultMaxCartQuantity
	}
	return s
}

// MaxQuantity возвращает действующий потолок количества; HTTP API отдаёт его в каталоге концертов.
func (s *Store) MaxQuantity() int {
	return s.maxQuantity
}

// Add кладёт концерт в корзину. Повторное добавление той же пары отклоняется с ErrDuplicate.
func (s *Store) Add(ctx context.Context, username, concertName string, quantity int) (entry domain.CartEntry, err error) {
	started := time.Now()
	defer func() {
		s.metrics.RecordCartOperation("add", err)
		s.metrics.ObserveDuration("cart_add", started)
	}()

	if err := domain.ValidateQuantity(quantity, s.maxQuantity); err != nil {
		return domain.CartEntry{}, err
	}

	user, err := s.users.UserByName(ctx, username)
	if err != nil {
		return domain.CartEntry{}, err
	}
	concert, err := s.concerts.ConcertByName(ctx, concertName)
	if err != nil {
		return domain.CartEntry{}, err
	}
	if err := s.guard.Require(ctx, concert.ID); err != nil {
		return domain.CartEntry{}, err
	}

	entry, err = s.repo.Add(ctx, domain.CartEntry{
		UserID:    user.ID,
		ConcertID: concert.ID,
		Quantity:  quantity,
	})
	if err != nil {
		if !domain.IsDuplicate(err) {
			s.logger.WithError(err).WithFields(log.Fields{
				"username": username,
				"concert":  concertName,
			}).Error("failed to add cart entry")
		}
		return domain.CartEntry{}, err
	}

	s.logger.WithFields(log.Fields{
		"username": username,
		"concert":  concertName,
		"quantity": quantity,
	}).Debug("cart entry added")
	s.events.Record(ctx, domain.AggregateCart, user.ID, domain.EventCartItemAdded, events.CartEvent{
		Username:    username,
		UserID:      user.ID,
		ConcertID:   concert.ID,
		ConcertName: concert.Name,
		Quantity:    quantity,
	})
	return entry, nil
}

// Remove удаляет позицию и возвращает её. Повторное удаление — ErrCartEntryNotFound.
func (s *Store) Remove(ctx context.Context, username, concertName string) (entry domain.CartEntry, err error) {
	defer func() { s.metrics.RecordCartOperation("remove", err) }()

	user, err := s.users.UserByName(ctx, username)
	if err != nil {
		return domain.CartEntry{}, err
	}
	concert, err := s.concerts.ConcertByName(ctx, concertName)
	if err != nil {
		return domain.CartEntry{}, err
	}

	entry, err = s.repo.Remove(ctx, user.ID, concert.ID)
	if err != nil {
		return domain.CartEntry{}, err
	}

	s.events.Record(ctx, domain.AggregateCart, user.ID, domain.EventCartItemRemoved, events.CartEvent{
		Username:    username,
		UserID:      user.ID,
		ConcertID:   concert.ID,
		ConcertName: concert.Name,
		Quantity:    entry.Quantity,
	})
	return entry, nil
}

// List возвращает позиции корзины по времени добавления. Пустая корзина — пустой срез.
func (s *Store) List(ctx context.Context, username string) ([]domain.CartItem, error) {
	user, err := s.users.UserByName(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, user.ID)
}
