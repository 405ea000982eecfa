package availability

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// Guard отвечает на вопрос "можно ли сейчас купить билеты на концерт".
// Флаг available читается из каталога при каждом вызове, кеша нет.
type Guard struct {
	concerts domain.ConcertCatalog
}

// NewGuard создаёт Guard поверх каталога концертов.
func NewGuard(concerts domain.ConcertCatalog) *Guard {
	return &Guard{concerts: concerts}
}

// IsPurchasable возвращает флаг available. Неизвестный концерт — ErrConcertNotFound.
func (g *Guard) IsPurchasable(ctx context.Context, concertID string) (bool, error) {
	concert, err := g.concerts.ConcertByID(ctx, concertID)
	if err != nil {
		return false, err
	}
	return concert.Available, nil
}

// Require возвращает ErrConcertUnavailable, если концерт снят с продажи.
func (g *Guard) Require(ctx context.Context, concertID string) error {
	ok, err := g.IsPurchasable(ctx, concertID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConcertUnavailable, concertID)
	}
	return nil
}
