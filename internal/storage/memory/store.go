package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// cartKey: ключ уникальности позиции корзины.
type cartKey struct {
	userID    string
	concertID string
}

type cartRecord struct {
	entry domain.CartEntry
	seq   uint64
}

type orderRecord struct {
	order domain.Order
	seq   uint64
}

// Store: общее in-memory состояние каталога, корзин, заказов и платежей.
// Один мьютекс на всё состояние даёт те же гарантии атомарности,
// что и транзакции PostgreSQL: оформление позиции и оплата видны целиком или никак.
type Store struct {
	mu sync.RWMutex

	users        map[string]domain.User
	concerts     map[string]domain.Concert
	concertNames map[string]string

	cart     map[cartKey]cartRecord
	orders   map[string]orderRecord
	payments []domain.PaymentAttempt

	seq uint64
}

// NewStore создаёт пустое хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]domain.User),
		concerts:     make(map[string]domain.Concert),
		concertNames: make(map[string]string),
		cart:         make(map[cartKey]cartRecord),
		orders:       make(map[string]orderRecord),
	}
}

// nextSeq вызывается под записывающей блокировкой.
func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}
