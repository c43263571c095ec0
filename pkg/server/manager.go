package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/logging"
)

var (
	// ErrOrderBookExists is returned when trying to create an order book that already exists
	ErrOrderBookExists = errors.New("order book with this name already exists")

	// ErrOrderBookNotFound is returned when trying to access a non-existent order book
	ErrOrderBookNotFound = errors.New("order book not found")
)

// OrderBookInfo contains metadata about an order book
type OrderBookInfo struct {
	Name       string    `json:"name"`
	Instrument string    `json:"instrument"`
	CreatedAt  time.Time `json:"createdAt"`
	OrderCount int       `json:"orderCount"`
}

// OrderBookManager hosts several independent single-instrument books
// behind one server surface.
type OrderBookManager struct {
	mu         sync.RWMutex
	orderBooks map[string]*core.OrderBook
	info       map[string]*OrderBookInfo
}

// NewOrderBookManager creates a new OrderBookManager
func NewOrderBookManager() *OrderBookManager {
	return &OrderBookManager{
		orderBooks: make(map[string]*core.OrderBook),
		info:       make(map[string]*OrderBookInfo),
	}
}

// CreateOrderBook creates a new order book under the given name. Book
// options configure the clock and session close sweep.
func (m *OrderBookManager) CreateOrderBook(ctx context.Context, name, instrument string, opts ...core.Option) (*OrderBookInfo, error) {
	logger := logging.FromContext(ctx).With().Str("order_book", name).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orderBooks[name]; exists {
		logger.Error().Msg("order book already exists")
		return nil, ErrOrderBookExists
	}

	opts = append(opts, core.WithLogger(logger))
	orderBook := core.NewOrderBook(opts...)
	m.orderBooks[name] = orderBook

	info := &OrderBookInfo{
		Name:       name,
		Instrument: instrument,
		CreatedAt:  time.Now(),
	}
	m.info[name] = info

	logger.Info().Str("instrument", instrument).Msg("created order book")
	return info, nil
}

// GetOrderBook retrieves an order book by name
func (m *OrderBookManager) GetOrderBook(ctx context.Context, name string) (*core.OrderBook, *OrderBookInfo, error) {
	logger := logging.FromContext(ctx).With().Str("order_book", name).Logger()

	m.mu.RLock()
	defer m.mu.RUnlock()

	orderBook, exists := m.orderBooks[name]
	if !exists {
		logger.Debug().Msg("order book not found")
		return nil, nil, ErrOrderBookNotFound
	}

	return orderBook, m.info[name], nil
}

// DeleteOrderBook shuts a book down and removes it
func (m *OrderBookManager) DeleteOrderBook(ctx context.Context, name string) error {
	logger := logging.FromContext(ctx).With().Str("order_book", name).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	orderBook, exists := m.orderBooks[name]
	if !exists {
		logger.Debug().Msg("order book not found")
		return ErrOrderBookNotFound
	}

	orderBook.Shutdown()
	delete(m.orderBooks, name)
	delete(m.info, name)

	logger.Info().Msg("deleted order book")
	return nil
}

// ListOrderBooks returns information about all order books
func (m *OrderBookManager) ListOrderBooks(ctx context.Context) []*OrderBookInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*OrderBookInfo, 0, len(m.info))
	for name, info := range m.info {
		copied := *info
		copied.OrderCount = m.orderBooks[name].Size()
		result = append(result, &copied)
	}
	return result
}

// Close shuts down every book managed by this instance
func (m *OrderBookManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, orderBook := range m.orderBooks {
		orderBook.Shutdown()
	}
	m.orderBooks = make(map[string]*core.OrderBook)
	m.info = make(map[string]*OrderBookInfo)
}
