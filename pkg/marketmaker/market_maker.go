package marketmaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MarketMaker keeps a ladder of resting quotes around an external
// reference price, refreshing it on a fixed interval.
type MarketMaker struct {
	cfg          *Config
	logger       *slog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     Strategy
	activeOrders sync.Map // map[uint64]bool - tracks resting order IDs
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewMarketMaker creates a new market maker service
func NewMarketMaker(cfg *Config, logger *slog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy Strategy) (*MarketMaker, error) {
	return &MarketMaker{
		cfg:          cfg,
		logger:       logger.With("component", "MarketMaker"),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start begins the market making process
func (m *MarketMaker) Start(ctx context.Context) error {
	m.logger.Info("Starting market maker service",
		"book", m.cfg.Book,
		"update_interval", m.cfg.UpdateInterval)

	if err := m.orderPlacer.EnsureBook(ctx); err != nil {
		return fmt.Errorf("failed to ensure book exists: %w", err)
	}

	m.wg.Add(1)
	go m.run(ctx)

	return nil
}

// Stop gracefully shuts down the market maker
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info("Stopping market maker service")

	close(m.stopCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Market maker stopped successfully")
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		m.logger.Error("Failed to cancel all orders during shutdown", "error", err)
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}

	return nil
}

// run is the main quoting loop
func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping market maker loop")
			return
		case <-m.stopCh:
			m.logger.Info("Stop signal received, stopping market maker loop")
			return
		case <-ticker.C:
			if err := m.updateOrders(ctx); err != nil {
				m.logger.Error("Failed to update orders", "error", err)
				// Continue running despite errors
			}
		}
	}
}

// updateOrders performs a single quoting iteration
func (m *MarketMaker) updateOrders(ctx context.Context) error {
	price, err := m.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := m.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	for _, order := range orders {
		resp, err := m.orderPlacer.PlaceOrder(ctx, order)
		if err != nil {
			m.logger.Error("Failed to place order",
				"order_id", order.ID,
				"side", order.Side,
				"price", order.Price,
				"error", err)
			continue
		}

		// Only fully resting or partially filled orders need a cancel
		// next round.
		if resp.Stored {
			m.activeOrders.Store(order.ID, true)
		}

		m.logger.Debug("Successfully placed order",
			"order_id", resp.OrderID,
			"side", order.Side,
			"price", order.Price,
			"stored", resp.Stored)
	}

	return nil
}

// cancelAllOrders cancels all tracked resting orders
func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	m.activeOrders.Range(func(key, _ interface{}) bool {
		orderID := key.(uint64)

		if err := m.orderPlacer.CancelOrder(ctx, orderID); err != nil {
			m.logger.Error("Failed to cancel order",
				"order_id", orderID,
				"error", err)
			lastErr = err
			// Continue canceling other orders even if one fails
			return true
		}

		m.activeOrders.Delete(orderID)
		m.logger.Debug("Successfully cancelled order", "order_id", orderID)
		return true
	})

	return lastErr
}
