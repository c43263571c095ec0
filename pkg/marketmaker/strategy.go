package marketmaker

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/server"
)

// LayeredSymmetricQuoting quotes both sides of the book at several
// price levels spaced symmetrically around the reference price.
type LayeredSymmetricQuoting struct {
	cfg    *Config
	logger *slog.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger *slog.Logger) Strategy {
	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		logger: logger.With("component", "LayeredSymmetricQuoting"),
	}
}

// CalculateOrders implements Strategy
func (s *LayeredSymmetricQuoting) CalculateOrders(ctx context.Context, currentPrice float64) ([]server.CreateOrderRequest, error) {
	baseHalfSpread := currentPrice * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := currentPrice * (s.cfg.PriceStepPercent / 100)

	orders := make([]server.CreateOrderRequest, 0, s.cfg.NumLevels*2)

	// Nanosecond base keeps ids unique across quoting rounds.
	base := uint64(time.Now().UnixNano())

	for i := 1; i <= s.cfg.NumLevels; i++ {
		bidPrice := currentPrice - baseHalfSpread - float64(i-1)*priceStep
		askPrice := currentPrice + baseHalfSpread + float64(i-1)*priceStep

		bidTicks := s.toTicks(bidPrice)
		askTicks := s.toTicks(askPrice)
		if bidTicks <= 0 {
			continue
		}

		orders = append(orders, server.CreateOrderRequest{
			ID:       base + uint64(i*2),
			Side:     core.Buy.String(),
			Type:     core.GoodTillCancel.String(),
			Price:    bidTicks,
			Quantity: s.cfg.OrderSize,
		})
		orders = append(orders, server.CreateOrderRequest{
			ID:       base + uint64(i*2) + 1,
			Side:     core.Sell.String(),
			Type:     core.GoodTillCancel.String(),
			Price:    askTicks,
			Quantity: s.cfg.OrderSize,
		})

		s.logger.Debug("Calculated order pair",
			"level", i,
			"bid_ticks", bidTicks,
			"ask_ticks", askTicks,
			"quantity", s.cfg.OrderSize)
	}

	return orders, nil
}

func (s *LayeredSymmetricQuoting) toTicks(price float64) int64 {
	return int64(math.Round(price / s.cfg.TickSize))
}
