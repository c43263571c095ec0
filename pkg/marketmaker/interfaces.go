package marketmaker

import (
	"context"

	"github.com/quantfabric/matchbook/pkg/server"
)

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current market price for the configured symbol
	FetchPrice(ctx context.Context) (float64, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer defines the interface for placing and canceling orders
type OrderPlacer interface {
	EnsureBook(ctx context.Context) error
	PlaceOrder(ctx context.Context, req server.CreateOrderRequest) (*server.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID uint64) error
	Close() error
}

// Strategy defines the interface for quoting strategies
type Strategy interface {
	// CalculateOrders calculates the orders to be placed based on the current price
	CalculateOrders(ctx context.Context, currentPrice float64) ([]server.CreateOrderRequest, error)
}
