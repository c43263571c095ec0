package messaging

import (
	"context"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/quantfabric/matchbook/pkg/core"
)

// MessageSender publishes execution outcomes to the downstream feed.
// Implementations live in pkg/messaging/kafka and pkg/db/queue.
type MessageSender interface {
	SendExecutionMessage(ctx context.Context, msg *ExecutionMessage) error
	Close() error
}

// ExecutionMessage is the wire form of one engine operation's outcome.
// Quantities and prices are decimal strings; prices are scaled out of
// ticks by the tick size, quantities are written unscaled.
type ExecutionMessage struct {
	Book         string   `json:"book"`
	OrderID      string   `json:"orderId"`
	ExecutedQty  string   `json:"executedQty"`
	RemainingQty string   `json:"remainingQty"`
	Trades       []Trade  `json:"trades,omitempty"`
	Canceled     []string `json:"canceled,omitempty"`
	Stored       bool     `json:"stored"`
}

// Trade is a single execution inside an ExecutionMessage. Price is the
// resting (maker) side's price.
type Trade struct {
	MakerOrderID string `json:"makerOrderId"`
	TakerOrderID string `json:"takerOrderId"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
}

// PriceScale converts integer tick prices to decimal strings for the
// feed.
type PriceScale struct {
	tick fpdecimal.Decimal
}

// NewPriceScale parses the tick size, e.g. "0.01".
func NewPriceScale(tickSize string) (PriceScale, error) {
	tick, err := fpdecimal.FromString(tickSize)
	if err != nil {
		return PriceScale{}, fmt.Errorf("invalid tick size %q: %w", tickSize, err)
	}
	return PriceScale{tick: tick}, nil
}

// FormatPrice renders a tick price as a decimal string.
func (s PriceScale) FormatPrice(p core.Price) string {
	return fpdecimal.FromInt(int(p)).Mul(s.tick).String()
}

// FormatQuantity renders an integer quantity as a decimal string.
func (s PriceScale) FormatQuantity(q core.Quantity) string {
	return fpdecimal.FromInt(int(q)).String()
}

// NewExecutionMessage builds the feed message for one taker order's
// outcome. The maker side of each trade is the counterparty of the
// taker; the trade is priced at the maker's level.
func NewExecutionMessage(book string, scale PriceScale, order *core.Order, trades []core.Trade, stored bool) *ExecutionMessage {
	msg := &ExecutionMessage{
		Book:         book,
		OrderID:      fmt.Sprintf("%d", order.ID()),
		ExecutedQty:  scale.FormatQuantity(order.FilledQuantity()),
		RemainingQty: scale.FormatQuantity(order.RemainingQuantity()),
		Stored:       stored,
	}
	for _, t := range trades {
		maker, taker := t.Ask, t.Bid
		if order.Side() == core.Sell {
			maker, taker = t.Bid, t.Ask
		}
		msg.Trades = append(msg.Trades, Trade{
			MakerOrderID: fmt.Sprintf("%d", maker.OrderID),
			TakerOrderID: fmt.Sprintf("%d", taker.OrderID),
			Price:        scale.FormatPrice(maker.Price),
			Quantity:     scale.FormatQuantity(taker.Quantity),
		})
	}
	return msg
}

// NewCancelMessage builds the feed message for a cancellation.
func NewCancelMessage(book string, ids []core.OrderID) *ExecutionMessage {
	msg := &ExecutionMessage{Book: book}
	for _, id := range ids {
		msg.Canceled = append(msg.Canceled, fmt.Sprintf("%d", id))
	}
	return msg
}
