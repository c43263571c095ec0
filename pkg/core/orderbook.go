package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// levelData aggregates resting quantity and order count at one price
// across the book, maintained incrementally as orders are added,
// matched and removed.
type levelData struct {
	quantity Quantity
	count    int
}

type levelAction int

const (
	levelAdd levelAction = iota
	levelRemove
	levelMatch
)

// bookEntry ties a resting order to its queue node and level so cancel
// and modify run in O(1).
type bookEntry struct {
	order *Order
	node  *orderNode
	level *priceLevel
}

// OrderBook is a price-time priority matching engine for a single
// instrument. All public methods are safe for concurrent use; a single
// mutex covers the book state end to end.
type OrderBook struct {
	mu     sync.Mutex
	bids   *bookSide
	asks   *bookSide
	orders map[OrderID]*bookEntry
	levels map[Price]*levelData

	logger zerolog.Logger
	clock  Clock

	sessionCloseHour   int
	sessionCloseMinute int
	sweepSlack         time.Duration
	cancelHook         func([]OrderID)

	closed atomic.Bool
	quit   chan struct{}
	done   chan struct{}
}

// Option configures an OrderBook.
type Option func(*OrderBook)

// WithClock injects the clock used by the session-close sweeper.
func WithClock(c Clock) Option {
	return func(b *OrderBook) { b.clock = c }
}

// WithLogger attaches a logger to the book.
func WithLogger(l zerolog.Logger) Option {
	return func(b *OrderBook) { b.logger = l }
}

// WithSessionClose sets the local time of day at which GoodForDay
// orders are swept.
func WithSessionClose(hour, minute int) Option {
	return func(b *OrderBook) {
		b.sessionCloseHour = hour
		b.sessionCloseMinute = minute
	}
}

// WithSweepSlack sets the delay added past the session close before
// the sweep fires.
func WithSweepSlack(d time.Duration) Option {
	return func(b *OrderBook) { b.sweepSlack = d }
}

// WithCancelHook registers a callback invoked with the ids each bulk
// cancel actually removed, session-close sweeps included. The hook runs
// outside the book lock and may call back into the book.
func WithCancelHook(fn func([]OrderID)) Option {
	return func(b *OrderBook) { b.cancelHook = fn }
}

// NewOrderBook creates an empty book and starts the GoodForDay
// sweeper. Callers must Shutdown the book when done with it.
func NewOrderBook(opts ...Option) *OrderBook {
	b := &OrderBook{
		bids:               newBookSide(Buy),
		asks:               newBookSide(Sell),
		orders:             make(map[OrderID]*bookEntry),
		levels:             make(map[Price]*levelData),
		logger:             zerolog.Nop(),
		clock:              SystemClock(),
		sessionCloseHour:   16,
		sessionCloseMinute: 0,
		sweepSlack:         100 * time.Millisecond,
		quit:               make(chan struct{}),
		done:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.sweepGoodForDay()
	return b
}

// Shutdown stops the sweeper and waits for it to exit. It is
// idempotent and safe to call concurrently.
func (b *OrderBook) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.quit)
	<-b.done
}

// Contains reports whether an order with the given id is resting.
func (b *OrderBook) Contains(id OrderID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.orders[id]
	return ok
}

// Size returns the number of resting orders.
func (b *OrderBook) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// AddOrder admits the order and runs the match loop, returning the
// trades executed. Orders rejected by the admission policy return an
// empty trade list and leave the book unchanged.
func (b *OrderBook) AddOrder(o *Order) []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addOrderLocked(o)
}

func (b *OrderBook) addOrderLocked(o *Order) []Trade {
	if _, exists := b.orders[o.ID()]; exists {
		return nil
	}

	if o.Type() == Market {
		opposite := b.sideFor(o.Side().Opposite())
		worst, ok := opposite.worstPrice()
		if !ok {
			return nil
		}
		o.toGoodTillCancel(worst)
	}

	if o.Type() == FillAndKill && !b.canMatchLocked(o.Side(), o.Price()) {
		return nil
	}
	if o.Type() == FillOrKill && !b.canFullyFillLocked(o.Side(), o.Price(), o.RemainingQuantity()) {
		return nil
	}

	side := b.sideFor(o.Side())
	level := side.getOrCreate(o.Price())
	node := level.enqueue(o)
	b.orders[o.ID()] = &bookEntry{order: o, node: node, level: level}
	b.updateLevelData(o.Price(), o.RemainingQuantity(), levelAdd)

	trades := b.matchLocked()

	b.cancelFrontFillAndKillLocked()

	if len(trades) > 0 {
		b.logger.Debug().
			Uint64("order_id", uint64(o.ID())).
			Int("trades", len(trades)).
			Msg("order matched")
	}
	return trades
}

func (b *OrderBook) sideFor(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// canMatchLocked reports whether an order at price would cross the
// opposite side's best level.
func (b *OrderBook) canMatchLocked(side Side, price Price) bool {
	if side == Buy {
		best := b.asks.bestLevel()
		return best != nil && price >= best.price
	}
	best := b.bids.bestLevel()
	return best != nil && price <= best.price
}

// canFullyFillLocked reports whether the opposite side holds enough
// quantity between its best price and the order's limit to fill the
// order completely.
func (b *OrderBook) canFullyFillLocked(side Side, price Price, quantity Quantity) bool {
	if !b.canMatchLocked(side, price) {
		return false
	}

	var threshold Price
	if side == Buy {
		threshold = b.asks.bestLevel().price
	} else {
		threshold = b.bids.bestLevel().price
	}

	for levelPrice, data := range b.levels {
		if side == Buy && (levelPrice < threshold || levelPrice > price) {
			continue
		}
		if side == Sell && (levelPrice > threshold || levelPrice < price) {
			continue
		}
		if quantity <= data.quantity {
			return true
		}
		quantity -= data.quantity
	}
	return false
}

// matchLocked crosses the book while the best bid meets the best ask,
// filling min(bid, ask) remaining per step, oldest orders first.
func (b *OrderBook) matchLocked() []Trade {
	var trades []Trade

	for {
		bidLevel := b.bids.bestLevel()
		askLevel := b.asks.bestLevel()
		if bidLevel == nil || askLevel == nil {
			break
		}
		if bidLevel.price < askLevel.price {
			break
		}

		for !bidLevel.empty() && !askLevel.empty() {
			bid := bidLevel.front().order
			ask := askLevel.front().order

			qty := bid.RemainingQuantity()
			if ask.RemainingQuantity() < qty {
				qty = ask.RemainingQuantity()
			}

			bid.Fill(qty)
			ask.Fill(qty)
			bidLevel.reduce(qty)
			askLevel.reduce(qty)

			if bid.IsFilled() {
				bidLevel.unlink(b.orders[bid.ID()].node)
				delete(b.orders, bid.ID())
			}
			if ask.IsFilled() {
				askLevel.unlink(b.orders[ask.ID()].node)
				delete(b.orders, ask.ID())
			}

			trades = append(trades, Trade{
				Bid: TradeInfo{OrderID: bid.ID(), Price: bid.Price(), Quantity: qty},
				Ask: TradeInfo{OrderID: ask.ID(), Price: ask.Price(), Quantity: qty},
			})

			b.matchLevelData(bid.Price(), qty, bid.IsFilled())
			b.matchLevelData(ask.Price(), qty, ask.IsFilled())
		}

		if bidLevel.empty() {
			b.bids.remove(bidLevel)
		}
		if askLevel.empty() {
			b.asks.remove(askLevel)
		}
	}

	return trades
}

// cancelFrontFillAndKillLocked cancels the front order of each new
// best level when it is FillAndKill; a FillAndKill remainder never
// rests.
func (b *OrderBook) cancelFrontFillAndKillLocked() {
	if l := b.bids.bestLevel(); l != nil {
		if front := l.front(); front != nil && front.order.Type() == FillAndKill {
			b.cancelOrderLocked(front.order.ID())
		}
	}
	if l := b.asks.bestLevel(); l != nil {
		if front := l.front(); front != nil && front.order.Type() == FillAndKill {
			b.cancelOrderLocked(front.order.ID())
		}
	}
}

// CancelOrder removes the order from the book. Unknown ids are a
// no-op.
func (b *OrderBook) CancelOrder(id OrderID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelOrderLocked(id)
}

// CancelOrders removes every listed order under a single lock
// acquisition and reports the removed ids to the cancel hook.
func (b *OrderBook) CancelOrders(ids []OrderID) {
	b.mu.Lock()
	canceled := make([]OrderID, 0, len(ids))
	for _, id := range ids {
		if b.cancelOrderLocked(id) {
			canceled = append(canceled, id)
		}
	}
	b.mu.Unlock()

	if b.cancelHook != nil && len(canceled) > 0 {
		b.cancelHook(canceled)
	}
}

func (b *OrderBook) cancelOrderLocked(id OrderID) bool {
	entry, ok := b.orders[id]
	if !ok {
		return false
	}
	delete(b.orders, id)

	remaining := entry.order.RemainingQuantity()
	entry.level.unlink(entry.node)
	if entry.level.empty() {
		b.sideFor(entry.order.Side()).remove(entry.level)
	}
	b.updateLevelData(entry.order.Price(), remaining, levelRemove)
	return true
}

// ModifyOrder cancels the existing order and re-admits it under its
// replacement terms, preserving the order's current type. The replaced
// order loses its queue position. Unknown ids are a no-op.
func (b *OrderBook) ModifyOrder(m OrderModify) []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.orders[m.ID()]
	if !ok {
		return nil
	}
	orderType := entry.order.Type()
	b.cancelOrderLocked(m.ID())
	return b.addOrderLocked(m.ToOrder(orderType))
}

// Depth returns an aggregated snapshot of both sides.
func (b *OrderBook) Depth() DepthView {
	b.mu.Lock()
	defer b.mu.Unlock()

	view := DepthView{
		Bids: make([]DepthLevel, 0, b.bids.levels),
		Asks: make([]DepthLevel, 0, b.asks.levels),
	}
	for l := b.bids.bestLevel(); l != nil; l = l.nextLevel {
		view.Bids = append(view.Bids, DepthLevel{Price: l.price, Quantity: l.totalQty})
	}
	for l := b.asks.bestLevel(); l != nil; l = l.nextLevel {
		view.Asks = append(view.Asks, DepthLevel{Price: l.price, Quantity: l.totalQty})
	}
	return view
}

// updateLevelData maintains the per-price aggregates on add and
// remove. The entry disappears when its order count reaches zero.
func (b *OrderBook) updateLevelData(price Price, qty Quantity, action levelAction) {
	data, ok := b.levels[price]
	if !ok {
		data = &levelData{}
		b.levels[price] = data
	}
	switch action {
	case levelAdd:
		data.count++
		data.quantity += qty
	case levelRemove:
		data.count--
		data.quantity -= qty
	case levelMatch:
		data.quantity -= qty
	}
	if data.count == 0 {
		delete(b.levels, price)
	}
}

// matchLevelData records an execution against the aggregates at price.
func (b *OrderBook) matchLevelData(price Price, qty Quantity, fullyFilled bool) {
	if fullyFilled {
		b.updateLevelData(price, qty, levelRemove)
	} else {
		b.updateLevelData(price, qty, levelMatch)
	}
}

// sweepGoodForDay cancels all GoodForDay orders shortly after each
// session close until the book is shut down.
func (b *OrderBook) sweepGoodForDay() {
	defer close(b.done)

	for {
		now := b.clock.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(),
			b.sessionCloseHour, b.sessionCloseMinute, 0, 0, now.Location())
		if !now.Before(next) {
			next = next.AddDate(0, 0, 1)
		}
		wait := next.Sub(now) + b.sweepSlack

		select {
		case <-b.quit:
			return
		case <-b.clock.After(wait):
		}

		b.mu.Lock()
		var ids []OrderID
		for id, entry := range b.orders {
			if entry.order.Type() == GoodForDay {
				ids = append(ids, id)
			}
		}
		b.mu.Unlock()

		if len(ids) > 0 {
			b.CancelOrders(ids)
			b.logger.Info().
				Int("canceled", len(ids)).
				Msg("session close sweep")
		}
	}
}
