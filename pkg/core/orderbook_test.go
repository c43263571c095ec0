package core

import (
	"sync"
	"testing"
	"time"
)

func newTestBook(t *testing.T, opts ...Option) *OrderBook {
	t.Helper()
	book := NewOrderBook(opts...)
	t.Cleanup(book.Shutdown)
	return book
}

func limit(t *testing.T, orderType OrderType, id OrderID, side Side, price Price, qty Quantity) *Order {
	t.Helper()
	order, err := NewOrder(orderType, id, side, price, qty)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	return order
}

func market(t *testing.T, id OrderID, side Side, qty Quantity) *Order {
	t.Helper()
	order, err := NewMarketOrder(id, side, qty)
	if err != nil {
		t.Fatalf("NewMarketOrder failed: %v", err)
	}
	return order
}

func TestAddOrderRests(t *testing.T) {
	book := newTestBook(t)

	trades := book.AddOrder(limit(t, GoodTillCancel, 1, Buy, 100, 10))
	if len(trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(trades))
	}
	if !book.Contains(1) {
		t.Error("Expected order 1 to rest in the book")
	}
	if book.Size() != 1 {
		t.Errorf("Expected size 1, got %d", book.Size())
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Buy, 100, 10))
	trades := book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 10))
	if trades != nil {
		t.Errorf("Expected nil trades for duplicate id, got %v", trades)
	}
	if book.Size() != 1 {
		t.Errorf("Expected size 1, got %d", book.Size())
	}
}

func TestSimpleMatch(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 10))
	trades := book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 100, 10))

	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	trade := trades[0]
	if trade.Bid.OrderID != 2 || trade.Ask.OrderID != 1 {
		t.Errorf("Unexpected trade parties: bid=%d ask=%d", trade.Bid.OrderID, trade.Ask.OrderID)
	}
	if trade.Bid.Quantity != 10 || trade.Ask.Quantity != 10 {
		t.Errorf("Unexpected trade quantities: bid=%d ask=%d", trade.Bid.Quantity, trade.Ask.Quantity)
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestTradeReportsEachSidesOwnPrice(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	trades := book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 105, 5))

	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if trades[0].Bid.Price != 105 {
		t.Errorf("Expected bid price 105, got %d", trades[0].Bid.Price)
	}
	if trades[0].Ask.Price != 100 {
		t.Errorf("Expected ask price 100, got %d", trades[0].Ask.Price)
	}
}

func TestPartialFill(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 10))
	trades := book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 100, 4))

	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if !book.Contains(1) {
		t.Error("Expected partially filled ask to remain")
	}
	if book.Contains(2) {
		t.Error("Expected fully filled bid to be gone")
	}

	depth := book.Depth()
	if len(depth.Asks) != 1 || depth.Asks[0].Quantity != 6 {
		t.Errorf("Expected ask level with quantity 6, got %+v", depth.Asks)
	}
}

func TestTimePriorityWithinLevel(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Sell, 100, 5))

	trades := book.AddOrder(limit(t, GoodTillCancel, 3, Buy, 100, 7))
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}
	if trades[0].Ask.OrderID != 1 {
		t.Errorf("Expected first ask to match first, got %d", trades[0].Ask.OrderID)
	}
	if trades[1].Ask.OrderID != 2 || trades[1].Ask.Quantity != 2 {
		t.Errorf("Expected second ask to fill 2, got id=%d qty=%d",
			trades[1].Ask.OrderID, trades[1].Ask.Quantity)
	}
}

func TestPricePriorityAcrossLevels(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 102, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Sell, 100, 5))
	book.AddOrder(limit(t, GoodTillCancel, 3, Sell, 101, 5))

	trades := book.AddOrder(limit(t, GoodTillCancel, 4, Buy, 102, 12))
	if len(trades) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(trades))
	}

	wantOrder := []OrderID{2, 3, 1}
	for i, want := range wantOrder {
		if trades[i].Ask.OrderID != want {
			t.Errorf("Trade %d: expected ask %d, got %d", i, want, trades[i].Ask.OrderID)
		}
	}
	if trades[2].Ask.Quantity != 2 {
		t.Errorf("Expected final trade quantity 2, got %d", trades[2].Ask.Quantity)
	}
}

func TestMarketOrderSweepsBook(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Sell, 105, 5))

	trades := book.AddOrder(market(t, 3, Buy, 10))
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestMarketOrderRemainderRests(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	trades := book.AddOrder(market(t, 2, Buy, 8))

	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if !book.Contains(2) {
		t.Fatal("Expected market remainder to rest as a limit order")
	}

	depth := book.Depth()
	if len(depth.Bids) != 1 || depth.Bids[0].Price != 100 || depth.Bids[0].Quantity != 3 {
		t.Errorf("Expected resting bid 3@100, got %+v", depth.Bids)
	}
}

func TestMarketOrderEmptyOppositeRejected(t *testing.T) {
	book := newTestBook(t)

	trades := book.AddOrder(market(t, 1, Buy, 10))
	if trades != nil {
		t.Errorf("Expected nil trades, got %v", trades)
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestFillAndKillRejectedWithoutCross(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 105, 10))
	trades := book.AddOrder(limit(t, FillAndKill, 2, Buy, 100, 10))

	if trades != nil {
		t.Errorf("Expected nil trades, got %v", trades)
	}
	if book.Contains(2) {
		t.Error("Expected fill-and-kill order not to rest")
	}
}

func TestFillAndKillRemainderCanceled(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	trades := book.AddOrder(limit(t, FillAndKill, 2, Buy, 100, 10))

	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if trades[0].Bid.Quantity != 5 {
		t.Errorf("Expected fill of 5, got %d", trades[0].Bid.Quantity)
	}
	if book.Contains(2) {
		t.Error("Expected fill-and-kill remainder to be canceled")
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestFillOrKillRejectedWhenUnderfilled(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	trades := book.AddOrder(limit(t, FillOrKill, 2, Buy, 100, 10))

	if trades != nil {
		t.Errorf("Expected nil trades, got %v", trades)
	}
	if !book.Contains(1) {
		t.Error("Expected resting ask to be untouched")
	}
	depth := book.Depth()
	if len(depth.Asks) != 1 || depth.Asks[0].Quantity != 5 {
		t.Errorf("Expected book unchanged, got %+v", depth.Asks)
	}
}

func TestFillOrKillFillsAcrossLevels(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Sell, 101, 5))

	trades := book.AddOrder(limit(t, FillOrKill, 3, Buy, 101, 10))
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestFillOrKillIgnoresLevelsBeyondLimit(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Sell, 105, 100))

	trades := book.AddOrder(limit(t, FillOrKill, 3, Buy, 101, 10))
	if trades != nil {
		t.Errorf("Expected nil trades, got %v", trades)
	}
	if book.Size() != 2 {
		t.Errorf("Expected both asks untouched, got size %d", book.Size())
	}
}

func TestCancelOrder(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Buy, 100, 10))
	book.CancelOrder(1)

	if book.Contains(1) {
		t.Error("Expected order 1 to be canceled")
	}
	if book.Size() != 0 {
		t.Errorf("Expected size 0, got %d", book.Size())
	}

	// Unknown id is a no-op.
	book.CancelOrder(42)
}

func TestCancelOrdersBulk(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Buy, 100, 10))
	book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 99, 10))
	book.AddOrder(limit(t, GoodTillCancel, 3, Sell, 105, 10))

	book.CancelOrders([]OrderID{1, 3, 99})
	if book.Size() != 1 {
		t.Errorf("Expected size 1, got %d", book.Size())
	}
	if !book.Contains(2) {
		t.Error("Expected order 2 to survive")
	}
}

func TestModifyOrderLosesQueuePosition(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 100, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Sell, 100, 5))

	book.ModifyOrder(NewOrderModify(1, Sell, 100, 5))

	trades := book.AddOrder(limit(t, GoodTillCancel, 3, Buy, 100, 5))
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if trades[0].Ask.OrderID != 2 {
		t.Errorf("Expected order 2 to match first after modify, got %d", trades[0].Ask.OrderID)
	}
}

func TestModifyOrderCanTriggerMatch(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Sell, 105, 5))
	book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 100, 5))

	trades := book.ModifyOrder(NewOrderModify(2, Buy, 105, 5))
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade after modify, got %d", len(trades))
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestModifyOrderPreservesType(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local))
	book := newTestBook(t, WithClock(clock), WithSweepSlack(0))

	book.AddOrder(limit(t, GoodForDay, 1, Buy, 100, 10))
	book.ModifyOrder(NewOrderModify(1, Buy, 99, 10))

	if !book.Contains(1) {
		t.Fatal("Expected modified order to rest")
	}

	clock.fire(time.Date(2024, 6, 3, 16, 0, 0, 0, time.Local))
	waitFor(t, func() bool { return book.Size() == 0 })
}

func TestModifyUnknownOrderIsNoop(t *testing.T) {
	book := newTestBook(t)

	trades := book.ModifyOrder(NewOrderModify(7, Buy, 100, 10))
	if trades != nil {
		t.Errorf("Expected nil trades, got %v", trades)
	}
	if book.Size() != 0 {
		t.Errorf("Expected empty book, got size %d", book.Size())
	}
}

func TestDepthSnapshot(t *testing.T) {
	book := newTestBook(t)

	book.AddOrder(limit(t, GoodTillCancel, 1, Buy, 100, 4))
	book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 100, 6))
	book.AddOrder(limit(t, GoodTillCancel, 3, Buy, 99, 3))
	book.AddOrder(limit(t, GoodTillCancel, 4, Sell, 101, 7))
	book.AddOrder(limit(t, GoodTillCancel, 5, Sell, 103, 2))

	depth := book.Depth()
	if len(depth.Bids) != 2 {
		t.Fatalf("Expected 2 bid levels, got %d", len(depth.Bids))
	}
	if depth.Bids[0].Price != 100 || depth.Bids[0].Quantity != 10 {
		t.Errorf("Expected best bid 10@100, got %+v", depth.Bids[0])
	}
	if depth.Bids[1].Price != 99 {
		t.Errorf("Expected second bid at 99, got %d", depth.Bids[1].Price)
	}
	if len(depth.Asks) != 2 {
		t.Fatalf("Expected 2 ask levels, got %d", len(depth.Asks))
	}
	if depth.Asks[0].Price != 101 || depth.Asks[0].Quantity != 7 {
		t.Errorf("Expected best ask 7@101, got %+v", depth.Asks[0])
	}
	if depth.Asks[1].Price != 103 {
		t.Errorf("Expected second ask at 103, got %d", depth.Asks[1].Price)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
	ch chan time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t, ch: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	return c.ch
}

func (c *fakeClock) fire(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
	c.ch <- t
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestGoodForDaySweep(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local))
	book := newTestBook(t, WithClock(clock), WithSweepSlack(0))

	book.AddOrder(limit(t, GoodForDay, 1, Buy, 100, 10))
	book.AddOrder(limit(t, GoodForDay, 2, Sell, 105, 10))
	book.AddOrder(limit(t, GoodTillCancel, 3, Buy, 99, 10))

	clock.fire(time.Date(2024, 6, 3, 16, 0, 0, 0, time.Local))
	waitFor(t, func() bool { return book.Size() == 1 })

	if book.Contains(1) || book.Contains(2) {
		t.Error("Expected good-for-day orders to be swept")
	}
	if !book.Contains(3) {
		t.Error("Expected good-till-cancel order to survive the sweep")
	}
}

func TestCancelOrdersReportsToHook(t *testing.T) {
	var got []OrderID
	book := newTestBook(t, WithCancelHook(func(ids []OrderID) {
		got = append(got, ids...)
	}))

	book.AddOrder(limit(t, GoodTillCancel, 1, Buy, 100, 10))
	book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 99, 10))

	// Unknown ids are skipped and never reach the hook.
	book.CancelOrders([]OrderID{1, 2, 99})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Expected hook to see [1 2], got %v", got)
	}

	got = got[:0]
	book.CancelOrders([]OrderID{99})
	if len(got) != 0 {
		t.Errorf("Expected no hook call for unknown ids, got %v", got)
	}
}

func TestGoodForDaySweepInvokesHook(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local))

	var mu sync.Mutex
	var got []OrderID
	book := newTestBook(t, WithClock(clock), WithSweepSlack(0),
		WithCancelHook(func(ids []OrderID) {
			mu.Lock()
			got = append(got, ids...)
			mu.Unlock()
		}))

	book.AddOrder(limit(t, GoodForDay, 1, Buy, 100, 10))
	book.AddOrder(limit(t, GoodTillCancel, 2, Buy, 99, 10))

	clock.fire(time.Date(2024, 6, 3, 16, 0, 0, 0, time.Local))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 1 {
		t.Errorf("Expected swept id 1, got %v", got)
	}
}

func TestSessionCloseOption(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 6, 3, 10, 0, 0, 0, time.Local))
	book := newTestBook(t, WithClock(clock), WithSessionClose(17, 30), WithSweepSlack(0))

	book.AddOrder(limit(t, GoodForDay, 1, Buy, 100, 10))

	clock.fire(time.Date(2024, 6, 3, 17, 30, 0, 0, time.Local))
	waitFor(t, func() bool { return book.Size() == 0 })
}

func TestShutdownIdempotent(t *testing.T) {
	book := NewOrderBook()
	book.Shutdown()
	book.Shutdown()
}

func TestConcurrentAddAndCancel(t *testing.T) {
	book := newTestBook(t)

	const workers = 4
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := OrderID(w*perWorker + i + 1)
				side := Buy
				if i%2 == 0 {
					side = Sell
				}
				order, err := NewOrder(GoodTillCancel, id, side, Price(95+i%10), 5)
				if err != nil {
					t.Errorf("NewOrder failed: %v", err)
					return
				}
				book.AddOrder(order)
				if i%3 == 0 {
					book.CancelOrder(id)
				}
			}
		}(w)
	}
	wg.Wait()

	depth := book.Depth()
	var total Quantity
	for _, lvl := range depth.Bids {
		total += lvl.Quantity
	}
	for _, lvl := range depth.Asks {
		total += lvl.Quantity
	}
	if book.Size() == 0 && total != 0 {
		t.Errorf("Depth reports quantity %d for an empty book", total)
	}
	if book.Size() > 0 && total == 0 {
		t.Errorf("Book has %d orders but depth is empty", book.Size())
	}
}
