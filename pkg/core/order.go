package core

import "fmt"

// Order is a single order resting in or passing through the book.
// Fields are unexported; the book owns all mutation.
type Order struct {
	id           OrderID
	orderType    OrderType
	side         Side
	price        Price
	initialQty   Quantity
	remainingQty Quantity
}

func newOrder(orderType OrderType, id OrderID, side Side, price Price, quantity Quantity) *Order {
	return &Order{
		id:           id,
		orderType:    orderType,
		side:         side,
		price:        price,
		initialQty:   quantity,
		remainingQty: quantity,
	}
}

// NewOrder creates a limit-style order. Market orders use NewMarketOrder.
func NewOrder(orderType OrderType, id OrderID, side Side, price Price, quantity Quantity) (*Order, error) {
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}
	if orderType != Market && price <= 0 {
		return nil, ErrInvalidPrice
	}
	if side != Buy && side != Sell {
		return nil, ErrInvalidSide
	}
	switch orderType {
	case Market, GoodTillCancel, FillAndKill, FillOrKill, GoodForDay:
	default:
		return nil, ErrInvalidType
	}
	return newOrder(orderType, id, side, price, quantity), nil
}

// NewMarketOrder creates a market order. Market orders carry no price
// until the book promotes them.
func NewMarketOrder(id OrderID, side Side, quantity Quantity) (*Order, error) {
	return NewOrder(Market, id, side, 0, quantity)
}

// ID returns the order's identifier.
func (o *Order) ID() OrderID { return o.id }

// Type returns the order's current type. A promoted market order
// reports GoodTillCancel.
func (o *Order) Type() OrderType { return o.orderType }

// Side returns the order's side.
func (o *Order) Side() Side { return o.side }

// Price returns the order's limit price in ticks.
func (o *Order) Price() Price { return o.price }

// InitialQuantity returns the quantity the order was created with.
func (o *Order) InitialQuantity() Quantity { return o.initialQty }

// RemainingQuantity returns the unfilled quantity.
func (o *Order) RemainingQuantity() Quantity { return o.remainingQty }

// FilledQuantity returns the executed quantity.
func (o *Order) FilledQuantity() Quantity { return o.initialQty - o.remainingQty }

// IsFilled reports whether no quantity remains.
func (o *Order) IsFilled() bool { return o.remainingQty == 0 }

// Fill reduces the remaining quantity. Panics if qty exceeds the
// remaining quantity; the match loop fills at most min(bid, ask).
func (o *Order) Fill(qty Quantity) {
	if qty > o.remainingQty {
		panic(fmt.Sprintf("order %d: cannot fill %d, only %d remaining", o.id, qty, o.remainingQty))
	}
	o.remainingQty -= qty
}

// toGoodTillCancel promotes a market order to a resting limit order at
// the given price. Panics on any other order type.
func (o *Order) toGoodTillCancel(price Price) {
	if o.orderType != Market {
		panic(fmt.Sprintf("order %d: only market orders can be promoted", o.id))
	}
	o.orderType = GoodTillCancel
	o.price = price
}

// OrderModify carries the replacement terms for an existing order.
type OrderModify struct {
	id       OrderID
	side     Side
	price    Price
	quantity Quantity
}

// NewOrderModify builds a modification request.
func NewOrderModify(id OrderID, side Side, price Price, quantity Quantity) OrderModify {
	return OrderModify{id: id, side: side, price: price, quantity: quantity}
}

// ID returns the target order's identifier.
func (m OrderModify) ID() OrderID { return m.id }

// Side returns the replacement side.
func (m OrderModify) Side() Side { return m.side }

// Price returns the replacement price.
func (m OrderModify) Price() Price { return m.price }

// Quantity returns the replacement quantity.
func (m OrderModify) Quantity() Quantity { return m.quantity }

// ToOrder materializes the replacement order under the given type.
func (m OrderModify) ToOrder(orderType OrderType) *Order {
	return newOrder(orderType, m.id, m.side, m.price, m.quantity)
}
