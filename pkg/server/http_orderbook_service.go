package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/logging"
	"github.com/quantfabric/matchbook/pkg/messaging"
	pkgotel "github.com/quantfabric/matchbook/pkg/otel"
)

// CreateBookRequest creates a named book.
type CreateBookRequest struct {
	Name       string `json:"name"`
	Instrument string `json:"instrument"`
}

// CreateOrderRequest submits a new order to a book.
type CreateOrderRequest struct {
	ID       uint64 `json:"id"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"`
	Quantity uint64 `json:"quantity"`
}

// ModifyOrderRequest replaces an existing order's terms.
type ModifyOrderRequest struct {
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity uint64 `json:"quantity"`
}

// OrderResponse reports the outcome of an add or modify.
type OrderResponse struct {
	OrderID uint64       `json:"orderId"`
	Trades  []core.Trade `json:"trades"`
	Stored  bool         `json:"stored"`
}

// SizeResponse reports the number of resting orders.
type SizeResponse struct {
	Size int `json:"size"`
}

func parseSide(s string) (core.Side, error) {
	switch s {
	case "BUY":
		return core.Buy, nil
	case "SELL":
		return core.Sell, nil
	default:
		return 0, core.ErrInvalidSide
	}
}

func parseOrderType(s string) (core.OrderType, error) {
	switch s {
	case "MARKET":
		return core.Market, nil
	case "GOOD_TILL_CANCEL":
		return core.GoodTillCancel, nil
	case "FILL_AND_KILL":
		return core.FillAndKill, nil
	case "FILL_OR_KILL":
		return core.FillOrKill, nil
	case "GOOD_FOR_DAY":
		return core.GoodForDay, nil
	default:
		return 0, core.ErrInvalidType
	}
}

func (s *Server) handleCreateBook(c echo.Context) error {
	var req CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "book name is required")
	}
	if req.Instrument == "" {
		req.Instrument = req.Name
	}

	info, err := s.CreateBook(c.Request().Context(), req.Name, req.Instrument)
	if err == ErrOrderBookExists {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, info)
}

// CreateBook creates a named book wired to the execution feed. The
// attached cancel hook makes a session-close sweep publish the same
// messages an explicit cancel does.
func (s *Server) CreateBook(ctx context.Context, name, instrument string) (*OrderBookInfo, error) {
	opts := make([]core.Option, 0, len(s.bookOpts)+1)
	opts = append(opts, s.bookOpts...)
	opts = append(opts, core.WithCancelHook(s.sweepCancelHook(name)))
	return s.manager.CreateOrderBook(ctx, name, instrument, opts...)
}

// sweepCancelHook fans a bulk cancel out to the execution feed and the
// depth cache, mirroring handleCancelOrder.
func (s *Server) sweepCancelHook(name string) func([]core.OrderID) {
	return func(ids []core.OrderID) {
		ctx := context.Background()
		pkgotel.GetOrderBookMetrics().RecordRestingOrders(ctx, -int64(len(ids)))
		s.publishExecution(ctx, messaging.NewCancelMessage(name, ids))
		if book, _, err := s.manager.GetOrderBook(ctx, name); err == nil {
			s.publishDepth(ctx, name, book)
		}
	}
}

func (s *Server) handleListBooks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.ListOrderBooks(c.Request().Context()))
}

func (s *Server) handleDeleteBook(c echo.Context) error {
	name := c.Param("book")
	if err := s.manager.DeleteOrderBook(c.Request().Context(), name); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if s.depth != nil {
		s.depth.Delete(c.Request().Context(), name)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddOrder(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("book")

	book, _, err := s.manager.GetOrderBook(ctx, name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	side, err := parseSide(req.Side)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	orderType, err := parseOrderType(req.Type)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := core.NewOrder(orderType, core.OrderID(req.ID), side, core.Price(req.Price), core.Quantity(req.Quantity))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanAddOrder,
		attribute.String(pkgotel.AttributeBook, name),
		attribute.Int64(pkgotel.AttributeOrderID, int64(req.ID)),
		attribute.String(pkgotel.AttributeOrderSide, req.Side),
		attribute.String(pkgotel.AttributeOrderType, req.Type),
		attribute.Int64(pkgotel.AttributeOrderPrice, req.Price),
		attribute.Int64(pkgotel.AttributeOrderQuantity, int64(req.Quantity)),
	)
	defer pkgotel.EndSpan(span)

	trades := book.AddOrder(order)
	stored := book.Contains(order.ID())

	pkgotel.AddAttributes(span,
		attribute.Int(pkgotel.AttributeTradeCount, len(trades)),
		attribute.Int64(pkgotel.AttributeExecutedQuantity, int64(order.FilledQuantity())),
		attribute.Int64(pkgotel.AttributeRemainingQuantity, int64(order.RemainingQuantity())),
	)
	metrics := pkgotel.GetOrderBookMetrics()
	metrics.RecordOrderProcessed(ctx, req.Type)
	metrics.RecordTradesMatched(ctx, int64(len(trades)))
	if stored {
		metrics.RecordRestingOrders(ctx, 1)
	}

	s.publishExecution(ctx, messaging.NewExecutionMessage(name, s.scale, order, trades, stored))
	s.publishDepth(ctx, name, book)

	if trades == nil {
		trades = []core.Trade{}
	}
	return c.JSON(http.StatusOK, OrderResponse{OrderID: req.ID, Trades: trades, Stored: stored})
}

func (s *Server) handleCancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("book")

	book, _, err := s.manager.GetOrderBook(ctx, name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanCancelOrder,
		attribute.String(pkgotel.AttributeBook, name),
		attribute.Int64(pkgotel.AttributeOrderID, int64(id)),
	)
	defer pkgotel.EndSpan(span)

	existed := book.Contains(core.OrderID(id))
	book.CancelOrder(core.OrderID(id))

	if existed {
		pkgotel.GetOrderBookMetrics().RecordRestingOrders(ctx, -1)
		s.publishExecution(ctx, messaging.NewCancelMessage(name, []core.OrderID{core.OrderID(id)}))
		s.publishDepth(ctx, name, book)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleModifyOrder(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("book")

	book, _, err := s.manager.GetOrderBook(ctx, name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var req ModifyOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	side, err := parseSide(req.Side)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Quantity == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, core.ErrInvalidQuantity.Error())
	}
	if req.Price <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, core.ErrInvalidPrice.Error())
	}

	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanModifyOrder,
		attribute.String(pkgotel.AttributeBook, name),
		attribute.Int64(pkgotel.AttributeOrderID, int64(id)),
		attribute.String(pkgotel.AttributeOrderSide, req.Side),
		attribute.Int64(pkgotel.AttributeOrderPrice, req.Price),
		attribute.Int64(pkgotel.AttributeOrderQuantity, int64(req.Quantity)),
	)
	defer pkgotel.EndSpan(span)

	modify := core.NewOrderModify(core.OrderID(id), side, core.Price(req.Price), core.Quantity(req.Quantity))
	trades := book.ModifyOrder(modify)
	stored := book.Contains(core.OrderID(id))

	pkgotel.AddAttributes(span, attribute.Int(pkgotel.AttributeTradeCount, len(trades)))
	pkgotel.GetOrderBookMetrics().RecordTradesMatched(ctx, int64(len(trades)))

	if len(trades) > 0 || stored {
		// The feed message carries no order type, so the replacement is
		// rebuilt under any type and filled by the executed trades.
		replacement := modify.ToOrder(core.GoodTillCancel)
		for _, t := range trades {
			replacement.Fill(t.Bid.Quantity)
		}
		s.publishExecution(ctx, messaging.NewExecutionMessage(name, s.scale, replacement, trades, stored))
		s.publishDepth(ctx, name, book)
	}

	if trades == nil {
		trades = []core.Trade{}
	}
	return c.JSON(http.StatusOK, OrderResponse{OrderID: id, Trades: trades, Stored: stored})
}

func (s *Server) handleDepth(c echo.Context) error {
	book, _, err := s.manager.GetOrderBook(c.Request().Context(), c.Param("book"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, book.Depth())
}

func (s *Server) handleSize(c echo.Context) error {
	book, _, err := s.manager.GetOrderBook(c.Request().Context(), c.Param("book"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, SizeResponse{Size: book.Size()})
}

// publishExecution sends the execution message to the feed. Failures
// are logged and do not fail the request.
func (s *Server) publishExecution(ctx context.Context, msg *messaging.ExecutionMessage) {
	if s.sender == nil || msg == nil {
		return
	}
	_, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanPublishExecution)
	defer pkgotel.EndSpan(span)

	if err := s.sender.SendExecutionMessage(ctx, msg); err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).
			Str("order_id", msg.OrderID).
			Msg("failed to publish execution message")
	}
}

// publishDepth pushes a fresh depth snapshot to the cache when one is
// configured.
func (s *Server) publishDepth(ctx context.Context, name string, book *core.OrderBook) {
	if s.depth == nil {
		return
	}
	s.depth.PublishDepth(ctx, name, book.Depth())
}
