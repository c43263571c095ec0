package marketmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantfabric/matchbook/pkg/server"
)

// Ensure httpOrderPlacer implements OrderPlacer interface
var _ OrderPlacer = (*httpOrderPlacer)(nil)

// httpOrderPlacer implements OrderPlacer against the engine's HTTP API.
type httpOrderPlacer struct {
	base   string
	client *http.Client
	cfg    *Config
	logger *slog.Logger
}

// NewHTTPOrderPlacer returns an OrderPlacer backed by the engine's REST surface.
func NewHTTPOrderPlacer(cfg *Config, logger *slog.Logger) (OrderPlacer, error) {
	if cfg.EngineAddr == "" {
		return nil, fmt.Errorf("engine address is required")
	}

	return &httpOrderPlacer{
		base:   strings.TrimRight(cfg.EngineAddr, "/"),
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		logger: logger.With("component", "httpOrderPlacer"),
	}, nil
}

// EnsureBook creates the configured book, tolerating one that already exists.
func (p *httpOrderPlacer) EnsureBook(ctx context.Context) error {
	status, _, err := p.do(ctx, http.MethodPost, "/books", server.CreateBookRequest{Name: p.cfg.Book})
	if err != nil {
		return fmt.Errorf("failed to create book %s: %w", p.cfg.Book, err)
	}
	if status == http.StatusConflict {
		p.logger.Debug("Book already exists", "book", p.cfg.Book)
		return nil
	}
	if status >= 400 {
		return fmt.Errorf("failed to create book %s: status %d", p.cfg.Book, status)
	}
	p.logger.Info("Created book", "book", p.cfg.Book)
	return nil
}

// PlaceOrder submits one order to the engine.
func (p *httpOrderPlacer) PlaceOrder(ctx context.Context, req server.CreateOrderRequest) (*server.OrderResponse, error) {
	p.logger.Debug("Placing order",
		"book", p.cfg.Book,
		"order_id", req.ID,
		"side", req.Side,
		"price", req.Price,
		"quantity", req.Quantity)

	status, body, err := p.do(ctx, http.MethodPost, "/books/"+p.cfg.Book+"/orders", req)
	if err != nil {
		return nil, fmt.Errorf("PlaceOrder failed: %w", err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("PlaceOrder failed: status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp server.OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("PlaceOrder: failed to decode response: %w", err)
	}

	p.logger.Info("Placed order",
		"book", p.cfg.Book,
		"order_id", resp.OrderID,
		"stored", resp.Stored,
		"trades", len(resp.Trades))
	return &resp, nil
}

// CancelOrder cancels one resting order. A missing order is not an
// error, the quote was likely filled in the meantime.
func (p *httpOrderPlacer) CancelOrder(ctx context.Context, orderID uint64) error {
	path := "/books/" + p.cfg.Book + "/orders/" + strconv.FormatUint(orderID, 10)
	status, body, err := p.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("CancelOrder failed: %w", err)
	}
	if status == http.StatusNotFound {
		p.logger.Info("Cancel skipped, order not found (likely filled)",
			"book", p.cfg.Book, "order_id", orderID)
		return nil
	}
	if status >= 400 {
		return fmt.Errorf("CancelOrder failed: status %d: %s", status, strings.TrimSpace(string(body)))
	}

	p.logger.Debug("Cancelled order", "book", p.cfg.Book, "order_id", orderID)
	return nil
}

// Close releases idle connections.
func (p *httpOrderPlacer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *httpOrderPlacer) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, p.base+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
