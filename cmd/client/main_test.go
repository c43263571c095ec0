package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/messaging"
	"github.com/quantfabric/matchbook/pkg/server"
)

func newTestClient(t *testing.T) (*apiClient, *server.Server) {
	t.Helper()

	manager := server.NewOrderBookManager()
	t.Cleanup(manager.Close)

	scale, err := messaging.NewPriceScale("0.01")
	require.NoError(t, err)

	srv := server.NewServer(manager, messaging.NewMockMessageSender(), scale, zerolog.Nop())
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)

	return &apiClient{base: ts.URL, http: &http.Client{Timeout: 5 * time.Second}}, srv
}

func TestClientCreateBook(t *testing.T) {
	client, _ := newTestClient(t)

	var info server.OrderBookInfo
	err := client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "BTCUSD"}, &info)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", info.Name)
	assert.Equal(t, "BTCUSD", info.Instrument)
}

func TestClientCreateBookConflict(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "BTCUSD"}, nil))
	err := client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "BTCUSD"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestClientListBooks(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "a"}, nil))
	require.NoError(t, client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "b"}, nil))

	var books []server.OrderBookInfo
	require.NoError(t, client.do(http.MethodGet, "/books", nil, &books))
	assert.Len(t, books, 2)
}

func TestClientCreateOrderAndDepth(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "BTCUSD"}, nil))

	var resp server.OrderResponse
	err := client.do(http.MethodPost, "/books/BTCUSD/orders", server.CreateOrderRequest{
		ID:       1,
		Side:     "SELL",
		Type:     "GOOD_TILL_CANCEL",
		Price:    100,
		Quantity: 10,
	}, &resp)
	require.NoError(t, err)
	assert.True(t, resp.Stored)
	assert.Empty(t, resp.Trades)

	err = client.do(http.MethodPost, "/books/BTCUSD/orders", server.CreateOrderRequest{
		ID:       2,
		Side:     "BUY",
		Type:     "GOOD_TILL_CANCEL",
		Price:    100,
		Quantity: 4,
	}, &resp)
	require.NoError(t, err)
	assert.False(t, resp.Stored)
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, core.Quantity(4), resp.Trades[0].Bid.Quantity)

	var depth core.DepthView
	require.NoError(t, client.do(http.MethodGet, "/books/BTCUSD/depth", nil, &depth))
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, core.Quantity(6), depth.Asks[0].Quantity)
	assert.Empty(t, depth.Bids)
}

func TestClientCancelOrder(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "BTCUSD"}, nil))
	require.NoError(t, client.do(http.MethodPost, "/books/BTCUSD/orders", server.CreateOrderRequest{
		ID:       7,
		Side:     "BUY",
		Type:     "GOOD_TILL_CANCEL",
		Price:    99,
		Quantity: 5,
	}, nil))

	require.NoError(t, client.do(http.MethodDelete, "/books/BTCUSD/orders/7", nil, nil))

	var size server.SizeResponse
	require.NoError(t, client.do(http.MethodGet, "/books/BTCUSD/size", nil, &size))
	assert.Equal(t, 0, size.Size)
}

func TestClientDeleteBook(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.do(http.MethodPost, "/books", server.CreateBookRequest{Name: "gone"}, nil))
	require.NoError(t, client.do(http.MethodDelete, "/books/gone", nil, nil))

	err := client.do(http.MethodGet, "/books/gone/size", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
