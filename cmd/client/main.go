package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/server"
)

var serverAddr = flag.String("addr", "http://localhost:8080", "Matching engine base URL")

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	// Remove the command from os.Args to make flag parsing work.
	os.Args = append(os.Args[:1], os.Args[2:]...)

	client := &apiClient{
		http: &http.Client{Timeout: 10 * time.Second},
	}

	switch command {
	case "create-book":
		createBook(client)
	case "list-books":
		listBooks(client)
	case "delete-book":
		deleteBook(client)
	case "create-order":
		createOrder(client, os.Args[1:]...)
	case "cancel-order":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cancel-order <book> <id>")
			os.Exit(1)
		}
		cancelOrder(client, os.Args[1], os.Args[2])
	case "depth":
		if len(os.Args) < 2 {
			fmt.Println("Usage: depth <book>")
			os.Exit(1)
		}
		if err := printDepth(client, os.Args[1]); err != nil {
			log.Fatal().Err(err).Msg("Depth failed")
		}
	case "size":
		if len(os.Args) < 2 {
			fmt.Println("Usage: size <book>")
			os.Exit(1)
		}
		printSize(client, os.Args[1])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// apiClient wraps the engine's HTTP surface. The -addr flag is read at
// request time because subcommands parse flags after the client is
// built.
type apiClient struct {
	base string
	http *http.Client
}

func (c *apiClient) baseURL() string {
	if c.base != "" {
		return c.base
	}
	return strings.TrimRight(*serverAddr, "/")
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func createBook(c *apiClient) {
	bookName := flag.String("name", "default", "Order book name")
	instrument := flag.String("instrument", "", "Instrument symbol (defaults to name)")
	flag.Parse()

	var info server.OrderBookInfo
	err := c.do(http.MethodPost, "/books", server.CreateBookRequest{
		Name:       *bookName,
		Instrument: *instrument,
	}, &info)
	if err != nil {
		log.Fatal().Err(err).Msg("CreateBook failed")
	}

	log.Info().
		Str("name", info.Name).
		Str("instrument", info.Instrument).
		Time("created_at", info.CreatedAt).
		Msg("Created order book")
}

func listBooks(c *apiClient) {
	flag.Parse()

	var books []server.OrderBookInfo
	if err := c.do(http.MethodGet, "/books", nil, &books); err != nil {
		log.Fatal().Err(err).Msg("ListBooks failed")
	}

	log.Info().Int("total", len(books)).Msg("Listed order books")
	for i, book := range books {
		log.Info().
			Int("index", i+1).
			Str("name", book.Name).
			Str("instrument", book.Instrument).
			Time("created_at", book.CreatedAt).
			Int("order_count", book.OrderCount).
			Msg("Order book")
	}
}

func deleteBook(c *apiClient) {
	bookName := flag.String("name", "default", "Order book name")
	flag.Parse()

	if err := c.do(http.MethodDelete, "/books/"+*bookName, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("DeleteBook failed")
	}
	log.Info().Str("name", *bookName).Msg("Order book deleted")
}

func createOrder(c *apiClient, args ...string) {
	bookName := flag.String("book", "", "Order book name")
	orderID := flag.Uint64("id", 0, "Order ID")
	side := flag.String("side", "", "Order side (BUY/SELL)")
	orderType := flag.String("type", "", "Order type (MARKET/GOOD_TILL_CANCEL/FILL_AND_KILL/FILL_OR_KILL/GOOD_FOR_DAY)")
	quantity := flag.Uint64("qty", 0, "Order quantity")
	price := flag.Int64("price", 0, "Order price in ticks")
	flag.Parse()

	// Positional form: create-order <book> <side> <type> <qty> <price> <id>
	if *bookName == "" && len(args) >= 6 {
		*bookName = args[0]
		*side = args[1]
		*orderType = args[2]
		*quantity = parseUint(args[3])
		*price = int64(parseUint(args[4]))
		*orderID = parseUint(args[5])
	}

	if *bookName == "" || *orderID == 0 || *side == "" || *orderType == "" || *quantity == 0 {
		fmt.Println("Usage: create-order <book> <side> <type> <quantity> <price> <id>")
		fmt.Println("   or: create-order --book=<name> --id=<id> --side=<side> --type=<type> --qty=<quantity> --price=<price>")
		os.Exit(1)
	}

	var resp server.OrderResponse
	err := c.do(http.MethodPost, "/books/"+*bookName+"/orders", server.CreateOrderRequest{
		ID:       *orderID,
		Side:     strings.ToUpper(*side),
		Type:     strings.ToUpper(*orderType),
		Price:    *price,
		Quantity: *quantity,
	}, &resp)
	if err != nil {
		log.Fatal().Err(err).Msg("CreateOrder failed")
	}

	log.Info().
		Uint64("order_id", resp.OrderID).
		Bool("stored", resp.Stored).
		Int("trades", len(resp.Trades)).
		Msg("Created order")

	for i, trade := range resp.Trades {
		log.Info().
			Int("index", i+1).
			Uint64("bid_order", uint64(trade.Bid.OrderID)).
			Uint64("ask_order", uint64(trade.Ask.OrderID)).
			Int64("bid_price", int64(trade.Bid.Price)).
			Int64("ask_price", int64(trade.Ask.Price)).
			Uint64("quantity", uint64(trade.Bid.Quantity)).
			Msg("Trade")
	}
}

func cancelOrder(c *apiClient, bookName, orderID string) {
	if err := c.do(http.MethodDelete, "/books/"+bookName+"/orders/"+orderID, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("CancelOrder failed")
	}
	log.Info().Str("order_id", orderID).Msg("Order canceled")
}

func printDepth(c *apiClient, bookName string) error {
	color.NoColor = false
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	var depth core.DepthView
	if err := c.do(http.MethodGet, "/books/"+bookName+"/depth", nil, &depth); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%15s|%15s|%s\n", cyan("Price"), cyan("Quantity"), cyan("Side"))
	fmt.Fprintf(w, "%15s|%15s|%s\n", "---------------", "---------------", "----")

	// Asks print highest first so the spread sits in the middle.
	for i := len(depth.Asks) - 1; i >= 0; i-- {
		level := depth.Asks[i]
		fmt.Fprintf(w, "%15d|%15d|%s\n", level.Price, level.Quantity, red("ASK"))
	}

	fmt.Fprintf(w, "%15s|%15s|%s\n", "---------------", "---------------", "----")

	for _, level := range depth.Bids {
		fmt.Fprintf(w, "%15d|%15d|%s\n", level.Price, level.Quantity, green("BID"))
	}

	return w.Flush()
}

func printSize(c *apiClient, bookName string) {
	var resp server.SizeResponse
	if err := c.do(http.MethodGet, "/books/"+bookName+"/size", nil, &resp); err != nil {
		log.Fatal().Err(err).Msg("Size failed")
	}
	log.Info().Str("book", bookName).Int("size", resp.Size).Msg("Resting orders")
}

// parseUint parses an unsigned decimal, zero on failure.
func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  create-book [--name=N] [--instrument=SYM]")
	fmt.Println("  list-books")
	fmt.Println("  delete-book [--name=N]")
	fmt.Println("  create-order <book> <side> <type> <quantity> <price> <id>")
	fmt.Println("  cancel-order <book> <id>")
	fmt.Println("  depth <book>")
	fmt.Println("  size <book>")
	fmt.Println("\nExamples:")
	fmt.Println("  create-book --name=BTCUSD")
	fmt.Println("  create-order BTCUSD SELL GOOD_TILL_CANCEL 10 100 1")
	fmt.Println("  create-order BTCUSD BUY MARKET 5 0 2")
	fmt.Println("  cancel-order BTCUSD 1")
	fmt.Println("  depth BTCUSD")
}
