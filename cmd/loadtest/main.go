package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/quantfabric/matchbook/pkg/core"
)

type loadConfig struct {
	Workers      int     `mapstructure:"workers"`
	Orders       int     `mapstructure:"orders"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	PriceLow     int64   `mapstructure:"price_low"`
	PriceHigh    int64   `mapstructure:"price_high"`
	MaxQuantity  uint64  `mapstructure:"max_quantity"`
	MarketEvery  int     `mapstructure:"market_every"`
	CancelEvery  int     `mapstructure:"cancel_every"`
	ReportTopPct bool    `mapstructure:"report_top_pct"`
}

func loadSettings() (loadConfig, error) {
	v := viper.New()
	v.SetDefault("workers", 8)
	v.SetDefault("orders", 100000)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("price_low", 90)
	v.SetDefault("price_high", 110)
	v.SetDefault("max_quantity", 100)
	v.SetDefault("market_every", 10)
	v.SetDefault("cancel_every", 7)
	v.SetDefault("report_top_pct", true)

	v.SetEnvPrefix("LOADTEST")
	v.AutomaticEnv()

	v.SetConfigName("loadtest")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return loadConfig{}, err
		}
	}

	var cfg loadConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return loadConfig{}, err
	}
	return cfg, nil
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := loadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load settings")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, stopping")
		cancel()
	}()

	book := core.NewOrderBook()
	defer book.Shutdown()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit))
	}

	log.Info().
		Int("workers", cfg.Workers).
		Int("orders", cfg.Orders).
		Float64("rate_limit", cfg.RateLimit).
		Msg("Starting load test")

	// One histogram per worker, merged after the run. 1ns..10s range.
	histograms := make([]*hdrhistogram.Histogram, cfg.Workers)
	for i := range histograms {
		histograms[i] = hdrhistogram.New(1, 10_000_000_000, 3)
	}

	var (
		nextID     atomic.Uint64
		tradeCount atomic.Uint64
		wg         sync.WaitGroup
	)

	perWorker := cfg.Orders / cfg.Workers
	start := time.Now()

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(workerID) + start.UnixNano()))
			hist := histograms[workerID]
			var placed []core.OrderID

			for j := 0; j < perWorker; j++ {
				if ctx.Err() != nil {
					return
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}

				id := core.OrderID(nextID.Add(1))
				side := core.Buy
				if r.Intn(2) == 1 {
					side = core.Sell
				}
				qty := core.Quantity(r.Uint64()%cfg.MaxQuantity + 1)

				var order *core.Order
				if cfg.MarketEvery > 0 && j%cfg.MarketEvery == 0 {
					market, orderErr := core.NewMarketOrder(id, side, qty)
					if orderErr != nil {
						continue
					}
					order = market
				} else {
					price := core.Price(cfg.PriceLow + r.Int63n(cfg.PriceHigh-cfg.PriceLow+1))
					limit, orderErr := core.NewOrder(core.GoodTillCancel, id, side, price, qty)
					if orderErr != nil {
						continue
					}
					order = limit
				}

				began := time.Now()
				trades := book.AddOrder(order)
				hist.RecordValue(time.Since(began).Nanoseconds())

				tradeCount.Add(uint64(len(trades)))
				if book.Contains(id) {
					placed = append(placed, id)
				}

				if cfg.CancelEvery > 0 && j%cfg.CancelEvery == 0 && len(placed) > 0 {
					victim := placed[r.Intn(len(placed))]
					began = time.Now()
					book.CancelOrder(victim)
					hist.RecordValue(time.Since(began).Nanoseconds())
				}
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)

	merged := histograms[0]
	for _, h := range histograms[1:] {
		merged.Merge(h)
	}

	total := merged.TotalCount()
	log.Info().
		Dur("duration", duration).
		Int64("operations", total).
		Uint64("trades", tradeCount.Load()).
		Int("resting", book.Size()).
		Float64("ops_per_sec", float64(total)/duration.Seconds()).
		Msg("Load test completed")

	fmt.Printf("\nLatency (ns):\n")
	fmt.Printf("  min    %12d\n", merged.Min())
	fmt.Printf("  mean   %12.0f\n", merged.Mean())
	fmt.Printf("  p50    %12d\n", merged.ValueAtQuantile(50))
	fmt.Printf("  p90    %12d\n", merged.ValueAtQuantile(90))
	fmt.Printf("  p99    %12d\n", merged.ValueAtQuantile(99))
	if cfg.ReportTopPct {
		fmt.Printf("  p99.9  %12d\n", merged.ValueAtQuantile(99.9))
		fmt.Printf("  p99.99 %12d\n", merged.ValueAtQuantile(99.99))
	}
	fmt.Printf("  max    %12d\n", merged.Max())
}
