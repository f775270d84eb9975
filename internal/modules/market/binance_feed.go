package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristomenis/vigil/internal/domain"
	"github.com/aristomenis/vigil/internal/metrics"
)

const (
	binanceStreamURL = "wss://stream.binance.com:9443/stream"

	dialTimeout       = 30 * time.Second
	baseReconnectWait = 5 * time.Second
	maxReconnectWait  = 5 * time.Minute
)

// BinanceFeed ingests ticker updates from the Binance combined stream and
// persists them as normalized ticks. It is an external collaborator to the
// analytics core: analytics only ever reads the tick store.
type BinanceFeed struct {
	symbols []string // lowercase stream symbols, e.g. "btcusdt"
	ticks   *TickRepository
	log     zerolog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// binanceTickerEvent is the @ticker payload within a combined stream frame.
type binanceTickerEvent struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

type binanceStreamFrame struct {
	Stream string             `json:"stream"`
	Data   binanceTickerEvent `json:"data"`
}

// NewBinanceFeed creates a new Binance ticker feed
func NewBinanceFeed(symbols []string, ticks *TickRepository, log zerolog.Logger) *BinanceFeed {
	return &BinanceFeed{
		symbols:  symbols,
		ticks:    ticks,
		log:      log.With().Str("component", "binance_feed").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the feed's read loop in a background goroutine. The feed
// reconnects with exponential backoff until Stop is called.
func (f *BinanceFeed) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run()
	}()
	f.log.Info().Strs("symbols", f.symbols).Msg("Binance feed started")
}

// Stop signals the read loop to exit and waits for it.
func (f *BinanceFeed) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
	f.wg.Wait()
	f.log.Info().Msg("Binance feed stopped")
}

func (f *BinanceFeed) run() {
	wait := baseReconnectWait
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		if err := f.connectAndRead(); err != nil {
			f.log.Warn().Err(err).Dur("retry_in", wait).Msg("Binance feed connection lost")
			metrics.FeedReconnects.WithLabelValues(string(domain.VenueBinance)).Inc()
		}

		select {
		case <-f.stopChan:
			return
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}
	}
}

func (f *BinanceFeed) connectAndRead() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the read context when Stop is requested.
	go func() {
		select {
		case <-f.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial binance stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")
	conn.SetReadLimit(1 << 20)

	f.log.Info().Msg("Connected to Binance stream")

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("binance read failed: %w", err)
		}

		var frame binanceStreamFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			f.log.Warn().Err(err).Msg("Unparseable Binance frame, skipping")
			continue
		}
		if frame.Data.Symbol == "" {
			continue
		}

		f.persist(ctx, frame.Data)
	}
}

func (f *BinanceFeed) persist(ctx context.Context, event binanceTickerEvent) {
	price, err := strconv.ParseFloat(event.LastPrice, 64)
	if err != nil {
		f.log.Warn().Str("symbol", event.Symbol).Str("price", event.LastPrice).Msg("Bad price in Binance event")
		return
	}

	tick := domain.MarketTick{
		Timestamp:  time.UnixMilli(event.EventTime).UTC(),
		Venue:      domain.VenueBinance,
		Instrument: NormalizeBinanceSymbol(event.Symbol),
		Price:      price,
	}

	if err := f.ticks.Save(ctx, tick); err != nil {
		f.log.Error().Err(err).Str("instrument", tick.Instrument).Msg("Failed to persist tick")
		return
	}
	metrics.TicksIngested.WithLabelValues(string(domain.VenueBinance)).Inc()
}

func (f *BinanceFeed) streamURL() string {
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@ticker"
	}
	return binanceStreamURL + "?streams=" + strings.Join(streams, "/")
}

// NormalizeBinanceSymbol converts a Binance symbol like "BTCUSDT" to the
// canonical "BTC/USDT" instrument form. Unrecognized quote assets pass
// through unchanged.
func NormalizeBinanceSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)] + "/" + quote
		}
	}
	return upper
}
