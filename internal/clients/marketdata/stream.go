package marketdata

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/paperdesk/internal/domain"
	"github.com/aristath/paperdesk/internal/events"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10

	quoteStaleThreshold = 5 * time.Minute
)

// PriceStream consumes real-time quote pushes over WebSocket and keeps
// a thread-safe last-quote cache. Quotes older than the staleness
// threshold are not served.
type PriceStream struct {
	url        string
	apiKey     string
	httpClient *http.Client
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	events *events.Manager
	log    zerolog.Logger

	connected bool
	stopChan  chan struct{}
	stopped   bool

	quotes  map[string]streamQuote
	cacheMu sync.RWMutex
}

type streamQuote struct {
	price domain.Money
	at    time.Time
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// The WebSocket upgrade handshake requires HTTP/1.1, and TLS ALPN may
// otherwise negotiate HTTP/2.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewPriceStream creates a new streaming quote client
func NewPriceStream(url, apiKey string, eventManager *events.Manager, log zerolog.Logger) *PriceStream {
	return &PriceStream{
		url:        url,
		apiKey:     apiKey,
		httpClient: createHTTP1Client(),
		events:     eventManager,
		log:        log.With().Str("component", "price_stream").Logger(),
		quotes:     make(map[string]streamQuote),
		stopChan:   make(chan struct{}),
	}
}

// Start connects and begins the read loop. A failed initial connection
// is retried in the background.
func (ps *PriceStream) Start() error {
	ps.log.Info().Msg("Starting price stream client")

	if err := ps.Connect(); err != nil {
		ps.log.Warn().Err(err).Msg("Initial stream connection failed, will retry in background")
		go ps.reconnectLoop()
		return err
	}

	ps.mu.RLock()
	ctx := ps.connCtx
	ps.mu.RUnlock()
	go ps.readMessages(ctx)

	return nil
}

// Stop shuts down the stream.
func (ps *PriceStream) Stop() error {
	ps.mu.Lock()
	if ps.stopped {
		ps.mu.Unlock()
		return nil
	}
	ps.stopped = true
	ps.mu.Unlock()

	close(ps.stopChan)
	return ps.Disconnect()
}

// Connect dials the stream endpoint and subscribes to the quotes
// channel.
func (ps *PriceStream) Connect() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	wsURL := ps.url
	if ps.apiKey != "" {
		wsURL += "?token=" + ps.apiKey
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPClient: ps.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial quote stream: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	ps.conn = conn
	ps.connCtx = connCtx
	ps.cancelFunc = connCancel
	ps.connected = true

	if err := ps.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		ps.conn = nil
		ps.connCtx = nil
		ps.cancelFunc = nil
		ps.connected = false
		return fmt.Errorf("failed to subscribe to quotes: %w", err)
	}

	ps.log.Info().Str("url", ps.url).Msg("Connected to quote stream")
	return nil
}

// Disconnect closes the connection.
func (ps *PriceStream) Disconnect() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.conn == nil {
		return nil
	}

	if ps.cancelFunc != nil {
		ps.cancelFunc()
		ps.cancelFunc = nil
	}

	err := ps.conn.Close(websocket.StatusNormalClosure, "")
	ps.conn = nil
	ps.connCtx = nil
	ps.connected = false

	if err != nil {
		return fmt.Errorf("error closing quote stream: %w", err)
	}
	return nil
}

// IsConnected reports the connection state.
func (ps *PriceStream) IsConnected() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.connected
}

func (ps *PriceStream) subscribe(ctx context.Context) error {
	msg := map[string]string{"op": "subscribe", "channel": "quotes"}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := ps.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}
	return nil
}

func (ps *PriceStream) readMessages(ctx context.Context) {
	defer func() {
		ps.mu.RLock()
		stopped := ps.stopped
		ps.mu.RUnlock()
		if !stopped {
			go ps.reconnectLoop()
		}
	}()

	for {
		select {
		case <-ps.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		ps.mu.RLock()
		conn := ps.conn
		ps.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				ps.log.Info().Msg("Quote stream closed normally")
			} else if ctx.Err() == nil {
				ps.log.Error().Err(err).Msg("Quote stream read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := ps.handleMessage(message); err != nil {
			ps.log.Warn().Err(err).Msg("Failed to handle quote message")
		}
	}
}

type quotePush struct {
	Ticker string       `json:"ticker"`
	Price  domain.Money `json:"price"`
}

func (ps *PriceStream) handleMessage(message []byte) error {
	var push quotePush
	if err := json.Unmarshal(message, &push); err != nil {
		return fmt.Errorf("failed to parse quote push: %w", err)
	}
	if push.Ticker == "" || !push.Price.IsPositive() {
		return nil
	}

	ps.cacheMu.Lock()
	ps.quotes[push.Ticker] = streamQuote{price: push.Price, at: time.Now()}
	ps.cacheMu.Unlock()

	ps.events.Emit(events.PriceUpdated, "marketdata", map[string]interface{}{
		"ticker": push.Ticker,
		"price":  push.Price.String(),
	})
	return nil
}

func (ps *PriceStream) reconnectLoop() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(math.Min(
			float64(baseReconnectDelay)*math.Pow(2, float64(attempt-1)),
			float64(maxReconnectDelay),
		))

		select {
		case <-ps.stopChan:
			return
		case <-time.After(delay):
		}

		ps.log.Info().Int("attempt", attempt).Msg("Reconnecting quote stream")
		if err := ps.Connect(); err != nil {
			ps.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			continue
		}

		ps.mu.RLock()
		ctx := ps.connCtx
		ps.mu.RUnlock()
		go ps.readMessages(ctx)
		return
	}
	ps.log.Error().Int("attempts", maxReconnectAttempts).Msg("Giving up on quote stream reconnection")
}

// LastQuote returns the cached quote for a ticker if one exists and is
// fresh.
func (ps *PriceStream) LastQuote(ticker string) (domain.Money, bool) {
	ps.cacheMu.RLock()
	defer ps.cacheMu.RUnlock()

	q, ok := ps.quotes[ticker]
	if !ok || time.Since(q.at) > quoteStaleThreshold {
		return domain.Money{}, false
	}
	return q.price, true
}
