package tradingview

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

const (
	wsURL    = "wss://data.tradingview.com/socket.io/websocket"
	wsOrigin = "https://data.tradingview.com"

	// Public data works with the anonymous token; a paid token unlocks
	// longer history and real-time quotes.
	anonymousToken = "unauthorized_user_token"

	fetchTimeout = 30 * time.Second
)

// Index symbols live on their own TradingView feeds, not on the ETF
// exchanges. Everything absent from this map uses the configured default.
var indexExchanges = map[string]string{
	"SPX":  "SP",
	"VIX":  "CBOE",
	"MMTH": "INDEX",
	"MMFI": "INDEX",
	"MMTW": "INDEX",
	"ADRN": "INDEX",
}

// Client fetches daily bars over the TradingView chart websocket. Each
// GetHistory call opens a fresh chart session; the protocol is a sequence of
// ~m~<len>~m~<json> frames with ~h~<n> heartbeats echoed back verbatim.
type Client struct {
	authToken string
	exchange  string
}

// NewClient creates a TradingView daily-bar client.
func NewClient(cfg *config.TradingViewConfig) *Client {
	token := cfg.AuthToken
	if token == "" {
		token = anonymousToken
	}

	return &Client{
		authToken: token,
		exchange:  cfg.Exchange,
	}
}

// Name identifies this provider in logs and cache rows.
func (c *Client) Name() string {
	return "tradingview"
}

// GetHistory returns up to limit daily bars for symbol, oldest first.
func (c *Client) GetHistory(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", wsOrigin)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TradingView: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	session := chartSession()
	qualified := c.qualify(symbol)

	setup := [][2]interface{}{
		{"set_auth_token", []interface{}{c.authToken}},
		{"chart_create_session", []interface{}{session, ""}},
		{"resolve_symbol", []interface{}{
			session,
			"symbol_1",
			fmt.Sprintf(`={"symbol":"%s","adjustment":"splits"}`, qualified),
		}},
		{"create_series", []interface{}{session, "series_1", "s_1", "symbol_1", "1D", limit}},
	}

	for _, m := range setup {
		if err := writeMessage(conn, m[0].(string), m[1].([]interface{})); err != nil {
			return nil, fmt.Errorf("failed to send %s: %w", m[0], err)
		}
	}

	bars, err := c.readSeries(ctx, conn, symbol)
	if err != nil {
		return nil, err
	}

	logger.Debug("tradingview history fetched",
		zap.String("symbol", qualified),
		zap.Int("bars", len(bars)),
	)

	return bars, nil
}

func (c *Client) qualify(symbol string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	if exchange, ok := indexExchanges[symbol]; ok {
		return exchange + ":" + symbol
	}
	return c.exchange + ":" + symbol
}

// seriesMessage is the envelope of every JSON frame from the server.
type seriesMessage struct {
	Method string            `json:"m"`
	Params []json.RawMessage `json:"p"`
}

// seriesUpdate carries the bar payload of a timescale_update frame.
type seriesUpdate struct {
	Series struct {
		Bars []struct {
			Index  int       `json:"i"`
			Values []float64 `json:"v"`
		} `json:"s"`
	} `json:"series_1"`
}

func (c *Client) readSeries(ctx context.Context, conn *websocket.Conn, symbol string) ([]models.Bar, error) {
	var bars []models.Bar

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tradingview fetch for %s: %w", symbol, ctx.Err())
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("tradingview read for %s: %w", symbol, err)
		}

		for _, frame := range splitFrames(string(raw)) {
			// Heartbeats must be echoed back or the server drops us.
			if strings.HasPrefix(frame, "~h~") {
				if err := writeFrame(conn, frame); err != nil {
					return nil, fmt.Errorf("tradingview heartbeat: %w", err)
				}
				continue
			}

			var msg seriesMessage
			if err := json.Unmarshal([]byte(frame), &msg); err != nil {
				continue
			}

			switch msg.Method {
			case "timescale_update", "du":
				update, err := parseUpdate(msg)
				if err != nil {
					logger.Warn("unparseable series update", zap.String("symbol", symbol), zap.Error(err))
					continue
				}
				bars = append(bars, update...)
			case "series_completed":
				return finalize(symbol, bars)
			case "symbol_error", "series_error", "critical_error":
				return nil, fmt.Errorf("tradingview rejected %s: %s", symbol, msg.Method)
			}
		}
	}
}

func parseUpdate(msg seriesMessage) ([]models.Bar, error) {
	if len(msg.Params) < 2 {
		return nil, fmt.Errorf("update frame with %d params", len(msg.Params))
	}

	var update seriesUpdate
	if err := json.Unmarshal(msg.Params[1], &update); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(update.Series.Bars))
	for _, entry := range update.Series.Bars {
		// Values are [timestamp, open, high, low, close, volume]; volume is
		// absent for some index feeds.
		if len(entry.Values) < 5 {
			continue
		}
		bar := models.Bar{
			Date:  time.Unix(int64(entry.Values[0]), 0).UTC().Truncate(24 * time.Hour),
			Open:  models.NewDecimal(entry.Values[1]),
			High:  models.NewDecimal(entry.Values[2]),
			Low:   models.NewDecimal(entry.Values[3]),
			Close: models.NewDecimal(entry.Values[4]),
		}
		if len(entry.Values) > 5 {
			bar.Volume = models.NewDecimal(entry.Values[5])
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func finalize(symbol string, bars []models.Bar) ([]models.Bar, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("tradingview returned no bars for %s", symbol)
	}
	for i := range bars {
		bars[i].Symbol = symbol
	}
	return bars, nil
}

// splitFrames breaks a raw websocket payload into ~m~<len>~m~ framed chunks.
func splitFrames(raw string) []string {
	var frames []string
	for len(raw) > 0 {
		if !strings.HasPrefix(raw, "~m~") {
			break
		}
		rest := raw[3:]
		sep := strings.Index(rest, "~m~")
		if sep < 0 {
			break
		}
		var size int
		if _, err := fmt.Sscanf(rest[:sep], "%d", &size); err != nil || size <= 0 {
			break
		}
		body := rest[sep+3:]
		if len(body) < size {
			break
		}
		frames = append(frames, body[:size])
		raw = body[size:]
	}
	return frames
}

func writeMessage(conn *websocket.Conn, method string, params []interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"m": method,
		"p": params,
	})
	if err != nil {
		return err
	}
	return writeFrame(conn, string(payload))
}

func writeFrame(conn *websocket.Conn, body string) error {
	framed := fmt.Sprintf("~m~%d~m~%s", len(body), body)
	return conn.WriteMessage(websocket.TextMessage, []byte(framed))
}

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyz"

func chartSession() string {
	b := make([]byte, 12)
	for i := range b {
		b[i] = sessionAlphabet[rand.Intn(len(sessionAlphabet))]
	}
	return "cs_" + string(b)
}
