package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	marketsPath     = "/coins/markets"
	changeHorizons  = "1h,24h,7d,30d"
	defaultBaseURL  = "https://api.coingecko.com/api/v3"
	defaultCurrency = "usd"
	demoKeyHeader   = "x-cg-demo-api-key"
)

// ClientOptions parameterise the market-data client.
type ClientOptions struct {
	BaseURL   string
	APIKey    string
	Currency  string
	AssetIDs  []string
	Timeout   time.Duration
	UserAgent string
	Token     TokenInfo
}

// Client fetches market data for a fixed asset list in a single request.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewClient constructs a market-data client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "market_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchSnapshot requests all configured assets and prepends the synthetic record.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	if len(c.opts.AssetIDs) == 0 {
		return Snapshot{}, errors.New("no asset ids configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create market request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.APIKey != "" {
		req.Header.Set(demoKeyHeader, c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("send market request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read market response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, parseHTTPError(resp.StatusCode, payload)
	}

	var rows []coinMarket
	if err := json.Unmarshal(payload, &rows); err != nil {
		return Snapshot{}, fmt.Errorf("decode market response: %w", err)
	}

	assets := make([]Asset, 0, len(rows)+1)
	assets = append(assets, NewSynthetic(c.opts.Token))
	for _, row := range rows {
		if row.ID == c.opts.Token.ID {
			continue
		}
		assets = append(assets, row.toAsset())
	}

	c.logger.Debug().Int("assets", len(rows)).Msg("market snapshot fetched")
	return Snapshot{Assets: assets, CapturedAt: c.now().UTC()}, nil
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("vs_currency", c.opts.Currency)
	q.Set("ids", strings.Join(c.opts.AssetIDs, ","))
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(len(c.opts.AssetIDs)))
	q.Set("page", "1")
	q.Set("sparkline", "true")
	q.Set("price_change_percentage", changeHorizons)
	return c.baseURL + marketsPath + "?" + q.Encode()
}

// coinMarket mirrors one element of the /coins/markets response.
type coinMarket struct {
	ID                string              `json:"id"`
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	Image             string              `json:"image"`
	CurrentPrice      decimal.NullDecimal `json:"current_price"`
	MarketCap         decimal.NullDecimal `json:"market_cap"`
	MarketCapRank     *int                `json:"market_cap_rank"`
	TotalVolume       decimal.NullDecimal `json:"total_volume"`
	CirculatingSupply decimal.NullDecimal `json:"circulating_supply"`
	TotalSupply       decimal.NullDecimal `json:"total_supply"`
	MaxSupply         decimal.NullDecimal `json:"max_supply"`
	Change24h         decimal.NullDecimal `json:"price_change_percentage_24h"`
	Change1hCcy       decimal.NullDecimal `json:"price_change_percentage_1h_in_currency"`
	Change24hCcy      decimal.NullDecimal `json:"price_change_percentage_24h_in_currency"`
	Change7dCcy       decimal.NullDecimal `json:"price_change_percentage_7d_in_currency"`
	Change30dCcy      decimal.NullDecimal `json:"price_change_percentage_30d_in_currency"`
	Sparkline         *struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d"`
}

func (m coinMarket) toAsset() Asset {
	change24h := m.Change24h
	if !change24h.Valid {
		change24h = m.Change24hCcy
	}

	asset := Asset{
		ID:                m.ID,
		Symbol:            m.Symbol,
		Name:              m.Name,
		Image:             m.Image,
		CurrentPrice:      m.CurrentPrice,
		MarketCapRank:     m.MarketCapRank,
		MarketCap:         m.MarketCap,
		Change1h:          m.Change1hCcy,
		Change24h:         change24h,
		Change7d:          m.Change7dCcy,
		Change30d:         m.Change30dCcy,
		TotalVolume:       m.TotalVolume,
		CirculatingSupply: m.CirculatingSupply,
		TotalSupply:       m.TotalSupply,
		MaxSupply:         m.MaxSupply,
	}
	if m.Sparkline != nil {
		asset.Sparkline = m.Sparkline.Price
	}
	return asset
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("market api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("market api error (%d)", status)
}

var _ Fetcher = (*Client)(nil)
