package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Asset is one cryptocurrency's market data at a point in time.
type Asset struct {
	ID                string              `json:"id"`
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	Image             string              `json:"image"`
	CurrentPrice      decimal.NullDecimal `json:"current_price"`
	MarketCapRank     *int                `json:"market_cap_rank"`
	MarketCap         decimal.NullDecimal `json:"market_cap"`
	Change1h          decimal.NullDecimal `json:"change_1h"`
	Change24h         decimal.NullDecimal `json:"change_24h"`
	Change7d          decimal.NullDecimal `json:"change_7d"`
	Change30d         decimal.NullDecimal `json:"change_30d"`
	TotalVolume       decimal.NullDecimal `json:"total_volume"`
	CirculatingSupply decimal.NullDecimal `json:"circulating_supply"`
	TotalSupply       decimal.NullDecimal `json:"total_supply"`
	MaxSupply         decimal.NullDecimal `json:"max_supply"`
	Sparkline         []float64           `json:"sparkline_7d"`
	ComingSoon        bool                `json:"coming_soon"`
	ContractAddress   string              `json:"contract_address,omitempty"`
}

// Snapshot is a complete fetched set of assets plus capture time.
type Snapshot struct {
	Assets     []Asset   `json:"assets"`
	CapturedAt time.Time `json:"captured_at"`
}

// Fetcher retrieves a fresh market snapshot.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (Snapshot, error)
}

// TokenInfo identifies the project token that is not listed yet.
type TokenInfo struct {
	ID              string
	Symbol          string
	Name            string
	Image           string
	ContractAddress string
}

// NewSynthetic builds the pinned "coming soon" record. Every numeric market
// field stays null.
func NewSynthetic(info TokenInfo) Asset {
	asset := Asset{
		ID:         info.ID,
		Symbol:     info.Symbol,
		Name:       info.Name,
		Image:      info.Image,
		ComingSoon: true,
	}
	if info.ContractAddress != "" && common.IsHexAddress(info.ContractAddress) {
		asset.ContractAddress = common.HexToAddress(info.ContractAddress).Hex()
	}
	return asset
}

// Find returns the asset with the given id.
func (s Snapshot) Find(id string) (Asset, bool) {
	for _, a := range s.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// Listed returns the non-synthetic subset in snapshot order.
func Listed(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if !a.ComingSoon {
			out = append(out, a)
		}
	}
	return out
}

func valueOrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func rankOrDefault(rank *int) int {
	if rank == nil {
		return missingRank
	}
	return *rank
}
