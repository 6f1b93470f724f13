package market

import "github.com/shopspring/decimal"

// Stats summarises the listed assets of a snapshot.
type Stats struct {
	TotalMarketCap   decimal.Decimal `json:"total_market_cap"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	AverageChange24h decimal.Decimal `json:"average_change_24h"`
	Count            int             `json:"count"`
}

// Aggregate computes Stats over the non-synthetic assets. Null values count
// as zero.
func Aggregate(assets []Asset) Stats {
	stats := Stats{
		TotalMarketCap:   decimal.Zero,
		TotalVolume:      decimal.Zero,
		AverageChange24h: decimal.Zero,
	}

	changeSum := decimal.Zero
	for _, a := range Listed(assets) {
		stats.TotalMarketCap = stats.TotalMarketCap.Add(valueOrZero(a.MarketCap))
		stats.TotalVolume = stats.TotalVolume.Add(valueOrZero(a.TotalVolume))
		changeSum = changeSum.Add(valueOrZero(a.Change24h))
		stats.Count++
	}

	if stats.Count > 0 {
		stats.AverageChange24h = changeSum.Div(decimal.NewFromInt(int64(stats.Count)))
	}
	return stats
}
