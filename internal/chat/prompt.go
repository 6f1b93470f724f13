package chat

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"agentdash/internal/market"
)

const notAvailable = "N/A"

const persona = `You are the AI Web Agent for an upcoming crypto project.
You help visitors understand live market data, compare assets, and learn about the project token.
You can explain price moves, market capitalisation, trading volume and supply figures.
Keep answers short and factual. Never give financial advice or price predictions.`

var printer = message.NewPrinter(language.English)

// BuildSystemPrompt returns the persona, followed by the live metrics of the
// selected asset when one is given and it is listed.
func BuildSystemPrompt(asset *market.Asset) string {
	if asset == nil || asset.ComingSoon {
		return persona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nThe user is currently viewing ")
	b.WriteString(asset.Name)
	if asset.Symbol != "" {
		b.WriteString(" (" + strings.ToUpper(asset.Symbol) + ")")
	}
	b.WriteString(". Live metrics:\n")
	b.WriteString("- Price: " + formatPrice(asset.CurrentPrice) + "\n")
	b.WriteString("- 24h change: " + formatPercent(asset.Change24h) + "\n")
	b.WriteString("- Market cap rank: " + formatRank(asset.MarketCapRank) + "\n")
	b.WriteString("- Market cap: " + formatUSD(asset.MarketCap) + "\n")
	b.WriteString("- 24h volume: " + formatUSD(asset.TotalVolume))
	return b.String()
}

func formatPrice(v decimal.NullDecimal) string {
	if !v.Valid {
		return notAvailable
	}
	if v.Decimal.Abs().LessThan(decimal.NewFromInt(1)) {
		return printer.Sprintf("$%.6f", v.Decimal.InexactFloat64())
	}
	return printer.Sprintf("$%.2f", v.Decimal.InexactFloat64())
}

func formatPercent(v decimal.NullDecimal) string {
	if !v.Valid {
		return notAvailable
	}
	sign := ""
	if v.Decimal.IsPositive() {
		sign = "+"
	}
	return sign + v.Decimal.StringFixed(2) + "%"
}

func formatRank(rank *int) string {
	if rank == nil {
		return notAvailable
	}
	return printer.Sprintf("#%d", *rank)
}

func formatUSD(v decimal.NullDecimal) string {
	if !v.Valid {
		return notAvailable
	}
	return printer.Sprintf("$%d", v.Decimal.Round(0).IntPart())
}
