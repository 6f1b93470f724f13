package main

import (
	"github.com/shopspring/decimal"

	"agentdash/internal/cli"
)

func main() {
	// API consumers expect numeric JSON, matching the upstream market feed.
	decimal.MarshalJSONWithoutQuotes = true
	cli.Execute()
}
