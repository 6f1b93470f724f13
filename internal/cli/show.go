package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentdash/internal/app"
)

var (
	showSearch    string
	showCategory  string
	showFavorites bool
	showSort      string
	showLimit     int
	showRefresh   bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the filtered and sorted market view",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}

		opts := app.ShowOptions{
			Search:        showSearch,
			Category:      showCategory,
			FavoritesOnly: showFavorites,
			Sort:          showSort,
			Limit:         showLimit,
			Refresh:       showRefresh,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSearch, "search", "", "Case-insensitive match on name or symbol")
	showCmd.Flags().StringVar(&showCategory, "category", "all", "all, gainers, losers or watchlist")
	showCmd.Flags().BoolVar(&showFavorites, "favorites", false, "Only show favorite assets")
	showCmd.Flags().StringVar(&showSort, "sort", "rank", "rank, price, change, volume or name")
	showCmd.Flags().IntVar(&showLimit, "limit", 0, "Maximum rows to display (0 shows all)")
	showCmd.Flags().BoolVar(&showRefresh, "refresh", false, "Fetch even if the cached snapshot is fresh")
}
