package cli

import (
	"github.com/spf13/cobra"
)

var favoriteCmd = &cobra.Command{
	Use:   "favorite <asset>",
	Short: "Toggle an asset in favorites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ToggleFavorite(cmd.Context(), args[0])
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <asset>",
	Short: "Toggle an asset in the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ToggleWatchlist(cmd.Context(), args[0])
	},
}

var themeCmd = &cobra.Command{
	Use:       "theme <dark|light>",
	Short:     "Set the UI theme",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"dark", "light"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetTheme(cmd.Context(), args[0])
	},
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show stored preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowPrefs(cmd.Context())
	},
}
