package cli

import (
	"github.com/spf13/cobra"

	"agentdash/internal/app"
)

var (
	exportAsset     string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportRefresh   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an asset's 7-day sparkline as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			AssetID:   exportAsset,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
			Refresh:   exportRefresh,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportAsset, "asset", "", "Asset id, e.g. bitcoin")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().BoolVar(&exportRefresh, "refresh", false, "Fetch even if the cached snapshot is fresh")
}
