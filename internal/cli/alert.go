package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	alertDirection string
	simulatePrice  float64
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage price alerts",
}

var alertSetCmd = &cobra.Command{
	Use:   "set <asset> <target-price>",
	Short: "Set a one-shot price alert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid target price %q: %w", args[1], err)
		}
		return getApp().SetAlert(cmd.Context(), args[0], target, alertDirection)
	},
}

var alertRemoveCmd = &cobra.Command{
	Use:   "remove <asset>",
	Short: "Remove a price alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveAlert(cmd.Context(), args[0])
	},
}

var alertSimulateCmd = &cobra.Command{
	Use:   "simulate <asset>",
	Short: "模拟价格并演练告警通道",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price 必须大于 0")
		}
		return getApp().SimulateAlert(cmd.Context(), args[0], decimal.NewFromFloat(simulatePrice))
	},
}

func init() {
	alertSetCmd.Flags().StringVar(&alertDirection, "direction", "above", "above or below")
	alertSimulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "模拟的现价 (USD)")

	alertCmd.AddCommand(alertSetCmd)
	alertCmd.AddCommand(alertRemoveCmd)
	alertCmd.AddCommand(alertSimulateCmd)
}
