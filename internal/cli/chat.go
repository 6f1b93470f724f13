package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"agentdash/internal/app"
)

var (
	chatAsset   string
	chatHistory bool
	chatClear   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to the AI agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ChatOptions{
			Message: strings.TrimSpace(strings.Join(args, " ")),
			AssetID: chatAsset,
			History: chatHistory,
			Clear:   chatClear,
		}
		return getApp().Chat(cmd.Context(), opts)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatAsset, "asset", "", "Asset under discussion; its live metrics are shared with the agent")
	chatCmd.Flags().BoolVar(&chatHistory, "history", false, "Print the stored conversation")
	chatCmd.Flags().BoolVar(&chatClear, "clear", false, "Clear the stored conversation")
}
