package main

import (
	"encoding/json"
	"fmt"
	"os"

	"relay/pkg/config"
	"relay/pkg/hub"
	"relay/pkg/log"

	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to a gateway as a user and print notifications",
	Example: `  relay listen --user 42
  relay listen --user 42 --url ws://gateway:4000/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}
		userID, _ := cmd.Flags().GetString("user")
		gatewayURL, _ := cmd.Flags().GetString("url")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		ctx, stop := signalContext()
		defer stop()

		enc := json.NewEncoder(os.Stdout)
		c := hub.NewClient(gatewayURL, userID)
		c.OnConnect(func() {
			log.Logger.Info().Str("url", gatewayURL).Str("user_id", userID).Msg("connected to gateway")
		})
		c.OnMessage(func(f hub.Frame) {
			if f.Event == hub.EventPong {
				return
			}
			enc.Encode(f)
		})
		return c.Connect(ctx)
	},
}

func init() {
	listenCmd.Flags().String("user", "", "User id to listen as")
	listenCmd.Flags().String("url", fmt.Sprintf("ws://localhost:%d/ws", config.DefaultGatewayPort), "Gateway websocket URL")
}
