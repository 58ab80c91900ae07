package main

import (
	"fmt"

	"relay/pkg/broker"
	"relay/pkg/config"
	"relay/pkg/envelope"
	"relay/pkg/handlers"
	"relay/pkg/hub"
	"relay/pkg/log"
	"relay/pkg/server"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Push bus notifications to connected websocket users",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		logger := log.WithComponent("gateway")

		ctx, stop := signalContext()
		defer stop()

		bus, err := broker.New(ctx, cfg.Bus)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer bus.Close()

		h := hub.New(hub.Config{
			SendBuffer: cfg.Gateway.SendBuffer,
			Router: hub.RouterConfig{
				DedupTTL:  cfg.Gateway.DedupTTL,
				DedupSize: cfg.Gateway.DedupSize,
			},
		})

		sub := broker.NewSubscriber(bus, func(e envelope.Event) { h.Route(e) })
		sub.SetHealthInterval(cfg.Bus.HealthInterval)
		subDone := make(chan error, 1)
		go func() {
			subDone <- sub.Run(ctx)
		}()

		app := server.NewApp("gateway", cfg.CORS)
		handlers.RegisterGateway(app, h, cfg.Gateway.JWTSecret)

		logger.Info().
			Int("port", cfg.Gateway.Port).
			Str("topic", bus.Topic()).
			Bool("jwt", cfg.Gateway.JWTSecret != "").
			Msg("gateway listening")

		serveErr := serve(ctx, app, cfg.Gateway.Port)
		stop()
		if err := <-subDone; err != nil {
			logger.Error().Err(err).Msg("subscriber stopped")
		}
		if serveErr != nil {
			return serveErr
		}
		logger.Info().Msg("gateway stopped")
		return nil
	},
}

func init() {
	gatewayCmd.Flags().Int("port", config.DefaultGatewayPort, "HTTP port for websocket clients")
	gatewayCmd.Flags().String("jwt-secret", "", "Require HMAC JWTs for websocket identity")
	bindFlag(config.KeyGatewayPort, gatewayCmd.Flags().Lookup("port"))
	bindFlag(config.KeyJWTSecret, gatewayCmd.Flags().Lookup("jwt-secret"))
}
