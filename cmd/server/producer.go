package main

import (
	"fmt"

	"relay/pkg/broker"
	"relay/pkg/config"
	"relay/pkg/handlers"
	"relay/pkg/log"
	"relay/pkg/server"

	"github.com/spf13/cobra"
)

var producerCmd = &cobra.Command{
	Use:   "producer",
	Short: "Accept orders over HTTP and publish notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		logger := log.WithComponent("producer")

		ctx, stop := signalContext()
		defer stop()

		bus, err := broker.New(ctx, cfg.Bus)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer bus.Close()

		pub := broker.NewPublisher(bus, bus.Topic(), cfg.Publish)

		app := server.NewApp("producer", cfg.CORS)
		handlers.RegisterProducer(app, handlers.NewOrders(pub))

		logger.Info().
			Int("port", cfg.Producer.Port).
			Str("topic", bus.Topic()).
			Int("max_attempts", cfg.Publish.MaxAttempts).
			Msg("producer listening")

		if err := serve(ctx, app, cfg.Producer.Port); err != nil {
			return err
		}
		logger.Info().Msg("producer stopped")
		return nil
	},
}

func init() {
	producerCmd.Flags().Int("port", config.DefaultProducerPort, "HTTP port for the order endpoint")
	producerCmd.Flags().Int("max-attempts", config.DefaultPublishMaxAttempts, "Total publish attempts per event")
	bindFlag(config.KeyProducerPort, producerCmd.Flags().Lookup("port"))
	bindFlag(config.KeyPublishMaxAttempts, producerCmd.Flags().Lookup("max-attempts"))
}
