package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay/pkg/config"
	"relay/pkg/log"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

const shutdownTimeout = 5 * time.Second

var v = config.New()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Order notification relay",
	Long: `relay announces new orders to the users who placed them.

The producer accepts orders over HTTP and publishes an event on the
notification bus. The gateway subscribes to the bus and pushes each event
to the user's live websocket connection, if there is one.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("relay version %s\nCommit: %s\n", Version, Commit))

	flags := rootCmd.PersistentFlags()
	flags.String("redis-url", config.DefaultRedisURL, "Redis URL of the notification bus")
	flags.String("topic", config.DefaultTopic, "Bus topic carrying notifications")
	flags.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON instead of console text")
	bindFlag(config.KeyRedisURL, flags.Lookup("redis-url"))
	bindFlag(config.KeyTopic, flags.Lookup("topic"))
	bindFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	bindFlag(config.KeyLogJSON, flags.Lookup("log-json"))

	rootCmd.AddCommand(producerCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(listenCmd)
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// setup loads the configuration and initializes logging.
func setup() (config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serve runs app on port until ctx is cancelled or the listener fails.
func serve(ctx context.Context, app *fiber.App, port int) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf("0.0.0.0:%d", port))
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
