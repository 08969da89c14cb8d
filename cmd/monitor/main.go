// Command monitor follows the server event feed and logs every accepted event.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexus-iot/server/internal/client"
	"github.com/nexus-iot/server/internal/config"
	"github.com/nexus-iot/server/internal/logging"
	"github.com/nexus-iot/server/internal/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	if len(os.Args) > 1 && os.Args[1] != "" {
		cfg.WSURL = os.Args[1]
	}

	channel := client.New(client.Options{
		URL:       cfg.WSURL,
		BaseDelay: cfg.ReconnectBaseDelay,
		MaxDelay:  cfg.ReconnectMaxDelay,
		OnEvent: func(event model.Event) {
			payload, _ := json.Marshal(event.Payload)
			logger.Info("event received",
				"type", event.Type,
				"timestamp", event.Timestamp,
				"payload", json.RawMessage(payload),
			)
		},
		OnState: func(state client.State) {
			logger.Info("connection state", "state", state)
		},
	}, logger)

	logger.Info("monitor starting", "url", cfg.WSURL)
	channel.Start(ctx)
	<-ctx.Done()
	if err := channel.Close(); err != nil {
		logger.Warn("channel close failed", "err", err)
	}
	logger.Info("monitor stopped")
}
