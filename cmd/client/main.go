package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/cipherroom/internal/client/cli"
	"github.com/cipherroom/internal/client/config"
	"github.com/cipherroom/internal/logging"
)

func main() {

	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(context.Background())
}
