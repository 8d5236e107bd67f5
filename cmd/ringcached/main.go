// Command ringcached runs the key-value server.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ringcache/ringcache/internal/server"
	"github.com/ringcache/ringcache/pkg/config"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := config.DefaultConfig()
	srv, err := server.New(cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to construct server", "error", err)
	}
	if err := srv.Listen(); err != nil {
		sugar.Fatalw("failed to bind listening socket", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sugar.Infow("shutting down")
		srv.Close()
		os.Exit(0)
	}()

	if err := srv.Run(); err != nil {
		sugar.Fatalw("event loop exited", "error", err)
	}
}
