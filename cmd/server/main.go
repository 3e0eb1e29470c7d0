// Command server is the process entrypoint. It is deliberately thin: it
// parses configuration, builds the logger, and hands everything else to
// the supervisor, which is the sole initializer of the rest of the
// system.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertrader/internal/config"
	"papertrader/internal/supervisor"
	"papertrader/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	sup := supervisor.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Boot(ctx); err != nil {
		utils.L().Fatal("boot failed", utils.Err(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.L().Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sup.Shutdown(shutdownCtx); err != nil {
		utils.L().Error("shutdown error", utils.Err(err))
		os.Exit(1)
	}

	utils.L().Info("shutdown complete")
}
