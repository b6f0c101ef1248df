package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pflag "github.com/spf13/pflag"

	"github.com/YaganovValera/kafka-file-producer/internal/app"
	"github.com/YaganovValera/kafka-file-producer/internal/config"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

func main() {
	// Флаг --config
	configPath := pflag.String("config", "", "path to config file (optional, env vars otherwise)")
	pflag.Parse()

	// 1. Загрузить конфиг
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, DevMode: cfg.Logging.DevMode})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Logging.DevMode {
		cfg.Print()
	}

	log.Sugar().Infow("starting service",
		"service.name", cfg.ServiceName,
		"service.version", cfg.ServiceVersion,
		"topic", cfg.Kafka.Topic,
		"directory", cfg.Source.Directory,
		"run_once", cfg.Source.RunOnce,
		"delete_files", cfg.Source.DeleteFiles,
	)

	// 3. Контекст с отменой по сигналам
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4. Запуск основного приложения
	if err := app.Run(ctx, cfg, log); err != nil {
		log.Sugar().Errorw("application exited with error", "error", err)
		_ = log.Sync()
		os.Exit(1)
	}

	log.Sugar().Infow("shutdown complete")
}
