// internal/app/producer.go
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/kafka-file-producer/internal/config"
	httpserver "github.com/YaganovValera/kafka-file-producer/internal/http"
	"github.com/YaganovValera/kafka-file-producer/internal/metrics"
	"github.com/YaganovValera/kafka-file-producer/internal/poller"
	"github.com/YaganovValera/kafka-file-producer/internal/scanner"
	"github.com/YaganovValera/kafka-file-producer/internal/translate"
	"github.com/YaganovValera/kafka-file-producer/pkg/kafka"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
	"github.com/YaganovValera/kafka-file-producer/pkg/telemetry"
)

// Run собирает компоненты и ведёт основной цикл до отмены ctx
// (continuous) либо завершения единственного прохода (run-once).
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	metrics.Register(nil)

	// Трассировка опциональна: тестовый инструмент часто живёт без коллектора.
	if cfg.Telemetry.Enabled {
		shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.ServiceName,
			ServiceVersion: cfg.ServiceVersion,
			Insecure:       cfg.Telemetry.Insecure,
		}, log)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer shutdownSafe(ctx, "telemetry", func() error { return shutdownTracer(ctx) }, log)
	}

	// Kafka Publisher: соединение устанавливается лениво при первом Publish,
	// Close гарантированно сбрасывает in-flight отправки на любом пути выхода.
	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers:         cfg.Kafka.Brokers,
		ClientID:        cfg.Kafka.ClientID,
		RequiredAcks:    cfg.Kafka.Acks,
		Timeout:         cfg.Kafka.Timeout,
		Compression:     cfg.Kafka.Compression,
		MaxOpenRequests: cfg.Kafka.MaxOpenRequests,
		FlushBytes:      cfg.Kafka.FlushBytes,
		FlushFrequency:  cfg.Kafka.FlushFrequency,
		SASL:            cfg.Kafka.SASL,
		TLS:             cfg.Kafka.TLS,
		Backoff:         cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka publisher init: %w", err)
	}
	defer shutdownSafe(ctx, "kafka-publisher", pub.Close, log)

	sc := scanner.New(cfg.Source.Directory, log)
	tr := translate.New(cfg.Kafka.Topic, cfg.Source.Structured, log)
	pl := poller.New(poller.Config{
		PollInterval: cfg.Source.PollInterval,
		RunOnce:      cfg.Source.RunOnce,
		DeleteFiles:  cfg.Source.DeleteFiles,
	}, sc, tr, pub, log)

	// HTTP-сервер: /metrics, /healthz, /readyz (готовность = Ping брокера).
	readiness := func() error { return pub.Ping(ctx) }
	httpSrv := httpserver.NewServer(httpserver.Config{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		MetricsPath:     cfg.HTTP.MetricsPath,
		HealthzPath:     cfg.HTTP.HealthzPath,
		ReadyzPath:      cfg.HTTP.ReadyzPath,
	}, readiness, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return httpSrv.Start(runCtx) })
	g.Go(func() error {
		// Завершение поллера (run-once) гасит и HTTP-сервер.
		defer cancel()
		return pl.Run(runCtx)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Infow("producer stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// shutdownSafe оборачивает вызов Close()/Shutdown() с логированием.
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Infow(name + ": shutting down")
	if err := fn(); err != nil {
		log.WithContext(ctx).Errorw(name+": shutdown error", "error", err)
	} else {
		log.WithContext(ctx).Infow(name + ": shutdown complete")
	}
}
