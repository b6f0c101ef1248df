// pkg/telemetry/otel.go
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

// Config хранит настройки OTLP-экспортёра и ресурса сервиса.
type Config struct {
	Endpoint        string        `mapstructure:"otel_endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceVersion  string        `mapstructure:"service_version"`
	Insecure        bool          `mapstructure:"insecure"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ReconnectPeriod time.Duration `mapstructure:"reconnect_period"`
	SamplerRatio    float64       `mapstructure:"sampler_ratio"`
}

// validateConfig выполняет быстрые sanity-checks.
func validateConfig(cfg Config) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint is required")
	}
	if cfg.ServiceName == "" {
		return fmt.Errorf("telemetry: service name is required")
	}
	if cfg.ServiceVersion == "" {
		return fmt.Errorf("telemetry: service version is required")
	}
	return nil
}

// applyDefaults заполняет zero-полям безопасные дефолты.
func applyDefaults(cfg *Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ReconnectPeriod <= 0 {
		cfg.ReconnectPeriod = 5 * time.Second
	}
	if cfg.SamplerRatio <= 0 || cfg.SamplerRatio > 1 {
		cfg.SamplerRatio = 1.0
	}
}

// InitTracer настраивает глобальный TracerProvider с OTLP/gRPC-экспортером.
// Возвращает функцию shutdown, которую нужно вызвать при graceful-shutdown.
func InitTracer(ctx context.Context, cfg Config, log *logger.Logger) (func(context.Context) error, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	// 1) Контекст с таймаутом для создания экспортёра.
	initCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// 2) Настройка экспортёра.
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithReconnectionPeriod(cfg.ReconnectPeriod),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(initCtx, opts...)
	if err != nil {
		log.Sugar().Errorw("telemetry: cannot create OTLP exporter", "error", err)
		return nil, fmt.Errorf("telemetry: cannot create OTLP exporter: %w", err)
	}

	// 3) Ресурс с service.name и service.version.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		log.Sugar().Errorw("telemetry: cannot create resource", "error", err)
		return nil, fmt.Errorf("telemetry: cannot create resource: %w", err)
	}

	// 4) TracerProvider с ParentBased sampler и батчевым экспортёром.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerRatio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// 5) Устанавливаем глобально TracerProvider и CompositePropagator.
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Sugar().Infow("telemetry: tracer initialized",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
	)

	// 6) Функция graceful shutdown.
	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Sugar().Errorw("telemetry: tracer shutdown failed", "error", err)
			return err
		}
		log.Sugar().Infow("telemetry: tracer shutdown complete")
		return nil
	}
	return shutdown, nil
}
