// pkg/telemetry/otel_test.go
package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "info", DevMode: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// Валидация конфигурации: все три обязательных поля.
func TestInitTracer_RejectsIncompleteConfig(t *testing.T) {
	log := newTestLogger(t)
	cases := []struct {
		name string
		cfg  Config
	}{
		{"noEndpoint", Config{ServiceName: "kafka-file-producer", ServiceVersion: "v1.0.0"}},
		{"noServiceName", Config{Endpoint: "collector:4317", ServiceVersion: "v1.0.0"}},
		{"noServiceVersion", Config{Endpoint: "collector:4317", ServiceName: "kafka-file-producer"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := InitTracer(context.Background(), c.cfg, log); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

// Дефолты и нормализация SamplerRatio.
func TestApplyDefaults(t *testing.T) {
	cases := []struct {
		name      string
		ratio     float64
		wantRatio float64
	}{
		{"zeroRatio", 0, 1.0},
		{"negativeRatio", -0.5, 1.0},
		{"tooLarge", 1.5, 1.0},
		{"validRatio", 0.25, 0.25},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Config{
				Endpoint:       "collector:4317",
				ServiceName:    "kafka-file-producer",
				ServiceVersion: "v1.0.0",
				SamplerRatio:   c.ratio,
			}
			applyDefaults(&cfg)
			if cfg.SamplerRatio != c.wantRatio {
				t.Errorf("SamplerRatio = %v; want %v", cfg.SamplerRatio, c.wantRatio)
			}
			if cfg.Timeout != 5*time.Second {
				t.Errorf("Timeout = %v; want 5s", cfg.Timeout)
			}
			if cfg.ReconnectPeriod != 5*time.Second {
				t.Errorf("ReconnectPeriod = %v; want 5s", cfg.ReconnectPeriod)
			}
		})
	}
}

// Явно заданные таймауты не перетираются дефолтами.
func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Endpoint:        "collector:4317",
		ServiceName:     "kafka-file-producer",
		ServiceVersion:  "v1.0.0",
		Timeout:         2 * time.Second,
		ReconnectPeriod: 30 * time.Second,
		SamplerRatio:    0.1,
	}
	applyDefaults(&cfg)
	if cfg.Timeout != 2*time.Second || cfg.ReconnectPeriod != 30*time.Second || cfg.SamplerRatio != 0.1 {
		t.Errorf("explicit values must survive applyDefaults: %+v", cfg)
	}
}

// Полный цикл init → shutdown: экспортёр gRPC ленивый, поэтому инициализация
// проходит без живого коллектора.
func TestInitTracer_InitAndShutdown(t *testing.T) {
	log := newTestLogger(t)
	shutdown, err := InitTracer(context.Background(), Config{
		Endpoint:       "localhost:4317",
		ServiceName:    "kafka-file-producer",
		ServiceVersion: "v1.0.0",
		Insecure:       true,
		SamplerRatio:   0.5,
	}, log)
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
