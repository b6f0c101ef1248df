// pkg/kafka/producer_test.go
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/kafka-file-producer/pkg/backoff"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

// Проверяем applyDefaults и validate.
func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    Config
		wantErr  bool
		wantAcks string
		wantComp string
	}{
		{"empty", Config{}, true, "all", "none"},
		{"noBrokers", Config{Compression: "gzip"}, true, "all", "gzip"},
		{"ok", Config{Brokers: []string{"b1"}}, false, "all", "none"},
		{"saslNoCreds", Config{Brokers: []string{"b1"}, SASL: SASLConfig{Enabled: true}}, true, "all", "none"},
		{"saslBadMechanism", Config{Brokers: []string{"b1"}, SASL: SASLConfig{Enabled: true, Mechanism: "scram-sha-256", Username: "u", Password: "p"}}, true, "all", "none"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.applyDefaults()
			if got := cfg.RequiredAcks; got != c.wantAcks {
				t.Errorf("RequiredAcks = %q; want %q", got, c.wantAcks)
			}
			if got := cfg.Compression; got != c.wantComp {
				t.Errorf("Compression = %q; want %q", got, c.wantComp)
			}
			err := cfg.validate()
			if (err != nil) != c.wantErr {
				t.Errorf("validate() error = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

// Проверяем buildSaramaConfig для acks.
func TestBuildSaramaConfig_RequiredAcks(t *testing.T) {
	cases := []struct {
		acks    string
		wantErr bool
	}{
		{"all", false}, {"leader", false}, {"none", false},
		{"ALL", false}, {"LeAdEr", false}, {"invalid", true},
	}
	for _, c := range cases {
		t.Run(c.acks, func(t *testing.T) {
			cfg := Config{RequiredAcks: c.acks, Compression: "none", Brokers: []string{"x"}, MaxOpenRequests: 1}
			sc, err := buildSaramaConfig(cfg)
			if c.wantErr {
				if err == nil {
					t.Errorf("buildSaramaConfig(%q) expected error", c.acks)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch strings.ToLower(c.acks) {
			case "all":
				if sc.Producer.RequiredAcks != sarama.WaitForAll {
					t.Errorf("got %v; want %v", sc.Producer.RequiredAcks, sarama.WaitForAll)
				}
				if !sc.Producer.Idempotent {
					t.Error("expected idempotent producer for acks=all")
				}
			case "leader":
				if sc.Producer.RequiredAcks != sarama.WaitForLocal {
					t.Errorf("got %v; want %v", sc.Producer.RequiredAcks, sarama.WaitForLocal)
				}
				if sc.Producer.Idempotent {
					t.Error("idempotence must be off for acks=leader")
				}
			case "none":
				if sc.Producer.RequiredAcks != sarama.NoResponse {
					t.Errorf("got %v; want %v", sc.Producer.RequiredAcks, sarama.NoResponse)
				}
				if sc.Producer.Idempotent {
					t.Error("idempotence must be off for acks=none")
				}
			}
		})
	}
}

// Проверяем buildSaramaConfig для Compression.
func TestBuildSaramaConfig_Compression(t *testing.T) {
	cases := []struct {
		comp    string
		wantErr bool
	}{
		{"none", false}, {"gzip", false}, {"snappy", false},
		{"lz4", false}, {"zstd", false}, {"NONE", false},
		{"bogus", true},
	}
	for _, c := range cases {
		t.Run(c.comp, func(t *testing.T) {
			cfg := Config{RequiredAcks: "all", Compression: c.comp, Brokers: []string{"x"}}
			_, err := buildSaramaConfig(cfg)
			if c.wantErr {
				if err == nil {
					t.Errorf("buildSaramaConfig comp=%q expected error", c.comp)
				}
			} else if err != nil {
				t.Fatalf("unexpected error for %q: %v", c.comp, err)
			}
		})
	}
}

// Проверяем классификацию ошибок отправки.
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want OutcomeClass
	}{
		{"unknownTopic", sarama.ErrUnknownTopicOrPartition, Fatal},
		{"messageTooLarge", sarama.ErrMessageSizeTooLarge, Fatal},
		{"topicAuth", sarama.ErrTopicAuthorizationFailed, Fatal},
		{"saslAuth", sarama.ErrSASLAuthenticationFailed, Fatal},
		{"invalidAcks", sarama.ErrInvalidRequiredAcks, Fatal},
		{"notEnoughReplicas", sarama.ErrNotEnoughReplicas, Retryable},
		{"leaderNotAvailable", sarama.ErrLeaderNotAvailable, Retryable},
		{"requestTimedOut", sarama.ErrRequestTimedOut, Retryable},
		{"wrappedKError", fmt.Errorf("send: %w", sarama.ErrMessageSizeTooLarge), Fatal},
		{"genericError", errors.New("boom"), Retryable},
		{"outOfBrokers", sarama.ErrOutOfBrokers, Retryable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := classify(c.err)
			if out.Class != c.want {
				t.Errorf("classify(%v).Class = %v; want %v", c.err, out.Class, c.want)
			}
			if out.Err == nil {
				t.Error("classify must preserve the original error")
			}
		})
	}
}

func newTestPublisher(t *testing.T, mockProd sarama.SyncProducer) *publisher {
	t.Helper()
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	return &publisher{
		cfg:       Config{Brokers: []string{"b1"}},
		sc:        sarama.NewConfig(),
		log:       log,
		prod:      mockProd,
		connected: true,
	}
}

// Успешная отправка возвращает Success с partition/offset.
func TestPublish_SuccessOutcome(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndSucceed()

	p := newTestPublisher(t, mockProd)
	out, err := p.Publish(context.Background(), &Record{
		Topic: "t", Key: []byte("k"), Value: []byte("v"),
		Headers: []Header{{Key: "h1", Value: []byte("x")}},
	})
	if err != nil {
		t.Fatalf("unexpected process-fatal error: %v", err)
	}
	if out.Class != Success {
		t.Errorf("Class = %v; want Success", out.Class)
	}
	if out.Err != nil {
		t.Errorf("Err = %v; want nil", out.Err)
	}
}

// Фатальная ошибка брокера даёт Fatal, но не ошибку процесса.
func TestPublish_FatalOutcome(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrMessageSizeTooLarge)

	p := newTestPublisher(t, mockProd)
	out, err := p.Publish(context.Background(), &Record{Topic: "t", Value: []byte("v")})
	if err != nil {
		t.Fatalf("unexpected process-fatal error: %v", err)
	}
	if out.Class != Fatal {
		t.Errorf("Class = %v; want Fatal", out.Class)
	}
}

// Транзиентная ошибка даёт Retryable и сохраняет соединение.
func TestPublish_RetryableOutcome(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)

	p := newTestPublisher(t, mockProd)
	out, err := p.Publish(context.Background(), &Record{Topic: "t", Value: []byte("v")})
	if err != nil {
		t.Fatalf("unexpected process-fatal error: %v", err)
	}
	if out.Class != Retryable {
		t.Errorf("Class = %v; want Retryable", out.Class)
	}
	if p.prod == nil {
		t.Error("producer must be kept for non-connection errors")
	}
}

// Потеря соединения сбрасывает кэшированный продьюсер для ленивого reconnect.
func TestPublish_ConnectionLostDropsProducer(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newTestPublisher(t, mockProd)
	out, err := p.Publish(context.Background(), &Record{Topic: "t", Value: []byte("v")})
	if err != nil {
		t.Fatalf("unexpected process-fatal error: %v", err)
	}
	if out.Class != Retryable {
		t.Errorf("Class = %v; want Retryable", out.Class)
	}
	if p.prod != nil {
		t.Error("producer must be dropped after connection loss")
	}
}

// Ping без соединения возвращает ошибку.
func TestPing_NotConnected(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	p := &publisher{cfg: Config{Brokers: []string{"b1"}}, sc: sarama.NewConfig(), log: log}
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected error for Ping without connection")
	}
}

// Close без соединения — no-op.
func TestClose_NeverConnected(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	p := &publisher{cfg: Config{Brokers: []string{"b1"}}, sc: sarama.NewConfig(), log: log}
	if err := p.Close(); err != nil {
		t.Errorf("Close on unconnected publisher: %v", err)
	}
}

// Проверяем, что NewPublisher отрабатывает ошибку валидации до Sarama.
func TestNewPublisher_InvalidConfig(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	if _, err := NewPublisher(Config{}, log); err == nil {
		t.Fatal("Expected error for empty Config, got nil")
	}
}

// Проверяем, что NewPublisher отказывает на неверном RequiredAcks.
func TestNewPublisher_InvalidAcks(t *testing.T) {
	cfg := Config{
		Brokers:      []string{"dummy"},
		RequiredAcks: "invalid",
		Compression:  "none",
	}
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	if _, err := NewPublisher(cfg, log); err == nil {
		t.Fatal("Expected error for invalid RequiredAcks, got nil")
	}
}

// Первый Publish без достижимого брокера — фатальная ошибка процесса.
func TestPublish_NeverConnectedIsProcessFatal(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "debug", DevMode: true})
	cfg := Config{
		Brokers: []string{"127.0.0.1:1"},
		Backoff: backoff.Config{
			InitialInterval: time.Millisecond,
			Multiplier:      1,
			MaxElapsedTime:  10 * time.Millisecond,
		},
	}
	pub, err := NewPublisher(cfg, log)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	_, err = pub.Publish(context.Background(), &Record{Topic: "t", Value: []byte("v")})
	if err == nil {
		t.Fatal("expected process-fatal error when the broker was never reachable")
	}
}
