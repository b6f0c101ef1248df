// pkg/kafka/producer.go
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/YaganovValera/kafka-file-producer/pkg/backoff"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

var tracer = otel.Tracer("kafka-publisher")

/*
   --------------------------------------------------------------------------
   CONFIGURATION
   --------------------------------------------------------------------------
*/

// SASLConfig хранит настройки SASL-аутентификации (только PLAIN).
type SASLConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mechanism string `mapstructure:"mechanism"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig хранит настройки TLS-соединения с брокерами.
type TLSConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config groups all tunables for a Kafka Sync-producer.
//
// Zero values are replaced with sane defaults by applyDefaults().
type Config struct {
	// Brokers — список адресов Kafka-брокеров.
	Brokers []string

	// ClientID идентифицирует продьюсер перед брокерами.
	ClientID string

	// RequiredAcks определяет стратегию подтверждения брокеров:
	//   "all" (дефолт) | "leader" | "none".
	RequiredAcks string

	// Timeout — максимальное время ожидания ack от кластера.
	Timeout time.Duration

	// Compression указывает алгоритм сжатия:
	//   "none" (дефолт), "gzip", "snappy", "lz4", "zstd".
	Compression string

	// MaxOpenRequests — число батчей на соединении без ответа брокера.
	MaxOpenRequests int

	// FlushBytes — пороговый размер буфера продьюсера в байтах. Ноль → disable.
	FlushBytes int

	// FlushFrequency — периодическое «смывание» буфера продьюсера. Ноль → disable.
	FlushFrequency time.Duration

	// SASL и TLS — настройки безопасного подключения.
	SASL SASLConfig
	TLS  TLSConfig

	// Backoff описывает стратегию ретраев подключения.
	Backoff backoff.Config
}

// applyDefaults заполняет zero-полям безопасные дефолты.
func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "kafka-file-producer"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
	if c.MaxOpenRequests <= 0 {
		c.MaxOpenRequests = 1
	}
	if c.SASL.Enabled && c.SASL.Mechanism == "" {
		c.SASL.Mechanism = "plain"
	}
}

// validate выполняет быстрые sanity-checks.
func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka publisher: brokers required")
	}
	if c.SASL.Enabled {
		if !strings.EqualFold(c.SASL.Mechanism, "plain") {
			return fmt.Errorf("kafka publisher: unsupported SASL mechanism %q", c.SASL.Mechanism)
		}
		if c.SASL.Username == "" || c.SASL.Password == "" {
			return fmt.Errorf("kafka publisher: SASL username and password required")
		}
	}
	return nil
}

/*
   --------------------------------------------------------------------------
   PRIVATE HELPERS
   --------------------------------------------------------------------------
*/

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = c.ClientID

	// RequiredAcks
	switch strings.ToLower(c.RequiredAcks) {
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("kafka publisher: invalid RequiredAcks %q", c.RequiredAcks)
	}

	// Producer common settings
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	sc.Net.MaxOpenRequests = c.MaxOpenRequests
	// Идемпотентность требует acks=all и один in-flight батч.
	sc.Producer.Idempotent = sc.Producer.RequiredAcks == sarama.WaitForAll && c.MaxOpenRequests == 1

	// Flush params
	if c.FlushBytes > 0 {
		sc.Producer.Flush.Bytes = c.FlushBytes
	}
	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}

	// Compression
	switch strings.ToLower(c.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("kafka publisher: invalid Compression %q", c.Compression)
	}

	// Security
	if c.SASL.Enabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = c.SASL.Username
		sc.Net.SASL.Password = c.SASL.Password
	}
	if c.TLS.Enabled {
		sc.Net.TLS.Enable = true
	}

	return sc, nil
}

// classify относит ошибку отправки к транзиентным либо фатальным.
// Ошибки конфигурации и протокола повтором не лечатся; всё остальное
// (выборы лидера, недостаток реплик, таймауты, сеть) — транзиентно.
func classify(err error) Outcome {
	var kerr sarama.KError
	if errors.As(err, &kerr) {
		switch kerr {
		case sarama.ErrUnknownTopicOrPartition,
			sarama.ErrInvalidTopic,
			sarama.ErrMessageSizeTooLarge,
			sarama.ErrInvalidRequiredAcks,
			sarama.ErrTopicAuthorizationFailed,
			sarama.ErrClusterAuthorizationFailed,
			sarama.ErrSASLAuthenticationFailed,
			sarama.ErrUnsupportedVersion:
			return Outcome{Class: Fatal, Err: err}
		}
		return Outcome{Class: Retryable, Err: err}
	}
	return Outcome{Class: Retryable, Err: err}
}

// lostConnection сообщает, что ошибка означает потерю соединения и
// кэшированный продьюсер надо сбросить для ленивого переподключения.
func lostConnection(err error) bool {
	if errors.Is(err, sarama.ErrOutOfBrokers) ||
		errors.Is(err, sarama.ErrClosedClient) ||
		errors.Is(err, sarama.ErrNotConnected) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

/*
   --------------------------------------------------------------------------
   PUBLISHER IMPLEMENTATION
   --------------------------------------------------------------------------
*/

type publisher struct {
	cfg Config
	sc  *sarama.Config
	log *logger.Logger

	mu        sync.Mutex
	client    sarama.Client
	prod      sarama.SyncProducer
	connected bool // было ли хоть одно успешное подключение за время жизни процесса
}

// NewPublisher валидирует конфиг и возвращает Publisher.
// Соединение устанавливается лениво, при первом Publish, и переиспользуется.
func NewPublisher(cfg Config, log *logger.Logger) (Publisher, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &publisher{
		cfg: cfg,
		sc:  sc,
		log: log.Named("kafka-publisher"),
	}, nil
}

// connectLocked устанавливает соединение с ретраями. Вызывается под mu.
func (p *publisher) connectLocked(ctx context.Context) error {
	connect := func(ctx context.Context) error {
		client, err := sarama.NewClient(p.cfg.Brokers, p.sc)
		if err != nil {
			return err
		}
		prod, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			_ = client.Close()
			return err
		}
		p.client = client
		p.prod = otelsarama.WrapSyncProducer(p.sc, prod)
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", p.cfg.Brokers)))
	defer span.End()

	if err := backoff.Execute(ctxConn, p.cfg.Backoff, p.log, connect); err != nil {
		span.RecordError(err)
		return err
	}
	p.log.Sugar().Infow("kafka publisher connected", "brokers", p.cfg.Brokers)
	return nil
}

// dropLocked сбрасывает кэшированное соединение. Вызывается под mu.
func (p *publisher) dropLocked() {
	if p.prod != nil {
		_ = p.prod.Close()
		p.prod = nil
	}
	if p.client != nil && !p.client.Closed() {
		_ = p.client.Close()
	}
	p.client = nil
}

// Publish отправляет одну запись и классифицирует результат.
func (p *publisher) Publish(ctx context.Context, rec *Record) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(attribute.String("topic", rec.Topic)))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prod == nil {
		if err := p.connectLocked(ctx); err != nil {
			span.RecordError(err)
			if !p.connected {
				// Соединение не удалось установить ни разу — фатально для процесса.
				return Outcome{}, fmt.Errorf("kafka publisher: connect: %w", err)
			}
			p.log.Sugar().Warnw("kafka publisher reconnect failed", "error", err)
			return Outcome{Class: Retryable, Err: err}, nil
		}
		p.connected = true
	}

	msg := &sarama.ProducerMessage{
		Topic: rec.Topic,
		Value: sarama.ByteEncoder(rec.Value),
	}
	if rec.Key != nil {
		msg.Key = sarama.ByteEncoder(rec.Key)
	}
	for _, h := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: h.Value})
	}

	partition, offset, err := p.prod.SendMessage(msg)
	if err == nil {
		p.log.Sugar().Debugw("publish confirmed",
			"topic", rec.Topic, "partition", partition, "offset", offset)
		return Outcome{Class: Success, Partition: partition, Offset: offset}, nil
	}

	span.RecordError(err)
	out := classify(err)
	if lostConnection(err) {
		// Следующий Publish переподключится лениво.
		p.dropLocked()
	}
	p.log.Sugar().Warnw("publish failed",
		"topic", rec.Topic, "class", out.Class.String(), "error", err)
	return out, nil
}

// Ping обновляет метаданные клиента, проверяя доступность кластера.
func (p *publisher) Ping(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Ping")
	defer span.End()

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return fmt.Errorf("kafka publisher: not connected")
	}
	if err := client.RefreshMetadata(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Close сбрасывает незавершённые отправки и закрывает продьюсер и клиент.
func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.prod == nil && p.client == nil {
		return nil
	}
	if p.prod != nil {
		// SyncProducer.Close дожидается всех in-flight отправок.
		if err := p.prod.Close(); err != nil {
			p.log.Sugar().Errorw("publisher close failed", "error", err)
			p.prod = nil
			return err
		}
		p.prod = nil
	}
	if p.client != nil && !p.client.Closed() {
		if err := p.client.Close(); err != nil {
			p.log.Sugar().Errorw("client close failed", "error", err)
			p.client = nil
			return err
		}
	}
	p.client = nil
	p.log.Sugar().Infow("kafka publisher closed")
	return nil
}
