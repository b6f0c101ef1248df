// internal/poller/poller.go
package poller

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/YaganovValera/kafka-file-producer/internal/metrics"
	"github.com/YaganovValera/kafka-file-producer/internal/scanner"
	"github.com/YaganovValera/kafka-file-producer/internal/translate"
	"github.com/YaganovValera/kafka-file-producer/pkg/kafka"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

var tracer = otel.Tracer("poller")

// Config хранит настройки цикла опроса.
type Config struct {
	PollInterval time.Duration
	RunOnce      bool
	DeleteFiles  bool
}

// Poller — оркестратор конвейера poll → translate → publish → dispose.
// Файлы обрабатываются строго по одному в порядке сканирования: отправка
// предыдущего полностью разрешается до начала следующей.
type Poller struct {
	cfg        Config
	scanner    *scanner.Scanner
	translator *translate.Translator
	publisher  kafka.Publisher
	log        *logger.Logger

	// state — карта path→Snapshot. Принадлежит поллеру и передаётся
	// в Scan по ссылке; мутируется только между отправками.
	state map[string]*scanner.Snapshot
}

// New создаёт Poller.
func New(cfg Config, sc *scanner.Scanner, tr *translate.Translator, pub kafka.Publisher, log *logger.Logger) *Poller {
	return &Poller{
		cfg:        cfg,
		scanner:    sc,
		translator: tr,
		publisher:  pub,
		log:        log.Named("poller"),
		state:      make(map[string]*scanner.Snapshot),
	}
}

// cycleStats агрегирует исходы одного рабочего прохода.
type cycleStats struct {
	published int
	retryable int
	fatal     int
	skipped   int
}

// Run запускает цикл опроса и блокирует до отмены ctx (continuous-режим)
// либо до завершения единственного прохода (run-once).
//
// Ошибка возвращается только при фатальных для процесса условиях:
// нечитаемый каталог, так и не установленное соединение с брокером,
// либо run-once-проход с хотя бы одним фатальным исходом публикации.
func (p *Poller) Run(ctx context.Context) error {
	// Fail fast: бессмысленно гонять циклы по несуществующему каталогу.
	if err := p.scanner.Verify(); err != nil {
		return err
	}

	if p.cfg.RunOnce {
		return p.runOnce(ctx)
	}

	for {
		if _, err := p.runCycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			p.log.Sugar().Infow("poller stopped", "reason", ctx.Err())
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// runOnce выполняет один рабочий проход. Первый скан лишь заполняет
// снапшоты; пауза в один poll-интервал даёт файлам подтвердить
// стабильность, после чего публикуется всё стабильное.
func (p *Poller) runOnce(ctx context.Context) error {
	if _, err := p.scanner.Scan(p.state); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(p.cfg.PollInterval):
	}

	stats, err := p.runCycle(ctx)
	if err != nil {
		return err
	}
	p.log.Sugar().Infow("run-once pass complete",
		"published", stats.published,
		"retryable", stats.retryable,
		"fatal", stats.fatal,
		"skipped", stats.skipped,
	)
	if stats.fatal > 0 {
		return fmt.Errorf("run-once: %d file(s) failed with non-retryable publish errors", stats.fatal)
	}
	return nil
}

// runCycle выполняет один проход: скан, затем обработка кандидатов по порядку.
func (p *Poller) runCycle(ctx context.Context) (cycleStats, error) {
	var stats cycleStats

	candidates, err := p.scanner.Scan(p.state)
	if err != nil {
		return stats, err
	}
	metrics.CyclesTotal.Inc()

	if len(candidates) == 0 {
		p.log.Sugar().Debugw("no stable files on this poll cycle")
		return stats, nil
	}

	for _, cand := range candidates {
		// Прерывание между файлами: in-flight отправка уже разрешена,
		// недоработанные кандидаты останутся на диске.
		if ctx.Err() != nil {
			break
		}
		if err := p.processFile(ctx, cand, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// processFile ведёт один файл через translate → publish → dispose.
// Все пофайловые ошибки локализуются здесь и не прерывают пачку.
func (p *Poller) processFile(ctx context.Context, cand scanner.Candidate, stats *cycleStats) error {
	ctx = logger.ContextWithFilePath(ctx, cand.Path)
	ctx, span := tracer.Start(ctx, "ProcessFile",
		trace.WithAttributes(attribute.String("file", cand.Path)))
	defer span.End()

	start := time.Now()
	content, err := os.ReadFile(cand.Path)
	if err != nil {
		metrics.FileReadErrors.Inc()
		stats.skipped++
		p.log.WithContext(ctx).Warnw("read file failed, skipping", "error", err)
		return nil
	}

	rec := p.translator.Translate(content, cand.Path)

	out, err := p.publisher.Publish(ctx, rec)
	if err != nil {
		// Соединение так и не было установлено — фатально для процесса.
		span.RecordError(err)
		return fmt.Errorf("publish %q: %w", cand.Path, err)
	}

	switch out.Class {
	case kafka.Success:
		metrics.FilesPublished.Inc()
		metrics.PublishLatency.Observe(time.Since(start).Seconds())
		stats.published++
		p.log.WithContext(ctx).Infow("published",
			"topic", rec.Topic, "partition", out.Partition, "offset", out.Offset)
		p.dispose(ctx, cand.Path)

	case kafka.Retryable:
		metrics.PublishRetryable.Inc()
		stats.retryable++
		// Файл не трогаем: следующий цикл попробует снова.
		p.log.WithContext(ctx).Warnw("publish failed, file retained for retry", "error", out.Err)

	case kafka.Fatal:
		metrics.PublishFatal.Inc()
		stats.fatal++
		span.RecordError(out.Err)
		// Один плохой файл не должен останавливать пачку.
		p.log.WithContext(ctx).Errorw("publish failed permanently, file retained", "error", out.Err)
	}
	return nil
}

// dispose выполняет пост-публикационное действие над исходным файлом:
// удаление либо отметка published, защищающая от повторной отправки.
func (p *Poller) dispose(ctx context.Context, path string) {
	if p.cfg.DeleteFiles {
		if err := os.Remove(path); err != nil {
			p.log.WithContext(ctx).Errorw("delete file failed", "error", err)
			// Файл остался на диске; отметка спасает от дубликата.
			if snap, ok := p.state[path]; ok {
				snap.Published = true
			}
			return
		}
		metrics.FilesDeleted.Inc()
		delete(p.state, path)
		p.log.WithContext(ctx).Debugw("file deleted")
		return
	}

	if snap, ok := p.state[path]; ok {
		snap.Published = true
	}
	p.log.WithContext(ctx).Debugw("file retained and marked published")
}
