package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// CyclesTotal — число завершённых циклов опроса каталога.
	CyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "poller",
		Name:      "cycles_total",
		Help:      "Total number of completed directory poll cycles",
	})

	// FilesSeen — число наблюдений файлов при сканировании (по файлу за цикл).
	FilesSeen = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "scanner",
		Name:      "files_seen_total",
		Help:      "Total number of file observations during directory scans",
	})

	// FilesUnstable — число пропусков файлов, ещё не подтвердивших стабильность.
	FilesUnstable = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "scanner",
		Name:      "files_unstable_total",
		Help:      "Number of files skipped because size/mtime changed between scans",
	})

	// FilesPublished — число файлов, подтверждённых брокером.
	FilesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "poller",
		Name:      "files_published_total",
		Help:      "Total number of files successfully published",
	})

	// FilesDeleted — число файлов, удалённых после успешной публикации.
	FilesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "poller",
		Name:      "files_deleted_total",
		Help:      "Total number of source files deleted after publish",
	})

	// FileReadErrors — число файлов, которые не удалось прочитать.
	FileReadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "poller",
		Name:      "file_read_errors_total",
		Help:      "Number of files skipped because they could not be read",
	})

	// PublishRetryable — число транзиентных ошибок публикации.
	PublishRetryable = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "kafka",
		Name:      "publish_retryable_total",
		Help:      "Number of publish attempts that failed with a retryable error",
	})

	// PublishFatal — число фатальных ошибок публикации.
	PublishFatal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "kafka",
		Name:      "publish_fatal_total",
		Help:      "Number of publish attempts that failed with a non-retryable error",
	})

	// TranslateDegraded — число файлов, у которых часть заголовков не распознана.
	TranslateDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Subsystem: "translate",
		Name:      "degraded_total",
		Help:      "Number of files translated in degraded (best-effort) mode",
	})

	// PublishLatency — гистограмма задержек от чтения файла до подтверждения брокером.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "producer",
		Subsystem: "pipeline",
		Name:      "publish_latency_seconds",
		Help:      "Latency from reading a file to broker acknowledgment (seconds)",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			CyclesTotal,
			FilesSeen,
			FilesUnstable,
			FilesPublished,
			FilesDeleted,
			FileReadErrors,
			PublishRetryable,
			PublishFatal,
			TranslateDegraded,
			PublishLatency,
		)
	})
}
