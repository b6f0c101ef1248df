// pkg/kafka/interface.go
//
// Пакет kafka задаёт контракт публикации записей в Kafka и
// классификацию результатов отправки.
package kafka

import "context"

// Header — упорядоченная пара ключ/значение, прикрепляемая к записи.
type Header struct {
	Key   string
	Value []byte
}

// Record — единица публикации: одна запись для брокера.
type Record struct {
	Topic   string   // целевой топик
	Key     []byte   // ключ записи (nil, если не задан)
	Value   []byte   // полезная нагрузка (пустой файл → пустое значение)
	Headers []Header // заголовки в исходном порядке
}

// OutcomeClass классифицирует результат одной попытки публикации.
type OutcomeClass int

const (
	// Success — брокер подтвердил запись согласно уровню acks.
	Success OutcomeClass = iota
	// Retryable — транзиентная ошибка: файл остаётся и будет повторён в следующем цикле.
	Retryable
	// Fatal — ошибка конфигурации или протокола: повтор не поможет.
	Fatal
)

func (c OutcomeClass) String() string {
	switch c {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome — результат одной попытки публикации.
type Outcome struct {
	Class     OutcomeClass
	Partition int32 // валидно только при Success
	Offset    int64 // валидно только при Success
	Err       error // nil при Success
}

// Publisher публикует записи в Kafka.
//
// Publish блокирует до подтверждения брокером согласно уровню acks и
// сам никогда не ретраит отправку: политика повторов принадлежит
// оркестратору, чтобы координироваться с удалением файлов.
// Ошибка (второе значение) возвращается только если соединение так и не
// удалось установить ни разу за время жизни процесса — это фатально.
type Publisher interface {
	Publish(ctx context.Context, rec *Record) (Outcome, error)
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	// Close сбрасывает незавершённые отправки и закрывает соединение.
	Close() error
}
