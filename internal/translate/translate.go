// internal/translate/translate.go
package translate

import (
	"bytes"
	"strings"

	"github.com/YaganovValera/kafka-file-producer/internal/metrics"
	"github.com/YaganovValera/kafka-file-producer/pkg/kafka"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

// Имена зарезервированных заголовков структурированного режима.
const (
	reservedKey   = "key"
	reservedTopic = "topic"
)

// Translator превращает содержимое файла в запись для брокера.
// Чистая трансформация: ни сети, ни файловой системы.
//
// Дефолтный режим: всё содержимое файла — значение записи, без ключа и
// заголовков, топик из конфигурации. Структурированный режим разбирает
// секцию заголовков вида "Имя: значение" до первой пустой строки;
// остаток файла — значение. Зарезервированные имена key и topic задают
// ключ записи и топик, остальные строки становятся Kafka-заголовками
// в исходном порядке.
type Translator struct {
	defaultTopic string
	structured   bool
	log          *logger.Logger
}

// New создаёт Translator.
func New(defaultTopic string, structured bool, log *logger.Logger) *Translator {
	return &Translator{
		defaultTopic: defaultTopic,
		structured:   structured,
		log:          log.Named("translate"),
	}
}

// Translate превращает content в запись. name используется только в логах.
// Пустой файл даёт запись с пустым значением — это не ошибка.
// Трансляция никогда не отбрасывает файл целиком: при любом мусоре в
// секции заголовков она деградирует до режима «весь файл — значение».
func (t *Translator) Translate(content []byte, name string) *kafka.Record {
	rec := &kafka.Record{
		Topic: t.defaultTopic,
		Value: content,
	}
	if !t.structured {
		return rec
	}

	head, body, ok := splitHeaderSection(content)
	if !ok {
		// Нет разделителя — файл не следует конвенции, весь контент значение.
		return rec
	}

	key, topic, headers, malformed := parseHeaderSection(head)
	if key == nil && topic == "" && len(headers) == 0 {
		// Ни одной валидной строки заголовка: секция — часть полезной
		// нагрузки, а не заголовки. Деградируем до дефолтного режима.
		if malformed > 0 {
			metrics.TranslateDegraded.Inc()
			t.log.Sugar().Debugw("no valid header lines, treating whole file as value",
				"file", name)
		}
		return rec
	}

	if malformed > 0 {
		metrics.TranslateDegraded.Inc()
		t.log.Sugar().Warnw("malformed header lines ignored",
			"file", name, "count", malformed)
	}

	rec.Key = key
	if topic != "" {
		rec.Topic = topic
	}
	rec.Headers = headers
	rec.Value = body
	return rec
}

// splitHeaderSection отделяет секцию заголовков от тела по первой пустой
// строке. Разделители LF и CRLF равноправны: выигрывает тот, что раньше,
// иначе часть тела между двумя пустыми строками ушла бы в заголовки.
func splitHeaderSection(content []byte) (head, body []byte, ok bool) {
	iCRLF := bytes.Index(content, []byte("\r\n\r\n"))
	iLF := bytes.Index(content, []byte("\n\n"))
	switch {
	case iCRLF < 0 && iLF < 0:
		return nil, nil, false
	case iLF < 0 || (iCRLF >= 0 && iCRLF < iLF):
		return content[:iCRLF], content[iCRLF+4:], true
	default:
		return content[:iLF], content[iLF+2:], true
	}
}

// parseHeaderSection разбирает строки "Имя: значение". Строки без двоеточия
// или с пустым именем считаются мусором и пропускаются.
func parseHeaderSection(head []byte) (key []byte, topic string, headers []kafka.Header, malformed int) {
	for _, line := range strings.Split(string(head), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			malformed++
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if name == "" {
			malformed++
			continue
		}
		switch {
		case strings.EqualFold(name, reservedKey):
			key = []byte(value)
		case strings.EqualFold(name, reservedTopic):
			topic = value
		default:
			headers = append(headers, kafka.Header{Key: name, Value: []byte(value)})
		}
	}
	return key, topic, headers, malformed
}
