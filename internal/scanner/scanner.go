// internal/scanner/scanner.go
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YaganovValera/kafka-file-producer/internal/metrics"
	"github.com/YaganovValera/kafka-file-producer/pkg/logger"
)

// Snapshot — последнее наблюдение файла: размер и mtime, плюс отметка
// об уже опубликованном файле (когда удаление выключено).
type Snapshot struct {
	Size      int64
	ModTime   time.Time
	Published bool
}

// Candidate — файл, стабильный между двумя сканами и готовый к трансляции.
type Candidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Scanner перечисляет обычные файлы каталога (без рекурсии) и отбирает
// стабильные. Файл считается стабильным, если размер и mtime не изменились
// между двумя последовательными сканами — это отсекает недописанные файлы.
type Scanner struct {
	dir string
	log *logger.Logger
}

// New создаёт Scanner для каталога dir.
func New(dir string, log *logger.Logger) *Scanner {
	return &Scanner{dir: dir, log: log.Named("scanner")}
}

// Verify быстро проверяет, что каталог существует и является каталогом.
// Вызывается один раз при старте, чтобы не гонять заведомо бесполезные циклы.
func (s *Scanner) Verify() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("scanner: stat directory %q: %w", s.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scanner: path %q is not a directory", s.dir)
	}
	return nil
}

// Scan выполняет один проход по каталогу. state — карта path→Snapshot,
// принадлежит вызывающему и передаётся по ссылке; Scan обновляет её и
// чистит записи исчезнувших файлов. Кандидаты возвращаются в
// лексикографическом порядке имён.
func (s *Scanner) Scan(state map[string]*Snapshot) ([]Candidate, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scanner: read directory %q: %w", s.dir, err)
	}

	seen := make(map[string]struct{}, len(entries))
	candidates := make([]Candidate, 0, len(entries))

	// os.ReadDir возвращает записи отсортированными по имени,
	// что даёт детерминированный порядок кандидатов.
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue // подкаталоги, симлинки и спец-файлы не обрабатываем
		}
		info, err := entry.Info()
		if err != nil {
			s.log.Sugar().Warnw("stat file failed, skipping",
				"file", entry.Name(), "error", err)
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		seen[path] = struct{}{}
		metrics.FilesSeen.Inc()

		snap, ok := state[path]
		if !ok || snap.Size != info.Size() || !snap.ModTime.Equal(info.ModTime()) {
			// Первое появление или файл ещё пишется: запоминаем снапшот
			// и ждём подтверждения стабильности на следующем скане.
			state[path] = &Snapshot{Size: info.Size(), ModTime: info.ModTime()}
			metrics.FilesUnstable.Inc()
			s.log.Sugar().Debugw("file not yet stable", "file", path)
			continue
		}
		if snap.Published {
			continue // уже опубликован, удаление файлов выключено
		}
		candidates = append(candidates, Candidate{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// Чистим состояние для файлов, исчезнувших из каталога.
	for path := range state {
		if _, ok := seen[path]; !ok {
			delete(state, path)
		}
	}

	return candidates, nil
}
