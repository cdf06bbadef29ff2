package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// maxEntryBytes bounds one JSONL line; analytics blocks make entries large.
const maxEntryBytes = 4 * 1024 * 1024

// Log is the append-only JSONL decision history. One decision per line,
// oldest first. The file is the source of truth for day-over-day diffs.
type Log struct {
	path string
}

// NewLog creates a decision log backed by the given JSONL file.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// ReadAll returns every decodable decision in file order. Malformed lines
// are skipped with a warning rather than failing the whole read.
func (l *Log) ReadAll() ([]models.Decision, error) {
	file, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open decision log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxEntryBytes)

	var decisions []models.Decision
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var decision models.Decision
		if err := json.Unmarshal(raw, &decision); err != nil {
			logger.Warn("skipping malformed decision log entry",
				zap.String("path", l.path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		decisions = append(decisions, decision)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decision log: %w", err)
	}

	return decisions, nil
}

// Latest returns the most recent decision, or nil when the log is empty.
func (l *Log) Latest() (*models.Decision, error) {
	decisions, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(decisions) == 0 {
		return nil, nil
	}
	return &decisions[len(decisions)-1], nil
}

// Append writes one decision as a new JSONL line, creating the directory
// and file as needed.
func (l *Log) Append(decision models.Decision) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open decision log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}

	logger.Info("decision appended to history log",
		zap.String("path", l.path),
		zap.Time("as_of", decision.AsOf),
	)

	return nil
}
