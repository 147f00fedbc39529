// Package runlog persists evaluation metrics as an append-only JSONL log
// and compares runs across prompt versions and datasets.
package runlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timvw/risk-patrol/internal/model"
)

// FileName is the log file created inside the log directory.
const FileName = "eval_log.jsonl"

const maxRecordBytes = 1024 * 1024

// Log appends run records to <dir>/eval_log.jsonl.
type Log struct {
	mu  sync.Mutex
	dir string

	// Now stamps new records. Defaults to time.Now.
	Now func() time.Time
	// NewID generates run ids. Defaults to a random UUID.
	NewID func() string
}

// NewLog returns a Log that appends to FileName inside dir.
func NewLog(dir string) *Log {
	return &Log{
		dir:   dir,
		Now:   time.Now,
		NewID: func() string { return uuid.NewString() },
	}
}

// Path returns the log file location.
func (l *Log) Path() string {
	return filepath.Join(l.dir, FileName)
}

// Append stamps m with a run id and UTC timestamp and writes it as one line.
func (l *Log) Append(m model.Metrics, provider, modelName string) (model.RunRecord, error) {
	rec := model.RunRecord{
		RunID:     l.NewID(),
		Timestamp: l.Now().UTC(),
		Provider:  provider,
		Model:     modelName,
		Metrics:   m,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("encode run record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return model.RunRecord{}, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("open run log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return model.RunRecord{}, fmt.Errorf("write run log: %w", err)
	}
	if err := f.Close(); err != nil {
		return model.RunRecord{}, fmt.Errorf("close run log: %w", err)
	}
	return rec, nil
}

// LoadAll reads every record in file order. A missing log is empty.
func (l *Log) LoadAll() ([]model.RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	var records []model.RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var rec model.RunRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("run log line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	return records, nil
}
