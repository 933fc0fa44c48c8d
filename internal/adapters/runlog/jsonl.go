package runlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/trainingbot/internal/domain/model"
)

const (
	reportDirPerm  = 0o750
	reportFilePerm = 0o640
	maxLineBytes   = 16 << 20
)

// JSONL appends one JSON line per run to a report file.
type JSONL struct {
	path string
	mu   sync.Mutex
}

// NewJSONL creates a JSONL sink writing to path.
func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

// Name implements Sink.
func (j *JSONL) Name() string { return "jsonl" }

// Write implements Sink.
func (j *JSONL) Write(_ context.Context, r *model.RunResult) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), reportDirPerm); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, reportFilePerm)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append report: %w", err)
	}
	return f.Close()
}

// ReadJSONL returns every run in a report file, oldest first.
func ReadJSONL(path string) ([]model.RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer func() { _ = f.Close() }()

	var runs []model.RunResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r model.RunResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		runs = append(runs, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return runs, nil
}
