package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/pkg/metrics"
)

type lastModule struct {
	moduleID string
	at       time.Time
}

// MemoryStore keeps history in process memory. It backs dry runs and tests
// when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    []model.RunResult // oldest first
	last    map[string]lastModule
	maxRuns int
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{last: make(map[string]lastModule)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) SaveRun(_ context.Context, r model.RunResult) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("save_run", float64(time.Since(start).Microseconds())/1000)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.runs = append(s.runs, r)
	if s.maxRuns > 0 && len(s.runs) > s.maxRuns {
		s.runs = append([]model.RunResult(nil), s.runs[len(s.runs)-s.maxRuns:]...)
	}
	if !r.DryRun {
		for _, o := range r.Outcomes {
			if !o.Succeeded {
				continue
			}
			if prev, ok := s.last[o.PersonnelID]; !ok || !r.FinishedAt.Before(prev.at) {
				s.last[o.PersonnelID] = lastModule{moduleID: o.ModuleID, at: r.FinishedAt}
			}
		}
	}
	metrics.UpdateRepositoryRunsTotal(len(s.runs))
	return nil
}

func (s *MemoryStore) Run(_ context.Context, id string) (model.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].ID == id {
			return s.runs[i], nil
		}
	}
	metrics.RecordErrorByComponent("repository", "not_found")
	return model.RunResult{}, ErrNotFound
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]model.RunResult, error) {
	if limit <= 0 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunResult, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) LastModules(_ context.Context, personnelIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(personnelIDs))
	for _, id := range personnelIDs {
		if lm, ok := s.last[id]; ok {
			out[id] = lm.moduleID
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context, topN int) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	counts := map[string]*ModuleCount{}
	people := map[string]bool{}
	for _, r := range s.runs {
		st.Runs++
		if r.Aborted() {
			st.Aborted++
		}
		st.Attempted += r.Attempted
		st.Succeeded += r.Succeeded
		st.Failed += r.Failed
		if r.StartedAt.After(st.LastRunAt) || st.LastRunID == "" {
			st.LastRunAt, st.LastRunID = r.StartedAt, r.ID
		}
		if r.DryRun {
			continue
		}
		for _, o := range r.Outcomes {
			if !o.Succeeded {
				continue
			}
			people[o.PersonnelID] = true
			c, ok := counts[o.ModuleID]
			if !ok {
				c = &ModuleCount{ModuleID: o.ModuleID, ModuleTitle: o.ModuleTitle}
				counts[o.ModuleID] = c
			}
			c.Count++
		}
	}
	st.Personnel = len(people)
	finishStats(&st, counts, topN)
	return st, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func topModules(counts map[string]*ModuleCount, topN int) []ModuleCount {
	out := make([]ModuleCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ModuleID < out[j].ModuleID
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
