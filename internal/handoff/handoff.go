// Package handoff carries collected records from one pipeline stage to the
// next, keyed by run id and a fixed key.
package handoff

import (
	"context"
	"sync"

	"joke-pipeline/internal/models"
)

type Store interface {
	Push(ctx context.Context, runID, key string, jokes []models.JokeRecord) error
	// Pull returns an empty sequence when nothing was pushed under key.
	Pull(ctx context.Context, runID, key string) ([]models.JokeRecord, error)
	Delete(ctx context.Context, runID, key string) error
}

type Memory struct {
	mu      sync.Mutex
	entries map[string][]models.JokeRecord
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]models.JokeRecord)}
}

func entryKey(runID, key string) string {
	return runID + "." + key
}

func (m *Memory) Push(_ context.Context, runID, key string, jokes []models.JokeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entryKey(runID, key)] = append([]models.JokeRecord(nil), jokes...)
	return nil
}

func (m *Memory) Pull(_ context.Context, runID, key string) ([]models.JokeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.JokeRecord{}, m.entries[entryKey(runID, key)]...), nil
}

func (m *Memory) Delete(_ context.Context, runID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, entryKey(runID, key))
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}
