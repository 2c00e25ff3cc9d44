package domain

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// countingStore records every write and delete so tests can check that
// each artifact is deleted exactly once.
type countingStore struct {
	mu      sync.Mutex
	seq     int
	live    map[string][]byte
	deletes map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{live: map[string][]byte{}, deletes: map[string]int{}}
}

func (s *countingStore) Write(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	path := fmt.Sprintf("/tmp/artifact-%d-%s", s.seq, filename)
	s.live[path] = data
	return path, nil
}

func (s *countingStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes[path]++
	delete(s.live, path)
	return nil
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// exactlyOnce reports whether every written artifact was deleted once.
func (s *countingStore) exactlyOnce() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.live) != 0 {
		return fmt.Errorf("%d artifacts leaked", len(s.live))
	}
	if len(s.deletes) != s.seq {
		return fmt.Errorf("%d writes but %d deleted paths", s.seq, len(s.deletes))
	}
	for p, n := range s.deletes {
		if n != 1 {
			return fmt.Errorf("%s deleted %d times", p, n)
		}
	}
	return nil
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []models.InferenceRequest
	decode func(req models.InferenceRequest) (*ports.EngineOutput, error)
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Decode(_ context.Context, req models.InferenceRequest) (*ports.EngineOutput, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	return e.decode(req)
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type memRepo struct {
	mu      sync.Mutex
	records []models.TranscriptRecord
	err     error
}

func (r *memRepo) Save(_ context.Context, rec *models.TranscriptRecord) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *memRepo) Recent(_ context.Context, limit int) ([]models.TranscriptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.records) {
		limit = len(r.records)
	}
	return r.records[:limit], nil
}

func (r *memRepo) Close() error { return nil }
