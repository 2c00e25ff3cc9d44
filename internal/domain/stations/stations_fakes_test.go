package stations

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// memStore keeps artifacts in memory and counts writes and deletes per path.
type memStore struct {
	mu      sync.Mutex
	seq     int
	files   map[string][]byte
	deletes map[string]int
	writes  int
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, deletes: map[string]int{}}
}

func (m *memStore) Write(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.writes++
	path := fmt.Sprintf("/mem/%d-%s", m.seq, filename)
	m.files[path] = data
	return path, nil
}

func (m *memStore) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes[path]++
	delete(m.files, path)
	return nil
}

// scriptedDecoder returns queued responses in order and records requests.
type scriptedDecoder struct {
	mu    sync.Mutex
	calls []models.InferenceRequest
	steps []func(models.InferenceRequest) (*ports.EngineOutput, error)
}

func (d *scriptedDecoder) Decode(_ context.Context, req models.InferenceRequest) (*ports.EngineOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
	if len(d.steps) == 0 {
		return nil, fmt.Errorf("unexpected decode call %d", len(d.calls))
	}
	step := d.steps[0]
	d.steps = d.steps[1:]
	return step(req)
}

func okOutput(texts ...string) func(models.InferenceRequest) (*ports.EngineOutput, error) {
	return func(models.InferenceRequest) (*ports.EngineOutput, error) {
		segs := make([]models.TranscriptSegment, 0, len(texts))
		for _, t := range texts {
			segs = append(segs, models.TranscriptSegment{Text: t})
		}
		return &ports.EngineOutput{Segments: segs, Language: "en", LanguageProbability: 0.9}, nil
	}
}

func failWith(err error) func(models.InferenceRequest) (*ports.EngineOutput, error) {
	return func(models.InferenceRequest) (*ports.EngineOutput, error) {
		return nil, err
	}
}
