package stations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Vovarama1992/transcriber/internal/metrics"
	"github.com/Vovarama1992/transcriber/internal/models"
	"github.com/Vovarama1992/transcriber/internal/ports"
)

// DefaultMaxUploadBytes is the admission limit for a single payload.
const DefaultMaxUploadBytes int64 = 25 * 1024 * 1024

const readChunk = 32 * 1024

// Artifact is a materialized payload owned by exactly one request or
// stream message. Release deletes it once; later calls are no-ops.
type Artifact struct {
	Path string
	Size int64

	store   ports.ArtifactStore
	once    sync.Once
	err     error
	log     *zap.Logger
	metrics *metrics.Metrics
}

func (a *Artifact) Release() error {
	a.once.Do(func() {
		a.err = a.store.Delete(a.Path)
		if a.err != nil {
			a.log.Warn("artifact delete failed", zap.String("path", a.Path), zap.Error(a.err))
			return
		}
		a.metrics.RecordArtifactDeleted()
		a.log.Debug("artifact deleted", zap.String("path", a.Path))
	})
	return a.err
}

type S1Ingest struct {
	store   ports.ArtifactStore
	maxSize int64
	framer  *S3PCMtoWAV
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewS1Ingest(store ports.ArtifactStore, maxSize int64, log *zap.Logger, m *metrics.Metrics) *S1Ingest {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &S1Ingest{
		store:   store,
		maxSize: maxSize,
		framer:  NewS3PCMtoWAV(),
		log:     log.Named("ingest"),
		metrics: m,
	}
}

func (s *S1Ingest) MaxSize() int64 { return s.maxSize }

// Run admits the upload and writes it to a fresh artifact. Nothing is
// written unless the whole payload fits the limit.
func (s *S1Ingest) Run(ctx context.Context, up models.Upload) (*Artifact, error) {
	if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
		s.metrics.RecordIngestRejected("no_input")
		return nil, ports.ErrNoInputProvided
	}

	if seeker, ok := up.Body.(io.Seeker); ok {
		if size, err := probeSize(seeker); err == nil && size > s.maxSize {
			return nil, s.tooLarge(size)
		}
	}

	payload, err := s.readLimited(ctx, up.Body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		s.metrics.RecordIngestRejected("empty")
		return nil, ports.ErrNoInputProvided
	}

	if up.PCM != nil {
		payload = s.framer.Run(payload, up.PCM.SampleRate, up.PCM.Channels)
	}

	path, err := s.store.Write(up.Filename, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("[S1] write artifact: %w", err)
	}
	s.metrics.RecordArtifactCreated()

	s.log.Debug("artifact created",
		zap.String("path", path),
		zap.String("filename", up.Filename),
		zap.String("size", humanize.IBytes(uint64(len(payload)))),
	)

	return &Artifact{
		Path:    path,
		Size:    int64(len(payload)),
		store:   s.store,
		log:     s.log,
		metrics: s.metrics,
	}, nil
}

// readLimited buffers at most maxSize bytes and fails as soon as one more
// byte shows up, so oversized bodies are never fully read.
func (s *S1Ingest) readLimited(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunk)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("[S1] read payload: %w", err)
		}

		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len()+n) > s.maxSize {
				return nil, s.tooLarge(int64(buf.Len() + n))
			}
			buf.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf.Bytes(), nil
			}
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, s.tooLarge(maxErr.Limit)
			}
			return nil, fmt.Errorf("[S1] read payload: %w", err)
		}
	}
}

func (s *S1Ingest) tooLarge(seen int64) error {
	s.metrics.RecordIngestRejected("too_large")
	s.log.Info("payload rejected",
		zap.String("seen", humanize.IBytes(uint64(seen))),
		zap.String("limit", humanize.IBytes(uint64(s.maxSize))),
	)
	return fmt.Errorf("%w. Maximum size is %s", ports.ErrPayloadTooLarge, humanize.IBytes(uint64(s.maxSize)))
}

func probeSize(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end - cur, nil
}
