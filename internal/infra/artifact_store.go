package infra

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TempArtifactStore keeps uploaded audio as uniquely named files in one
// directory. Nothing is read back by name: the engine gets the path.
type TempArtifactStore struct {
	dir string
	log *zap.Logger
}

func NewTempArtifactStore(dir string, log *zap.Logger) (*TempArtifactStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "transcriber")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("artifact dir %s: %w", dir, err)
	}
	return &TempArtifactStore{dir: dir, log: log.Named("artifacts")}, nil
}

func (s *TempArtifactStore) Dir() string { return s.dir }

func (s *TempArtifactStore) Write(filename string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, "audio-"+uuid.NewString()+safeExt(filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// недописанный файл не должен пережить ошибку
		_ = os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}

	s.log.Debug("artifact created",
		zap.String("path", path),
		zap.String("size", humanize.IBytes(uint64(n))),
	)
	return path, nil
}

// Delete treats an already missing file as deleted.
func (s *TempArtifactStore) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	s.log.Debug("artifact deleted", zap.String("path", path))
	return nil
}

// safeExt keeps a short alphanumeric extension so engines that sniff by
// suffix still work; anything else is dropped.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
