package ports

import "io"

type ArtifactStore interface {
	// Write stores r under a fresh unique name and returns its path.
	Write(filename string, r io.Reader) (string, error)
	Delete(path string) error
}
