package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// dirPerm is the permission of directories created for saved documents.
const dirPerm = 0o755

// ErrNilDocument is returned when Save is given no document.
var ErrNilDocument = errors.New("nil document")

// Persister stores one document type under a fixed file name. The codec
// decides the format and the file extension.
type Persister[T any] struct {
	codec    Codec
	basename string
}

// NewPersister creates a persister writing basename plus the codec extension.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{basename: basename, codec: codec}
}

// Path returns the file the document is kept in under dir.
func (p *Persister[T]) Path(dir string) string {
	return filepath.Join(dir, p.basename+p.codec.Extension())
}

// Save writes doc into dir, creating dir when it does not exist, and returns
// the written path. An existing document is replaced atomically.
func (p *Persister[T]) Save(dir string, doc *T) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("save %s: %w", p.basename, ErrNilDocument)
	}

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	return SaveState(dir, p.basename, p.codec, doc)
}

// Load reads the document kept in dir.
func (p *Persister[T]) Load(dir string) (*T, error) {
	var doc T

	err := LoadState(dir, p.basename, p.codec, &doc)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}
