package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/koustreak/imgbed/internal/fsutil"
)

// FileBackend stores the document in a local file, replaced atomically on
// every write.
type FileBackend struct {
	path string
}

// NewFileBackend returns a FileBackend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load(_ context.Context) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (b *FileBackend) Store(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(b.path, data, 0o644)
}

func (b *FileBackend) Name() string {
	return b.path
}
