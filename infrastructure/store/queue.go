package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marbeek/stagescore/internal/ports"
)

// FileQueue implements ports.QueueStore as a YAML snapshot file. The
// snapshot is a batch artifact written at audit time; consumers must
// re-check each review's current state in the store, since the file can
// lag behind it.
type FileQueue struct {
	path string
}

var _ ports.QueueStore = (*FileQueue)(nil)

// NewFileQueue creates a FileQueue at the given path.
func NewFileQueue(path string) *FileQueue {
	return &FileQueue{path: path}
}

// queueFile is the on-disk document shape.
type queueFile struct {
	GeneratedAt time.Time          `yaml:"generated_at"`
	Entries     []ports.QueueEntry `yaml:"entries"`
}

// WriteQueue replaces the snapshot atomically via a temp file rename,
// so a crashed write never leaves a truncated queue behind.
func (q *FileQueue) WriteQueue(_ context.Context, entries []ports.QueueEntry) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	data, err := yaml.Marshal(queueFile{GeneratedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}

// ReadQueue loads the current snapshot. A missing file is an empty
// queue, not an error.
func (q *FileQueue) ReadQueue(context.Context) ([]ports.QueueEntry, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}

	var doc queueFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode queue %s: %w", q.path, err)
	}
	return doc.Entries, nil
}
