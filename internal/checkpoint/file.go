package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadpipe/internal/model"
)

// FileStore keeps one JSON file per run under a state directory. Writes go
// through a temp file and rename so a crash mid-save leaves the previous
// checkpoint intact.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed checkpoint store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// LoadCheckpoint implements Store.
func (s *FileStore) LoadCheckpoint(_ context.Context, runID string) (*model.RunCheckpoint, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "checkpoint: read %s", runID)
	}

	var cp model.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: parse %s", runID)
	}
	return &cp, nil
}

// SaveCheckpoint implements Store.
func (s *FileStore) SaveCheckpoint(_ context.Context, cp *model.RunCheckpoint) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "checkpoint: create state dir")
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal")
	}

	tmp := s.path(cp.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "checkpoint: write %s", cp.RunID)
	}
	if err := os.Rename(tmp, s.path(cp.RunID)); err != nil {
		return eris.Wrapf(err, "checkpoint: commit %s", cp.RunID)
	}
	return nil
}

// ClearCheckpoint implements Store.
func (s *FileStore) ClearCheckpoint(_ context.Context, runID string) error {
	if err := os.Remove(s.path(runID)); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "checkpoint: clear %s", runID)
	}
	return nil
}
