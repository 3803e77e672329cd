package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/queue"

	"github.com/gofrs/flock"
)

const checkpointVersion = 1

type checkpointFile struct {
	Version int                `json:"version"`
	SavedAt time.Time          `json:"saved_at"`
	Chats   []queue.Checkpoint `json:"chats"`
}

// CheckpointStore keeps the queues of a halted bot in a JSON file until the next start.
// A lock file next to it keeps two processes from using it at once.
type CheckpointStore struct {
	path string
	lock *flock.Flock
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path, lock: flock.New(path + ".lock")}
}

func (s *CheckpointStore) Path() string { return s.path }

func (s *CheckpointStore) acquire(ctx context.Context) error {
	ok, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", s.path)
	}
	return nil
}

// Save replaces the stored checkpoints.
func (s *CheckpointStore) Save(ctx context.Context, chats []queue.Checkpoint) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := json.MarshalIndent(checkpointFile{
		Version: checkpointVersion,
		SavedAt: time.Now().UTC(),
		Chats:   chats,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Take reads the stored checkpoints and deletes the file, so a crash during the restore
// does not replay them again. A missing file yields nothing.
func (s *CheckpointStore) Take(ctx context.Context) ([]queue.Checkpoint, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := os.Remove(s.path); err != nil {
		return nil, err
	}

	var f checkpointFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if f.Version != checkpointVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", s.path, f.Version)
	}

	out := f.Chats[:0]
	for _, cp := range f.Chats {
		tracks := cp.Tracks[:0]
		for _, t := range cp.Tracks {
			if t.Valid() == nil {
				tracks = append(tracks, t)
			}
		}
		cp.Tracks = tracks
		if len(cp.Tracks) > 0 {
			out = append(out, cp)
		}
	}
	return out, nil
}
