package ubot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// FrameSink receives paced PCM frames.
type FrameSink interface {
	WriteFrame(frame []byte) error
	Close() error
}

// FifoSink writes frames into a named pipe read by the media bridge that holds the
// WebRTC side of the call.
type FifoSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenFifo creates the pipe at path if needed and opens it. The pipe is opened read-write so
// the open does not block while the bridge has not attached yet.
func OpenFifo(path string) (*FifoSink, error) {
	if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("mkfifo %s: %w", path, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Mode()&fs.ModeNamedPipe == 0 {
		return nil, fmt.Errorf("%s exists and is not a pipe", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &FifoSink{path: path, f: f}, nil
}

func (s *FifoSink) Path() string { return s.path }

func (s *FifoSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	f := s.f
	s.mu.Unlock()
	if f == nil {
		return os.ErrClosed
	}
	_, err := f.Write(frame)
	return err
}

// Close closes the pipe and removes it from disk.
func (s *FifoSink) Close() error {
	s.mu.Lock()
	f := s.f
	s.f = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	err := f.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
