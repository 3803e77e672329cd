package dl

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/Laky-64/gologging"
)

// cacheFileRe matches names produced by CacheFileName and nothing else.
var cacheFileRe = regexp.MustCompile(`^[A-Z]+_[A-Za-z0-9_-]+\.raw$`)

// CacheFileName is the on-disk name for a cache key.
func CacheFileName(key string) string {
	return key + ".raw"
}

// IsCacheFile reports whether name looks like a cache file.
func IsCacheFile(name string) bool {
	return cacheFileRe.MatchString(name)
}

// KeySource lists the cache keys some session still needs.
type KeySource interface {
	CacheKeysInUse() []string
}

// Janitor deletes cache files no session needs any more.
type Janitor struct {
	dir string
	src KeySource
	mu  sync.Mutex
}

// NewJanitor returns a janitor for dir that keeps whatever src reports.
func NewJanitor(dir string, src KeySource) *Janitor {
	return &Janitor{dir: dir, src: src}
}

// Reclaim removes every cache file that is not in use and returns how many went.
// Files that do not look like cache files are left alone.
func (j *Janitor) Reclaim() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	keep := make(map[string]struct{})
	if j.src != nil {
		for _, k := range j.src.CacheKeysInUse() {
			keep[CacheFileName(k)] = struct{}{}
		}
	}

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !IsCacheFile(name) {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		gologging.DebugF("[Janitor] removed %d cache file(s), %d kept", removed, len(keep))
	}
	return removed, errors.Join(errs...)
}
