package dl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyList []string

func (k keyList) CacheKeysInUse() []string { return k }

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
}

func TestJanitorReclaim(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"TG_1.raw", "YT_a.raw", "YT_b.raw", "SC_c.raw", "notes.txt", "YT_d.raw.part", ".src-YT_e.webm", "lower_x.raw"} {
		touch(t, dir, n)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "YT_dir.raw"), 0o750))

	j := NewJanitor(dir, keyList{"TG_1", "YT_b"})
	n, err := j.Reclaim()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, kept := range []string{"TG_1.raw", "YT_b.raw", "notes.txt", "YT_d.raw.part", ".src-YT_e.webm", "lower_x.raw"} {
		assert.FileExists(t, filepath.Join(dir, kept))
	}
	assert.DirExists(t, filepath.Join(dir, "YT_dir.raw"))
	assert.NoFileExists(t, filepath.Join(dir, "YT_a.raw"))
	assert.NoFileExists(t, filepath.Join(dir, "SC_c.raw"))

	n, err = j.Reclaim()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJanitorMissingDir(t *testing.T) {
	_, err := NewJanitor(filepath.Join(t.TempDir(), "gone"), nil).Reclaim()
	assert.Error(t, err)
}

func TestCacheFileName(t *testing.T) {
	assert.True(t, IsCacheFile(CacheFileName("YT_dQw4w9WgXcQ")))
	assert.True(t, IsCacheFile(CacheFileName("WEB_0a1b2c")))
	assert.False(t, IsCacheFile("YT_x.raw.part"))
	assert.False(t, IsCacheFile("song.raw"))
}
