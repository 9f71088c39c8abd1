package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLog = "/var/log/docmcp/docmcp.log"

func newMemWriter(t *testing.T, maxBytes int64, maxAge time.Duration, compress bool) (*RotatingWriter, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	w, err := newRotatingWriter(fs, testLog, maxBytes, maxAge, compress)
	require.NoError(t, err)
	return w, fs
}

func readAll(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(b)
}

func TestNewRotatingWriter_OnDisk(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "docmcp.log")

	w, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), w.maxBytes)
	assert.Equal(t, 7*24*time.Hour, w.maxAge)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLog, []byte("earlier\n"), 0644))

	w, err := newRotatingWriter(fs, testLog, 1<<20, 0, false)
	require.NoError(t, err)
	assert.Equal(t, int64(len("earlier\n")), w.size)

	_, err = w.Write([]byte("later\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "earlier\nlater\n", readAll(t, fs, testLog))
}

func TestRotatingWriter_RotatesPastLimit(t *testing.T) {
	w, fs := newMemWriter(t, 100, 0, false)

	line := []byte(strings.Repeat("a", 80) + "\n")
	_, err := w.Write(line)
	require.NoError(t, err)
	_, err = w.Write(line)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	archives := w.archives()
	require.Len(t, archives, 1)
	assert.Equal(t, string(line), readAll(t, fs, archives[0]))
	assert.Equal(t, string(line), readAll(t, fs, testLog))
}

func TestRotatingWriter_OversizedWriteStaysWhole(t *testing.T) {
	w, fs := newMemWriter(t, 10, 0, false)

	big := strings.Repeat("b", 50)
	_, err := w.Write([]byte(big))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Empty(t, w.archives(), "an empty file is never rotated")
	assert.Equal(t, big, readAll(t, fs, testLog))
}

func TestRotatingWriter_CompressesArchives(t *testing.T) {
	w, fs := newMemWriter(t, 1<<20, 0, true)

	_, err := w.Write([]byte("before rotation\n"))
	require.NoError(t, err)
	require.NoError(t, w.Rotate())
	require.NoError(t, w.Close())

	archives := w.archives()
	require.Len(t, archives, 1)
	require.True(t, strings.HasSuffix(archives[0], ".gz"))

	f, err := fs.Open(archives[0])
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "before rotation\n", string(plain))
}

func TestRotatingWriter_PrunesOldArchives(t *testing.T) {
	fs := afero.NewMemMapFs()
	old := testLog + ".20200101-120000.000000"
	oldGz := testLog + ".20200102-120000.000000.gz"
	recent := testLog + "." + time.Now().Format(rotatedStamp)
	unrelated := testLog + ".bak"
	for _, name := range []string{old, oldGz, recent, unrelated} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("x"), 0644))
	}
	stale := time.Now().AddDate(0, 0, -10)
	for _, name := range []string{old, oldGz, unrelated} {
		require.NoError(t, fs.Chtimes(name, stale, stale))
	}

	w, err := newRotatingWriter(fs, testLog, 1<<20, 7*24*time.Hour, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	for _, name := range []string{old, oldGz} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
	for _, name := range []string{recent, unrelated} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	w, fs := newMemWriter(t, 1<<20, 0, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assert.Equal(t, 8*50, strings.Count(readAll(t, fs, testLog), "line\n"))
}

func TestRotatingWriter_Closed(t *testing.T) {
	w, _ := newMemWriter(t, 1<<20, 0, false)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.ErrorIs(t, w.Rotate(), os.ErrClosed)
}
