package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// rotatedStamp names archived log files: docmcp.log.20240102-150405.000000
const rotatedStamp = "20060102-150405.000000"

// RotatingWriter appends to a log file and moves it aside once it would grow
// past maxBytes. Archives older than maxAge are removed. Safe for concurrent use.
type RotatingWriter struct {
	mu       sync.Mutex
	fs       afero.Fs
	path     string
	maxBytes int64
	maxAge   time.Duration
	compress bool
	now      func() time.Time

	file afero.File
	size int64

	// background archive and prune work, waited on by Close
	bg sync.WaitGroup
}

// NewRotatingWriter opens filename on disk. maxSizeMB and maxAgeDays are the
// rotation size and archive retention; maxAgeDays <= 0 keeps archives forever.
func NewRotatingWriter(filename string, maxSizeMB int, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	return newRotatingWriter(afero.NewOsFs(), filename, int64(maxSizeMB)<<20, time.Duration(maxAgeDays)*24*time.Hour, compress)
}

func newRotatingWriter(fs afero.Fs, path string, maxBytes int64, maxAge time.Duration, compress bool) (*RotatingWriter, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		fs:       fs,
		path:     path,
		maxBytes: maxBytes,
		maxAge:   maxAge,
		compress: compress,
		now:      time.Now,
	}
	if err := w.openLocked(); err != nil {
		return nil, err
	}

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		w.prune()
	}()
	return w, nil
}

func (w *RotatingWriter) openLocked() error {
	f, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push a non-empty file past
// the size limit. A single oversized write still lands in one file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate moves the current file aside immediately.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return os.ErrClosed
	}
	return w.rotateLocked()
}

// Close closes the file and waits for pending archive work.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.bg.Wait()
	return err
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	archived := w.path + "." + w.now().Format(rotatedStamp)
	if err := w.fs.Rename(w.path, archived); err != nil {
		return err
	}
	if err := w.openLocked(); err != nil {
		return err
	}

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		if w.compress {
			_ = w.gzip(archived)
		}
		w.prune()
	}()
	return nil
}

// gzip replaces name with name.gz.
func (w *RotatingWriter) gzip(name string) error {
	src, err := w.fs.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := w.fs.Create(name + ".gz")
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return w.fs.Remove(name)
}

// archives lists rotated files of this log, compressed or not.
func (w *RotatingWriter) archives() []string {
	matches, err := afero.Glob(w.fs, w.path+".*")
	if err != nil {
		return nil
	}
	out := matches[:0]
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(m, w.path+"."), ".gz")
		if _, err := time.Parse(rotatedStamp, stamp); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// prune removes archives last modified before now minus maxAge.
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}
	cutoff := w.now().Add(-w.maxAge)
	for _, name := range w.archives() {
		info, err := w.fs.Stat(name)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = w.fs.Remove(name)
		}
	}
}
