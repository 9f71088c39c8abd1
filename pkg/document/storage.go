package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harun/docmcp/internal/observability"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultWriteWindow is how long a saved path is reported by RecentlyWritten.
const DefaultWriteWindow = 2 * time.Second

const tempSuffix = ".tmp"

// Storage loads and saves documents under a root directory.
type Storage struct {
	fs     afero.Fs
	root   string
	recent *cache.Cache
}

// NewStorage creates a storage over fs. All paths are confined to root.
func NewStorage(fs afero.Fs, root string) *Storage {
	if root == "" {
		root = "."
	}
	return &Storage{
		fs:     fs,
		root:   filepath.Clean(root),
		recent: cache.New(DefaultWriteWindow, 2*DefaultWriteWindow),
	}
}

// NewOsStorage creates a storage over the operating system filesystem.
func NewOsStorage(root string) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents root: %w", err)
	}
	return NewStorage(afero.NewOsFs(), abs), nil
}

// Root returns the confining directory.
func (s *Storage) Root() string {
	return s.root
}

// Fs returns the underlying filesystem.
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// Canonical resolves path against the root and rejects paths that escape it.
// Two spellings of the same file yield the same canonical path.
func (s *Storage) Canonical(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errdefs.Argument("document", "path must not be empty")
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errdefs.Argument("document", "path %q is outside the documents root", path)
	}
	return p, nil
}

// Exists reports whether the canonical path names an existing file.
func (s *Storage) Exists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Open reads and decodes the document at path.
func (s *Storage) Open(path string) (*Document, error) {
	canonical, err := s.Canonical(path)
	if err != nil {
		return nil, err
	}
	codec, err := CodecFor(canonical)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := afero.ReadFile(s.fs, canonical)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errdefs.NotFound("open", "document %q not found", path)
		}
		return nil, errdefs.Wrap(errdefs.KindInternal, "open", err, "failed to read %q", path)
	}

	doc, err := codec.Decode(data)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindArgument, "open", err, "document %q is not readable", path)
	}
	observability.RecordDocumentLoad(time.Since(start))

	log.Debug().
		Str("path", canonical).
		Int("paragraphs", doc.ParagraphCount()).
		Msg("Document loaded")
	return doc, nil
}

// Save encodes doc and writes it to path atomically through a temp file.
func (s *Storage) Save(doc *Document, path string) error {
	canonical, err := s.Canonical(path)
	if err != nil {
		return err
	}
	codec, err := CodecFor(canonical)
	if err != nil {
		return err
	}

	start := time.Now()
	data, err := codec.Encode(doc)
	if err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "save", err, "failed to encode %q", path)
	}

	if err := s.fs.MkdirAll(filepath.Dir(canonical), 0755); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "save", err, "failed to create directory for %q", path)
	}

	// Mark before the rename so watchers never see an unmarked event.
	s.recent.SetDefault(canonical, time.Now())

	if err := s.writeReplace(canonical, data); err != nil {
		return errdefs.Wrap(errdefs.KindInternal, "save", err, "failed to replace %q", path)
	}
	observability.RecordDocumentSave(time.Since(start))

	log.Debug().
		Str("path", canonical).
		Int("bytes", len(data)).
		Msg("Document saved")
	return nil
}

// writeReplace writes data to a temp file unique to this call and renames it
// over canonical.
func (s *Storage) writeReplace(canonical string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(canonical), filepath.Base(canonical)+".*"+tempSuffix)
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(name)
		return err
	}
	if err := s.fs.Chmod(name, 0644); err != nil {
		_ = s.fs.Remove(name)
		return err
	}
	if err := s.fs.Rename(name, canonical); err != nil {
		_ = s.fs.Remove(name)
		return err
	}
	return nil
}

// RecentlyWritten reports whether this storage saved path within the write
// window. Temp files of a save report for their target.
func (s *Storage) RecentlyWritten(path string) bool {
	_, ok := s.recent.Get(TempTarget(filepath.Clean(path)))
	return ok
}

// IsTempFile reports whether path names a temp file written by Save.
func IsTempFile(path string) bool {
	return strings.HasSuffix(path, tempSuffix)
}

// TempTarget maps a Save temp file name back to the path it replaces.
// Other paths are returned unchanged.
func TempTarget(path string) string {
	if !IsTempFile(path) {
		return path
	}
	trimmed := strings.TrimSuffix(path, tempSuffix)
	dot := strings.LastIndexByte(trimmed, '.')
	if dot < 0 || dot < strings.LastIndexByte(trimmed, filepath.Separator) {
		return trimmed
	}
	if _, err := strconv.ParseUint(trimmed[dot+1:], 10, 64); err != nil {
		return trimmed
	}
	return trimmed[:dot]
}
