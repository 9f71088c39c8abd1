package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// PIDFileName is the PID file written under the data directory.
const PIDFileName = "docmcp.pid"

// ErrAlreadyRunning is returned by Claim when another live process owns the file.
var ErrAlreadyRunning = errors.New("daemon is already running")

// Record is what a running daemon advertises in its PID file.
type Record struct {
	PID       int       `json:"pid"`
	Transport string    `json:"transport"`
	Addr      string    `json:"addr,omitempty"`
	Root      string    `json:"root,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// PIDFile guards a data directory against two daemons serving it at once.
type PIDFile struct {
	fs   afero.Fs
	path string
}

// OpenPIDFile returns the PID file for dataDir on the OS filesystem.
func OpenPIDFile(dataDir string) *PIDFile {
	return newPIDFile(afero.NewOsFs(), filepath.Join(dataDir, PIDFileName))
}

func newPIDFile(fs afero.Fs, path string) *PIDFile {
	return &PIDFile{fs: fs, path: path}
}

// Path returns the file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Claim writes rec unless a different live process already holds the file.
// Stale files left by a crashed daemon are overwritten.
func (p *PIDFile) Claim(rec Record) error {
	if prev, err := p.Read(); err == nil && prev.PID != rec.PID && ProcessAlive(prev.PID) {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, prev.PID)
	}
	return p.Update(rec)
}

// Update replaces the record. The write goes through a temp file so readers
// never see a partial record.
func (p *PIDFile) Update(rec Record) error {
	if err := p.fs.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return p.fs.Rename(tmp, p.path)
}

// Read parses the file. A bare decimal PID is accepted as a record with only
// the PID set.
func (p *PIDFile) Read() (Record, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		return Record{}, err
	}
	text := strings.TrimSpace(string(data))

	if pid, err := strconv.Atoi(text); err == nil {
		return Record{PID: pid}, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil || rec.PID <= 0 {
		return Record{}, fmt.Errorf("invalid PID file %s", p.path)
	}
	return rec, nil
}

// Running returns the record when its process is alive.
func (p *PIDFile) Running() (Record, bool) {
	rec, err := p.Read()
	if err != nil || !ProcessAlive(rec.PID) {
		return Record{}, false
	}
	return rec, true
}

// Release removes the file if it still names pid.
func (p *PIDFile) Release(pid int) error {
	rec, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return p.Remove()
	}
	if rec.PID != pid {
		return nil
	}
	return p.Remove()
}

// Remove deletes the file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := p.fs.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes without delivering.
	return process.Signal(syscall.Signal(0)) == nil
}
