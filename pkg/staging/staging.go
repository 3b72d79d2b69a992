// Package staging manages a local scratch directory for files copied off
// remote shares.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/share"
)

// maxNameAttempts bounds the retries when a generated name is taken.
const maxNameAttempts = 8

// ErrOutsideArea is returned when asked to release a path the area does not own.
var ErrOutsideArea = errors.New("path is outside the staging area")

// Options control naming and permissions of scratch files.
type Options struct {
	Prefix       string
	Postfix      string
	RandomLength int
	FileMode     os.FileMode
	DirMode      os.FileMode
}

func (o *Options) applyDefaults() {
	if o.RandomLength <= 0 {
		o.RandomLength = share.DefaultRandomLength
	}
	if o.FileMode == 0 {
		o.FileMode = 0o600
	}
	if o.DirMode == 0 {
		o.DirMode = 0o700
	}
}

// Area owns a scratch directory and hands out unique file names inside it.
//
// The area never touches anything outside its directory. Names handed out
// stay reserved until released, so two in-flight scratch files never share
// a name even before either exists on disk.
type Area struct {
	dir  string
	opts Options

	mu       sync.Mutex
	reserved map[string]struct{}
}

// New opens (creating if needed) a staging area at dir.
func New(dir string, opts Options) (*Area, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging: directory is required")
	}
	opts.applyDefaults()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	if err := os.MkdirAll(abs, opts.DirMode); err != nil {
		return nil, fmt.Errorf("staging: failed to create %s: %w", abs, err)
	}

	return &Area{dir: abs, opts: opts, reserved: make(map[string]struct{})}, nil
}

// NewTemp creates a fresh staging area below os.TempDir().
func NewTemp(prefix string, opts Options) (*Area, error) {
	dir, err := os.MkdirTemp("", prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	return New(dir, opts)
}

// Dir returns the absolute staging directory.
func (a *Area) Dir() string { return a.dir }

// CreateScratchPath reserves a unique path in the area without creating the
// file. Empty prefix/postfix fall back to the area defaults and
// randomLength <= 0 to the configured length.
func (a *Area) CreateScratchPath(prefix string, randomLength int, postfix string) (string, error) {
	if prefix == "" {
		prefix = a.opts.Prefix
	}
	if postfix == "" {
		postfix = a.opts.Postfix
	}
	if randomLength <= 0 {
		randomLength = a.opts.RandomLength
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for range maxNameAttempts {
		p := filepath.Join(a.dir, share.RandomName(prefix, randomLength, postfix))
		if _, taken := a.reserved[p]; taken {
			continue
		}
		if _, err := os.Lstat(p); err == nil {
			continue
		}
		a.reserved[p] = struct{}{}
		return p, nil
	}
	return "", fmt.Errorf("staging: no free name after %d attempts", maxNameAttempts)
}

// NewScratchPath is CreateScratchPath with the area defaults.
func (a *Area) NewScratchPath() (string, error) {
	return a.CreateScratchPath("", 0, "")
}

// CreateFile reserves a name and creates the file exclusively.
func (a *Area) CreateFile(prefix string, randomLength int, postfix string) (*os.File, error) {
	p, err := a.CreateScratchPath(prefix, randomLength, postfix)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, a.opts.FileMode)
	if err != nil {
		a.forget(p)
		return nil, fmt.Errorf("staging: %w", err)
	}
	return f, nil
}

// FileMode is the permission used for staged files.
func (a *Area) FileMode() os.FileMode { return a.opts.FileMode }

// Owns reports whether p lies inside the staging directory.
func (a *Area) Owns(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(a.dir, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Release deletes a staged file and frees its name. Missing files are fine.
func (a *Area) Release(p string) error {
	if !a.Owns(p) {
		return fmt.Errorf("release %s: %w", p, ErrOutsideArea)
	}
	defer a.forget(p)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("staging: %w", err)
	}
	return nil
}

// Unreserve drops the reservation of a path whose file now exists. The file
// stays on disk and its name cannot be handed out again while it does, so
// the caller may delete it with os.Remove without leaking the reservation.
func (a *Area) Unreserve(p string) {
	a.forget(p)
}

// Pending returns the number of reserved names.
func (a *Area) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reserved)
}

func (a *Area) forget(p string) {
	a.mu.Lock()
	delete(a.reserved, p)
	a.mu.Unlock()
}

// Clear removes everything inside the staging directory, keeping the
// directory itself.
func (a *Area) Clear() error {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("staging: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(a.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}

	a.mu.Lock()
	clear(a.reserved)
	a.mu.Unlock()

	if len(entries) > 0 {
		logger.Debug("Staging area %s cleared (%d entries)", a.dir, len(entries))
	}
	return errors.Join(errs...)
}

// Remove deletes the staging directory and everything in it.
func (a *Area) Remove() error {
	a.mu.Lock()
	clear(a.reserved)
	a.mu.Unlock()
	return os.RemoveAll(a.dir)
}
