package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/share"
)

// Config configures a local disk share.
type Config struct {
	// BaseDir is the directory that "/" maps to.
	BaseDir string

	// CreateBaseDir creates BaseDir (and parents) if it does not exist.
	CreateBaseDir bool

	// Options are applied to newly created files and directories.
	Options share.Options
}

// Share implements share.Share on the local filesystem.
//
// Files are read and written in place, so Share also implements
// share.LocalPather. Writes go to a hidden sibling first and are renamed into
// place, so a reader never observes a half-written file.
//
// Thread Safety:
// The underlying filesystem calls are safe for concurrent use. Concurrent
// writers to the same path race at the rename; the last one wins.
type Share struct {
	base string
	opts share.Options
	life share.Lifecycle
}

var (
	_ share.Share       = (*Share)(nil)
	_ share.LocalPather = (*Share)(nil)
)

// New opens a local share rooted at cfg.BaseDir.
//
// Returns share.ErrNotFound if the base directory does not exist and
// CreateBaseDir is false.
func New(ctx context.Context, cfg Config) (*Share, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local share: base directory is required")
	}

	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("local share: %w", err)
	}

	if cfg.CreateBaseDir {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("local share: failed to create base directory: %w", err)
		}
	}

	fi, err := os.Stat(base)
	if err != nil || !fi.IsDir() {
		return nil, share.NewPathError("open", base, share.ErrNotFound)
	}

	logger.Debug("Local share opened at %s", base)
	return &Share{base: base, opts: cfg.Options}, nil
}

// HostName always returns "localhost".
func (s *Share) HostName() string { return "localhost" }

// URLBase returns the URL of the share root.
func (s *Share) URLBase() string { return "file://localhost" + filepath.ToSlash(s.base) + "/" }

// ShareName returns the display name of the share.
func (s *Share) ShareName() string { return s.URLBase() }

// IsLocal always returns true.
func (s *Share) IsLocal() bool { return true }

// IsClosed reports whether Close has been called.
func (s *Share) IsClosed() bool { return s.life.IsClosed() }

// BaseDir returns the absolute directory backing "/".
func (s *Share) BaseDir() string { return s.base }

// Close marks the share closed. There is no transport to release.
func (s *Share) Close() error {
	if s.life.MarkClosed() {
		logger.Debug("Local share closed: %s", s.base)
	}
	return nil
}

// LocalPath maps a share path to its location on disk.
func (s *Share) LocalPath(remotePath string) (string, error) {
	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return "", err
	}
	return s.resolve(p), nil
}

func (s *Share) resolve(p string) string {
	return filepath.Join(s.base, filepath.FromSlash(p))
}

// ============================================================================
// File Operations
// ============================================================================

// UploadLocalFile copies localPath into the share. With removeLocal set a
// plain rename is tried first; if that fails (different devices) the file
// is copied and the source removed afterwards.
func (s *Share) UploadLocalFile(ctx context.Context, localPath, remotePath string, removeLocal bool) error {
	if err := s.life.Check(ctx, "upload"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	target := s.resolve(p)

	// ========================================================================
	// Step 1: Open the source (also detects a missing source)
	// ========================================================================

	src, _, err := share.OpenLocalSource(localPath)
	if err != nil {
		return err
	}

	// ========================================================================
	// Step 2: Fast path, move within the same device
	// ========================================================================

	if removeLocal {
		if err := os.Rename(localPath, target); err == nil {
			_ = src.Close()
			s.applyFileAttrs(target)
			return nil
		}
	}

	// ========================================================================
	// Step 3: Copy into a temp sibling and rename into place
	// ========================================================================

	err = s.writeAtomic(p, target, src)
	_ = src.Close()
	if err != nil {
		return err
	}

	if removeLocal {
		if err := os.Remove(localPath); err != nil {
			return fmt.Errorf("upload: failed to remove source %s: %w", localPath, err)
		}
	}
	return nil
}

// WriteAllDataToFile writes data to a temp sibling and renames it over remotePath.
func (s *Share) WriteAllDataToFile(ctx context.Context, remotePath string, data []byte) error {
	if err := s.life.Check(ctx, "write"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	return s.writeAtomic(p, s.resolve(p), bytes.NewReader(data))
}

func (s *Share) writeAtomic(p, target string, r io.Reader) error {
	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		return share.RemoteError("write", p, errors.New("target is a directory"))
	}

	tmp := share.LocalTempSibling(target)
	perm := os.FileMode(0o644)
	if s.opts.FileMode != nil {
		perm = *s.opts.FileMode
	}

	if err := share.CopyToFile(tmp, r, perm); err != nil {
		return mapLocalError("write", p, err)
	}
	s.applyFileAttrs(tmp)

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return mapLocalError("write", p, err)
	}
	return nil
}

// applyFileAttrs sets the configured mode and owner. Failures are logged, not
// returned: attributes are a best-effort default.
func (s *Share) applyFileAttrs(path string) {
	if s.opts.FileMode != nil {
		if err := os.Chmod(path, *s.opts.FileMode); err != nil {
			logger.Warn("Local share: chmod %s: %v", path, err)
		}
	}
	if uid, gid, ok := s.opts.Owner(); ok {
		if err := os.Chown(path, uid, gid); err != nil {
			logger.Warn("Local share: chown %s: %v", path, err)
		}
	}
}

func (s *Share) applyDirAttrs(path string) {
	if s.opts.DirMode != nil {
		if err := os.Chmod(path, *s.opts.DirMode); err != nil {
			logger.Warn("Local share: chmod %s: %v", path, err)
		}
	}
	if uid, gid, ok := s.opts.Owner(); ok {
		if err := os.Chown(path, uid, gid); err != nil {
			logger.Warn("Local share: chown %s: %v", path, err)
		}
	}
}

// ReadAllDataFromFile returns the contents of remotePath.
func (s *Share) ReadAllDataFromFile(ctx context.Context, remotePath string) ([]byte, error) {
	if err := s.life.Check(ctx, "read"); err != nil {
		return nil, err
	}
	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return nil, err
	}

	target := s.resolve(p)
	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		return nil, share.NewPathError("read", p, share.ErrNotFound)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, mapLocalError("read", p, err)
	}
	return data, nil
}

// DeleteFile removes a file. A directory at path counts as "no such file".
func (s *Share) DeleteFile(ctx context.Context, path string) error {
	if err := s.life.Check(ctx, "delete"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(path)
	if err != nil {
		return err
	}

	target := s.resolve(p)
	fi, err := os.Lstat(target)
	if err != nil {
		return mapLocalError("delete", p, err)
	}
	if fi.IsDir() {
		return share.NewPathError("delete", p, share.ErrNotFound)
	}
	return mapLocalError("delete", p, os.Remove(target))
}

// ============================================================================
// Directory Operations
// ============================================================================

// DeleteEmptyDirectory removes a directory that has no entries.
func (s *Share) DeleteEmptyDirectory(ctx context.Context, path string) error {
	if err := s.life.Check(ctx, "rmdir"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(path)
	if err != nil {
		return err
	}
	if p == "/" {
		return share.NewPathError("rmdir", p, share.ErrInvalidPath)
	}

	target := s.resolve(p)
	fi, err := os.Lstat(target)
	if err != nil {
		return mapLocalError("rmdir", p, err)
	}
	if !fi.IsDir() {
		return share.NewPathError("rmdir", p, share.ErrNotFound)
	}

	if err := os.Remove(target); err != nil {
		if nonEmpty(target) {
			return share.NewPathError("rmdir", p, share.ErrDirectoryNotEmpty)
		}
		return mapLocalError("rmdir", p, err)
	}
	return nil
}

func nonEmpty(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()
	names, _ := f.Readdirnames(1)
	return len(names) > 0
}

// CreateDirectory creates one directory below an existing parent.
func (s *Share) CreateDirectory(ctx context.Context, path string) error {
	if err := s.life.Check(ctx, "mkdir"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(path)
	if err != nil {
		return err
	}

	perm := os.FileMode(0o755)
	if s.opts.DirMode != nil {
		perm = *s.opts.DirMode
	}

	target := s.resolve(p)
	if err := os.Mkdir(target, perm); err != nil {
		return mapLocalError("mkdir", p, err)
	}
	s.applyDirAttrs(target)
	return nil
}

// ListDirectoryContentNames returns the names of the entries accepted by filter.
func (s *Share) ListDirectoryContentNames(ctx context.Context, path string, filter share.KindFilter) ([]string, error) {
	entries, err := s.readDir(ctx, path)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if filter.Accepts(share.KindOf(e.Type())) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ListDirectoryContent returns the entries accepted by filter. Owners come from the stat data where the OS provides it.
func (s *Share) ListDirectoryContent(ctx context.Context, path string, filter share.KindFilter) ([]share.DirEntry, error) {
	entries, err := s.readDir(ctx, path)
	if err != nil {
		return nil, err
	}

	out := []share.DirEntry{}
	for _, e := range entries {
		if !filter.Accepts(share.KindOf(e.Type())) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// vanished between readdir and stat
			continue
		}
		uid, gid := owner(fi)
		out = append(out, share.NewDirEntry(fi, uid, gid))
	}
	return out, nil
}

func (s *Share) readDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	if err := s.life.Check(ctx, "list"); err != nil {
		return nil, err
	}
	p, err := share.NormalizeAbsolute(path)
	if err != nil {
		return nil, err
	}

	target := s.resolve(p)
	fi, err := os.Stat(target)
	if err != nil {
		return nil, mapLocalError("list", p, err)
	}
	if !fi.IsDir() {
		return nil, share.NewPathError("list", p, share.ErrNotFound)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, mapLocalError("list", p, err)
	}
	return entries, nil
}

// EnsureDirectoryExists creates every missing segment of path.
func (s *Share) EnsureDirectoryExists(ctx context.Context, path string) (bool, error) {
	if err := s.life.Check(ctx, "mkdirs"); err != nil {
		return false, err
	}
	return share.EnsureDirectoryExists(ctx, s, path)
}

// ListAllDirectoriesRecursively returns every directory below path in pre-order.
func (s *Share) ListAllDirectoriesRecursively(ctx context.Context, path string) ([]string, error) {
	if err := s.life.Check(ctx, "walk"); err != nil {
		return nil, err
	}
	return share.ListAllDirectoriesRecursively(ctx, s, path)
}

// PerformSpeedTest times writing, reading and deleting numFiles files of fileSize bytes under baseDir.
func (s *Share) PerformSpeedTest(ctx context.Context, baseDir string, numFiles, fileSize int) (*share.SpeedTestResult, error) {
	if err := s.life.Check(ctx, "speedtest"); err != nil {
		return nil, err
	}
	return share.PerformSpeedTest(ctx, s, baseDir, numFiles, fileSize)
}

// mapLocalError converts os errors to share errors. Local I/O failures other
// than existence checks are reported as ErrRemoteIO like any other medium.
func mapLocalError(op, p string, err error) error {
	if err == nil {
		return nil
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return share.NewPathError(op, p, share.ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return share.NewPathError(op, p, share.ErrAlreadyExists)
	default:
		return share.RemoteError(op, p, err)
	}
}
