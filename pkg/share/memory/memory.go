package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/spf13/afero"
)

// Config configures a memory share.
type Config struct {
	// Name identifies the share in URLs ("mem://<name>/").
	Name string

	// Fs backs the share. Nil selects a fresh afero.MemMapFs.
	Fs afero.Fs

	// ReadOnly rejects every mutation with ErrRemoteIO.
	ReadOnly bool

	Options share.Options
}

// Share implements share.Share on top of an afero filesystem, by default
// held entirely in memory.
//
// A memory share does not count as local: files have no path on disk, so a
// file set iterating it stages copies just like it would for a remote host.
// That makes it a convenient stand-in for remote media in tests and dry runs.
type Share struct {
	name string
	fs   afero.Fs
	opts share.Options

	mu   sync.Mutex
	life share.Lifecycle
}

var (
	_ share.Share      = (*Share)(nil)
	_ share.Downloader = (*Share)(nil)
)

// New creates a memory share.
func New(cfg Config) *Share {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewMemMapFs()
	}
	if cfg.ReadOnly {
		fsys = afero.NewReadOnlyFs(fsys)
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Share{name: name, fs: fsys, opts: cfg.Options}
}

// Fs exposes the backing filesystem, mostly for seeding test data.
func (s *Share) Fs() afero.Fs { return s.fs }

// HostName always returns "memory".
func (s *Share) HostName() string { return "memory" }

// ShareName returns the display name of the share.
func (s *Share) ShareName() string { return s.name }

// URLBase returns the URL of the share root.
func (s *Share) URLBase() string { return "mem://" + s.name + "/" }

// IsLocal returns false: files have no path on disk.
func (s *Share) IsLocal() bool { return false }

// IsClosed reports whether Close has been called.
func (s *Share) IsClosed() bool { return s.life.IsClosed() }

// Close marks the share closed. The backing filesystem is kept.
func (s *Share) Close() error {
	if s.life.MarkClosed() {
		logger.Debug("Memory share closed: %s", s.name)
	}
	return nil
}

// begin checks the lifecycle and takes the share lock.
func (s *Share) begin(ctx context.Context, op string) (func(), error) {
	if err := s.life.Check(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

func (s *Share) statDir(op, p string) error {
	fi, err := s.fs.Stat(p)
	if err != nil {
		return share.MapError(op, p, err)
	}
	if !fi.IsDir() {
		return share.NewPathError(op, p, share.ErrNotFound)
	}
	return nil
}

// ============================================================================
// File Operations
// ============================================================================

// UploadLocalFile copies localPath to remotePath, deleting the source afterwards when removeLocal is set.
func (s *Share) UploadLocalFile(ctx context.Context, localPath, remotePath string, removeLocal bool) error {
	unlock, err := s.begin(ctx, "upload")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	src, _, err := share.OpenLocalSource(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := s.writeFrom(p, func(f afero.File) error {
		_, err := io.Copy(f, src)
		return err
	}); err != nil {
		return err
	}

	if removeLocal {
		_ = src.Close()
		if err := os.Remove(localPath); err != nil {
			return fmt.Errorf("upload: failed to remove source %s: %w", localPath, err)
		}
	}
	return nil
}

// WriteAllDataToFile creates or replaces remotePath with data.
func (s *Share) WriteAllDataToFile(ctx context.Context, remotePath string, data []byte) error {
	unlock, err := s.begin(ctx, "write")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	return s.writeFrom(p, func(f afero.File) error {
		_, err := f.Write(data)
		return err
	})
}

// writeFrom writes to a temp sibling and renames it over p.
func (s *Share) writeFrom(p string, fill func(afero.File) error) error {
	if err := s.statDir("write", share.Dir(p)); err != nil {
		return err
	}
	if fi, err := s.fs.Stat(p); err == nil && fi.IsDir() {
		return share.RemoteError("write", p, errors.New("target is a directory"))
	}

	perm := os.FileMode(0o644)
	if s.opts.FileMode != nil {
		perm = *s.opts.FileMode
	}

	tmp := share.TempSibling(p)
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return share.RemoteError("write", p, err)
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	s.applyAttrs(tmp, s.opts.FileMode)

	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	return nil
}

func (s *Share) applyAttrs(p string, mode *fs.FileMode) {
	if mode != nil {
		_ = s.fs.Chmod(p, *mode)
	}
	if uid, gid, ok := s.opts.Owner(); ok {
		_ = s.fs.Chown(p, uid, gid)
	}
}

// ReadAllDataFromFile returns the contents of remotePath.
func (s *Share) ReadAllDataFromFile(ctx context.Context, remotePath string) ([]byte, error) {
	unlock, err := s.begin(ctx, "read")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return nil, err
	}
	if err := s.statFile("read", p); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, share.MapError("read", p, err)
	}
	return data, nil
}

// DownloadToLocalFile copies a file out of the share onto local disk.
func (s *Share) DownloadToLocalFile(ctx context.Context, remotePath, localPath string) error {
	unlock, err := s.begin(ctx, "download")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return err
	}
	if err := s.statFile("download", p); err != nil {
		return err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return share.MapError("download", p, err)
	}
	defer f.Close()

	if err := share.CopyToFile(localPath, f, 0o600); err != nil {
		return share.RemoteError("download", p, err)
	}
	return nil
}

func (s *Share) statFile(op, p string) error {
	fi, err := s.fs.Stat(p)
	if err != nil {
		return share.MapError(op, p, err)
	}
	if fi.IsDir() {
		return share.NewPathError(op, p, share.ErrNotFound)
	}
	return nil
}

// DeleteFile removes a file. Directories are reported as ErrNotFound.
func (s *Share) DeleteFile(ctx context.Context, path string) error {
	unlock, err := s.begin(ctx, "delete")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(path)
	if err != nil {
		return err
	}
	if err := s.statFile("delete", p); err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil {
		return share.MapError("delete", p, err)
	}
	return nil
}

// ============================================================================
// Directory Operations
// ============================================================================

// DeleteEmptyDirectory removes a directory that has no entries.
func (s *Share) DeleteEmptyDirectory(ctx context.Context, path string) error {
	unlock, err := s.begin(ctx, "rmdir")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(path)
	if err != nil {
		return err
	}
	if p == "/" {
		return share.NewPathError("rmdir", p, share.ErrInvalidPath)
	}
	if err := s.statDir("rmdir", p); err != nil {
		return err
	}

	infos, err := afero.ReadDir(s.fs, p)
	if err != nil {
		return share.MapError("rmdir", p, err)
	}
	if len(infos) > 0 {
		return share.NewPathError("rmdir", p, share.ErrDirectoryNotEmpty)
	}
	if err := s.fs.Remove(p); err != nil {
		return share.MapError("rmdir", p, err)
	}
	return nil
}

// CreateDirectory creates one directory below an existing parent.
func (s *Share) CreateDirectory(ctx context.Context, path string) error {
	unlock, err := s.begin(ctx, "mkdir")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(path)
	if err != nil {
		return err
	}

	// MemMapFs creates missing parents silently; refuse that explicitly.
	if err := s.statDir("mkdir", share.Dir(p)); err != nil {
		return err
	}
	if _, err := s.fs.Stat(p); err == nil {
		return share.NewPathError("mkdir", p, share.ErrAlreadyExists)
	}

	perm := os.FileMode(0o755)
	if s.opts.DirMode != nil {
		perm = *s.opts.DirMode
	}
	if err := s.fs.Mkdir(p, perm); err != nil {
		return share.MapError("mkdir", p, err)
	}
	s.applyAttrs(p, s.opts.DirMode)
	return nil
}

// ListDirectoryContentNames returns the names of the entries accepted by filter.
func (s *Share) ListDirectoryContentNames(ctx context.Context, path string, filter share.KindFilter) ([]string, error) {
	infos, err := s.readDir(ctx, path)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, fi := range infos {
		if filter.Accepts(share.KindOf(fi.Mode())) {
			names = append(names, fi.Name())
		}
	}
	return names, nil
}

// ListDirectoryContent returns the entries accepted by filter.
func (s *Share) ListDirectoryContent(ctx context.Context, path string, filter share.KindFilter) ([]share.DirEntry, error) {
	infos, err := s.readDir(ctx, path)
	if err != nil {
		return nil, err
	}
	uid, gid, _ := s.opts.Owner()
	if uid < 0 {
		uid = 0
	}
	if gid < 0 {
		gid = 0
	}

	out := []share.DirEntry{}
	for _, fi := range infos {
		if filter.Accepts(share.KindOf(fi.Mode())) {
			out = append(out, share.NewDirEntry(fi, uid, gid))
		}
	}
	return out, nil
}

func (s *Share) readDir(ctx context.Context, path string) ([]os.FileInfo, error) {
	unlock, err := s.begin(ctx, "list")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := share.NormalizeAbsolute(path)
	if err != nil {
		return nil, err
	}
	if err := s.statDir("list", p); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, p)
	if err != nil {
		return nil, share.MapError("list", p, err)
	}
	return infos, nil
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
