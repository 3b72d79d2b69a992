package smb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/internal/ratelimiter"
	"github.com/marmos91/fileaccess/pkg/share"
)

// Config selects a share on a server.
type Config struct {
	Client ClientConfig
	Share  string
}

// Open mounts cfg.Share through a client from cache. The session is reused by
// every share opened with the same server and credentials.
func Open(ctx context.Context, cache *ClientCache, cfg Config) (*Share, error) {
	if cache == nil {
		return nil, fmt.Errorf("smb: client cache is required")
	}
	c, err := cache.Get(ctx, cfg.Client)
	if err != nil {
		return nil, err
	}
	return c.Mount(ctx, cfg.Share)
}

// Share implements share.Share on a mounted SMB share.
//
// Share paths map to paths relative to the share root. The protocol has no
// POSIX modes or owners, so share.Options are ignored. Writes go to a
// temporary sibling that replaces the target once complete.
type Share struct {
	client *Client
	t      Transport
	name   string

	limiter *ratelimiter.Limiter

	mu   sync.Mutex
	life share.Lifecycle
}

var (
	_ share.Share      = (*Share)(nil)
	_ share.Downloader = (*Share)(nil)
)

func newShare(c *Client, t Transport, name string) *Share {
	return &Share{
		client:  c,
		t:       t,
		name:    name,
		limiter: ratelimiter.New(c.cfg.MaxOpsPerSecond, 0),
	}
}

// HostName returns the host the share lives on.
func (s *Share) HostName() string { return s.client.HostName() }

// URLBase returns the URL of the share root.
func (s *Share) URLBase() string { return s.client.URLBase() + s.name + "/" }

// ShareName returns the SMB share name.
func (s *Share) ShareName() string { return s.name }

// IsLocal always returns false.
func (s *Share) IsLocal() bool { return false }

// IsClosed reports whether Close has been called.
func (s *Share) IsClosed() bool { return s.life.IsClosed() }

// Client returns the session the share was mounted through.
func (s *Share) Client() *Client { return s.client }

// Close unmounts the share. The client session stays open for other shares.
func (s *Share) Close() error {
	err := s.unmount()
	s.client.forget(s)
	return err
}

func (s *Share) unmount() error {
	if !s.life.MarkClosed() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	logger.Debug("SMB share unmounted: %s", s.URLBase())
	return s.t.Umount()
}

func (s *Share) begin(ctx context.Context, op string) (func(), error) {
	if err := s.life.Check(ctx, op); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.life.IsClosed() {
		s.mu.Unlock()
		return nil, share.NewPathError(op, "", share.ErrClosed)
	}
	return s.mu.Unlock, nil
}

// rel maps an absolute share path to a share-relative one.
func rel(p string) string {
	return strings.TrimPrefix(p, "/")
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

	logger.Debug("SMB upload %s -> %s%s", localPath, s.URLBase(), rel(p))
	if err := s.writeAtomic(p, src); err != nil {
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

// WriteAllDataToFile writes data to a temp file and moves it over remotePath.
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
	return s.writeAtomic(p, bytes.NewReader(data))
}

func (s *Share) writeAtomic(p string, r io.Reader) error {
	if fi, err := s.t.Stat(rel(share.Dir(p))); err != nil || !fi.IsDir() {
		return share.NewPathError("write", p, share.ErrNotFound)
	}
	if fi, err := s.t.Stat(rel(p)); err == nil && fi.IsDir() {
		return share.RemoteError("write", p, errors.New("target is a directory"))
	}

	tmp := rel(share.TempSibling(p))
	w, err := s.t.Create(tmp)
	if err != nil {
		return share.MapError("write", p, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		_ = s.t.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	if err := w.Close(); err != nil {
		_ = s.t.Remove(tmp)
		return share.RemoteError("write", p, err)
	}

	// SMB rename does not replace an existing target
	if err := s.t.Remove(rel(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = s.t.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	if err := s.t.Rename(tmp, rel(p)); err != nil {
		_ = s.t.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	return nil
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
	f, err := s.openFile("read", p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, share.RemoteError("read", p, err)
	}
	return data, nil
}

// DownloadToLocalFile streams a file from the share to localPath.
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
	f, err := s.openFile("download", p)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := share.CopyToFile(localPath, f, 0o600); err != nil {
		return share.RemoteError("download", p, err)
	}
	return nil
}

func (s *Share) openFile(op, p string) (io.ReadCloser, error) {
	fi, err := s.t.Stat(rel(p))
	if err != nil {
		return nil, share.MapError(op, p, err)
	}
	if fi.IsDir() {
		return nil, share.NewPathError(op, p, share.ErrNotFound)
	}
	f, err := s.t.Open(rel(p))
	if err != nil {
		return nil, share.MapError(op, p, err)
	}
	return f, nil
}

// DeleteFile removes a file. Directories are reported as ErrNotFound.
func (s *Share) DeleteFile(ctx context.Context, remotePath string) error {
	unlock, err := s.begin(ctx, "delete")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	fi, err := s.t.Stat(rel(p))
	if err != nil {
		return share.MapError("delete", p, err)
	}
	if fi.IsDir() {
		return share.NewPathError("delete", p, share.ErrNotFound)
	}
	if err := s.t.Remove(rel(p)); err != nil {
		return share.MapError("delete", p, err)
	}
	return nil
}

// ============================================================================
// Directory Operations
// ============================================================================

// DeleteEmptyDirectory removes a directory that has no entries.
func (s *Share) DeleteEmptyDirectory(ctx context.Context, remotePath string) error {
	unlock, err := s.begin(ctx, "rmdir")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	if p == "/" {
		return share.NewPathError("rmdir", p, share.ErrInvalidPath)
	}

	fi, err := s.t.Stat(rel(p))
	if err != nil {
		return share.MapError("rmdir", p, err)
	}
	if !fi.IsDir() {
		return share.NewPathError("rmdir", p, share.ErrNotFound)
	}
	entries, err := s.t.ReadDir(rel(p))
	if err != nil {
		return share.MapError("rmdir", p, err)
	}
	if len(entries) > 0 {
		return share.NewPathError("rmdir", p, share.ErrDirectoryNotEmpty)
	}
	if err := s.t.Remove(rel(p)); err != nil {
		return share.MapError("rmdir", p, err)
	}
	return nil
}

// CreateDirectory creates one directory below an existing parent.
func (s *Share) CreateDirectory(ctx context.Context, remotePath string) error {
	unlock, err := s.begin(ctx, "mkdir")
	if err != nil {
		return err
	}
	defer unlock()

	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	if _, err := s.t.Stat(rel(p)); err == nil {
		return share.NewPathError("mkdir", p, share.ErrAlreadyExists)
	}
	if fi, err := s.t.Stat(rel(share.Dir(p))); err != nil || !fi.IsDir() {
		return share.NewPathError("mkdir", p, share.ErrNotFound)
	}
	if err := s.t.Mkdir(rel(p), 0o755); err != nil {
		return share.MapError("mkdir", p, err)
	}
	return nil
}

// ListDirectoryContentNames returns the names of the entries accepted by filter.
func (s *Share) ListDirectoryContentNames(ctx context.Context, remotePath string, filter share.KindFilter) ([]string, error) {
	infos, err := s.readDir(ctx, remotePath)
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
func (s *Share) ListDirectoryContent(ctx context.Context, remotePath string, filter share.KindFilter) ([]share.DirEntry, error) {
	infos, err := s.readDir(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	out := []share.DirEntry{}
	for _, fi := range infos {
		if filter.Accepts(share.KindOf(fi.Mode())) {
			out = append(out, share.NewDirEntry(fi, 0, 0))
		}
	}
	return out, nil
}

func (s *Share) readDir(ctx context.Context, remotePath string) ([]os.FileInfo, error) {
	unlock, err := s.begin(ctx, "list")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return nil, err
	}
	fi, err := s.t.Stat(rel(p))
	if err != nil {
		return nil, share.MapError("list", p, err)
	}
	if !fi.IsDir() {
		return nil, share.NewPathError("list", p, share.ErrNotFound)
	}
	infos, err := s.t.ReadDir(rel(p))
	if err != nil {
		return nil, share.MapError("list", p, err)
	}
	return infos, nil
}

// EnsureDirectoryExists creates every missing segment of path.
func (s *Share) EnsureDirectoryExists(ctx context.Context, remotePath string) (bool, error) {
	if err := s.life.Check(ctx, "mkdirs"); err != nil {
		return false, err
	}
	return share.EnsureDirectoryExists(ctx, s, remotePath)
}

// ListAllDirectoriesRecursively returns every directory below path in pre-order.
func (s *Share) ListAllDirectoriesRecursively(ctx context.Context, remotePath string) ([]string, error) {
	if err := s.life.Check(ctx, "walk"); err != nil {
		return nil, err
	}
	return share.ListAllDirectoriesRecursively(ctx, s, remotePath)
}

// PerformSpeedTest times writing, reading and deleting numFiles files of fileSize bytes under baseDir.
func (s *Share) PerformSpeedTest(ctx context.Context, baseDir string, numFiles, fileSize int) (*share.SpeedTestResult, error) {
	if err := s.life.Check(ctx, "speedtest"); err != nil {
		return nil, err
	}
	return share.PerformSpeedTest(ctx, s, baseDir, numFiles, fileSize)
}
