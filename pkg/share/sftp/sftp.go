package sftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/internal/ratelimiter"
	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// DefaultPort is the SSH port used when Config.Port is zero.
const DefaultPort = 22

// Config configures an SFTP share.
type Config struct {
	Host string
	Port int
	User string

	// Password and/or KeyFile authenticate the user.
	Password      string
	KeyFile       string
	KeyPassphrase string

	// KnownHostsFile enables host key verification. Without it any host key
	// is accepted.
	KnownHostsFile string

	// BaseDir is the remote directory that "/" maps to. Defaults to "/".
	BaseDir string

	// Timeout bounds the TCP connect and SSH handshake.
	Timeout time.Duration

	// MaxOpsPerSecond throttles round trips. Zero means unlimited.
	MaxOpsPerSecond uint

	Options share.Options
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.BaseDir == "" {
		c.BaseDir = "/"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Share implements share.Share over SFTP.
//
// Writes go to a hidden temporary sibling that is renamed over the target
// once complete. SFTPv3 servers report most failures as a generic status,
// so existence checks (mkdir over an existing path, rmdir of a non-empty
// directory) are done explicitly before the call.
//
// Thread Safety:
// The share owns one SFTP session. Operations are serialized on it.
type Share struct {
	client  Client
	sshConn *ssh.Client

	host string
	port int
	base string
	opts share.Options

	limiter *ratelimiter.Limiter

	mu   sync.Mutex
	life share.Lifecycle
}

var (
	_ share.Share      = (*Share)(nil)
	_ share.Downloader = (*Share)(nil)
)

// Dial connects to cfg.Host and opens a share rooted at cfg.BaseDir.
func Dial(ctx context.Context, cfg Config) (*Share, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp: host is required")
	}
	cfg.applyDefaults()

	client, sshConn, err := dial(ctx, cfg)
	if err != nil {
		return nil, errors.Join(share.ErrRemoteIO, err)
	}

	s, err := newShare(client, cfg)
	if err != nil {
		_ = client.Close()
		_ = sshConn.Close()
		return nil, err
	}
	s.sshConn = sshConn

	logger.Info("SFTP share connected: %s", s.URLBase())
	return s, nil
}

// NewFromClient wraps an existing SFTP client. The share takes ownership and
// closes the client on Close. Host and Port in cfg are used for display only.
func NewFromClient(client Client, cfg Config) (*Share, error) {
	cfg.applyDefaults()
	return newShare(client, cfg)
}

func newShare(client Client, cfg Config) (*Share, error) {
	base, err := share.NormalizeAbsolute(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("sftp: base directory: %w", err)
	}

	fi, err := client.Stat(base)
	if err != nil {
		return nil, share.MapError("open", base, err)
	}
	if !fi.IsDir() {
		return nil, share.NewPathError("open", base, share.ErrNotFound)
	}

	return &Share{
		client:  client,
		host:    cfg.Host,
		port:    cfg.Port,
		base:    base,
		opts:    cfg.Options,
		limiter: ratelimiter.New(cfg.MaxOpsPerSecond, 0),
	}, nil
}

// HostName returns the host the share lives on.
func (s *Share) HostName() string { return s.host }

// URLBase returns the URL of the share root.
func (s *Share) URLBase() string {
	host := s.host
	if host == "" {
		host = "localhost"
	}
	return "ssh://" + host + ":" + strconv.Itoa(s.port) + strings.TrimRight(s.base, "/") + "/"
}

// ShareName returns the display name of the share.
func (s *Share) ShareName() string { return s.URLBase() }

// IsLocal always returns false.
func (s *Share) IsLocal() bool { return false }

// IsClosed reports whether Close has been called.
func (s *Share) IsClosed() bool { return s.life.IsClosed() }

// Close ends the SFTP session and the SSH connection under it.
func (s *Share) Close() error {
	if !s.life.MarkClosed() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.client.Close()
	if s.sshConn != nil {
		err = errors.Join(err, s.sshConn.Close())
	}
	logger.Info("SFTP share closed: %s", s.URLBase())
	return err
}

// begin checks state, waits for the throttle and locks the session.
func (s *Share) begin(ctx context.Context, op string) (func(), error) {
	if err := s.life.Check(ctx, op); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	// Close may have won the race while we waited for the lock
	if s.life.IsClosed() {
		s.mu.Unlock()
		return nil, share.NewPathError(op, "", share.ErrClosed)
	}
	return s.mu.Unlock, nil
}

func (s *Share) resolve(p string) string {
	return path.Join(s.base, p)
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

	logger.Debug("SFTP upload %s -> %s", localPath, p)
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

// WriteAllDataToFile writes data to a temp file on the server and renames it over remotePath.
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

// writeAtomic streams r into a temp sibling of p and renames it into place.
func (s *Share) writeAtomic(p string, r io.Reader) error {
	target := s.resolve(p)
	if fi, err := s.client.Stat(path.Dir(target)); err != nil || !fi.IsDir() {
		return share.NewPathError("write", p, share.ErrNotFound)
	}

	tmp := share.TempSibling(target)
	f, err := s.client.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return share.MapError("write", p, err)
	}
	if _, err := f.ReadFrom(r); err != nil {
		_ = f.Close()
		_ = s.client.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	if err := f.Close(); err != nil {
		_ = s.client.Remove(tmp)
		return share.RemoteError("write", p, err)
	}

	s.applyAttrs(tmp, s.opts.FileMode)

	if err := s.rename(tmp, target); err != nil {
		_ = s.client.Remove(tmp)
		return share.RemoteError("write", p, err)
	}
	return nil
}

// rename replaces newname. Servers without the posix-rename extension get a
// remove followed by a plain rename.
func (s *Share) rename(oldname, newname string) error {
	if err := s.client.PosixRename(oldname, newname); err == nil {
		return nil
	}
	if err := s.client.Rename(oldname, newname); err == nil {
		return nil
	}
	if err := s.client.Remove(newname); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.client.Rename(oldname, newname)
}

func (s *Share) applyAttrs(target string, mode *os.FileMode) {
	if mode != nil {
		if err := s.client.Chmod(target, *mode); err != nil {
			logger.Warn("SFTP chmod %s: %v", target, err)
		}
	}
	if uid, gid, ok := s.opts.Owner(); ok {
		if uid < 0 || gid < 0 {
			fi, err := s.client.Stat(target)
			if err != nil {
				return
			}
			cu, cg := owner(fi)
			if uid < 0 {
				uid = cu
			}
			if gid < 0 {
				gid = cg
			}
		}
		if err := s.client.Chown(target, uid, gid); err != nil {
			logger.Warn("SFTP chown %s: %v", target, err)
		}
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
	f, err := s.openFile("read", p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, share.RemoteError("read", p, err)
	}
	return buf.Bytes(), nil
}

// DownloadToLocalFile streams a remote file to localPath.
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

	logger.Debug("SFTP download %s -> %s", p, localPath)
	if err := share.CopyToFile(localPath, f, 0o600); err != nil {
		return share.RemoteError("download", p, err)
	}
	return nil
}

// openFile opens a regular file, treating directories as missing.
func (s *Share) openFile(op, p string) (*sftp.File, error) {
	target := s.resolve(p)
	fi, err := s.client.Stat(target)
	if err != nil {
		return nil, share.MapError(op, p, err)
	}
	if fi.IsDir() {
		return nil, share.NewPathError(op, p, share.ErrNotFound)
	}
	f, err := s.client.Open(target)
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
	target := s.resolve(p)
	fi, err := s.client.Lstat(target)
	if err != nil {
		return share.MapError("delete", p, err)
	}
	if fi.IsDir() {
		return share.NewPathError("delete", p, share.ErrNotFound)
	}
	if err := s.client.Remove(target); err != nil {
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

	target := s.resolve(p)
	fi, err := s.client.Lstat(target)
	if err != nil {
		return share.MapError("rmdir", p, err)
	}
	if !fi.IsDir() {
		return share.NewPathError("rmdir", p, share.ErrNotFound)
	}

	entries, err := s.client.ReadDir(target)
	if err != nil {
		return share.MapError("rmdir", p, err)
	}
	if len(entries) > 0 {
		return share.NewPathError("rmdir", p, share.ErrDirectoryNotEmpty)
	}

	if err := s.client.RemoveDirectory(target); err != nil {
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

	target := s.resolve(p)
	if _, err := s.client.Lstat(target); err == nil {
		return share.NewPathError("mkdir", p, share.ErrAlreadyExists)
	}
	if err := s.client.Mkdir(target); err != nil {
		if _, statErr := s.client.Lstat(target); statErr == nil {
			return share.NewPathError("mkdir", p, share.ErrAlreadyExists)
		}
		if _, statErr := s.client.Stat(path.Dir(target)); statErr != nil {
			return share.NewPathError("mkdir", p, share.ErrNotFound)
		}
		return share.MapError("mkdir", p, err)
	}

	mode := s.opts.DirMode
	if mode == nil {
		def := os.FileMode(0o755)
		mode = &def
	}
	s.applyAttrs(target, mode)
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
			uid, gid := owner(fi)
			out = append(out, share.NewDirEntry(fi, uid, gid))
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
	target := s.resolve(p)
	fi, err := s.client.Stat(target)
	if err != nil {
		return nil, share.MapError("list", p, err)
	}
	if !fi.IsDir() {
		return nil, share.NewPathError("list", p, share.ErrNotFound)
	}
	infos, err := s.client.ReadDir(target)
	if err != nil {
		return nil, share.MapError("list", p, err)
	}
	return infos, nil
}

func owner(fi os.FileInfo) (uid, gid int) {
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		return int(st.UID), int(st.GID)
	}
	return 0, 0
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
