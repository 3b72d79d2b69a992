package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/share"
)

// DefaultHost is reported as host name when no custom endpoint is set.
const DefaultHost = "s3.amazonaws.com"

// Config configures an S3 share.
type Config struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix all share paths are mapped under.
	// Example: "exports/data" maps "/a/b" to "exports/data/a/b".
	KeyPrefix string

	// Endpoint is used for display only (HostName). Empty means AWS.
	Endpoint string
}

// Share implements share.Share on an S3 bucket.
//
// Key Design:
//   - A file "/a/b.txt" is the object "<prefix>a/b.txt"
//   - A directory "/a" is the empty marker object "<prefix>a/"
//   - A directory exists if its marker exists or any key lives below it
//
// Object stores have no rename, but PutObject is atomic: a reader never sees
// a partially written object, so writes need no temporary sibling.
//
// Thread Safety:
// The S3 client is safe for concurrent use, so the share does not serialize
// calls.
type Share struct {
	client API
	bucket string
	prefix string
	host   string

	life share.Lifecycle
}

var (
	_ share.Share      = (*Share)(nil)
	_ share.Downloader = (*Share)(nil)
)

// New creates a share and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Share, error) {
	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket name is required")
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	host := DefaultHost
	if cfg.Endpoint != "" {
		if u, err := url.Parse(cfg.Endpoint); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		} else {
			host = cfg.Endpoint
		}
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		if isNotFound(err) {
			return nil, share.NewPathError("open", cfg.Bucket, share.ErrNotFound)
		}
		return nil, share.RemoteError("open", cfg.Bucket, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err))
	}

	s := &Share{
		client: cfg.Client,
		bucket: cfg.Bucket,
		prefix: prefix,
		host:   host,
	}
	logger.Info("S3 share opened: %s", s.URLBase())
	return s, nil
}

// HostName returns the endpoint host, or DefaultHost.
func (s *Share) HostName() string { return s.host }

// URLBase returns the URL of the share root.
func (s *Share) URLBase() string { return "s3://" + s.bucket + "/" + s.prefix }

// ShareName returns the bucket name.
func (s *Share) ShareName() string { return s.bucket }

// IsLocal always returns false.
func (s *Share) IsLocal() bool { return false }

// IsClosed reports whether Close has been called.
func (s *Share) IsClosed() bool { return s.life.IsClosed() }

// Close marks the share closed. The SDK client needs no teardown.
func (s *Share) Close() error {
	if s.life.MarkClosed() {
		logger.Info("S3 share closed: %s", s.URLBase())
	}
	return nil
}

// fileKey returns the object key of a file path.
func (s *Share) fileKey(p string) string {
	return s.prefix + strings.TrimPrefix(p, "/")
}

// dirKey returns the marker key of a directory path. The root maps to the
// prefix itself.
func (s *Share) dirKey(p string) string {
	if p == "/" {
		return s.prefix
	}
	return s.fileKey(p) + "/"
}

// ============================================================================
// Key existence checks
// ============================================================================

func (s *Share) objectExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Share) isFile(ctx context.Context, p string) (bool, error) {
	if p == "/" {
		return false, nil
	}
	return s.objectExists(ctx, s.fileKey(p))
}

func (s *Share) isDir(ctx context.Context, p string) (bool, error) {
	if p == "/" {
		return true, nil
	}
	key := s.dirKey(p)
	ok, err := s.objectExists(ctx, key)
	if err != nil || ok {
		return ok, err
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// ============================================================================
// File Operations
// ============================================================================

// UploadLocalFile copies localPath to remotePath, deleting the source afterwards when removeLocal is set.
func (s *Share) UploadLocalFile(ctx context.Context, localPath, remotePath string, removeLocal bool) error {
	if err := s.life.Check(ctx, "upload"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	src, fi, err := share.OpenLocalSource(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	logger.Debug("S3 upload %s -> %s%s", localPath, s.URLBase(), strings.TrimPrefix(p, "/"))
	if err := s.put(ctx, p, src, fi.Size()); err != nil {
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

// WriteAllDataToFile stores data under the key for remotePath with a single PutObject.
func (s *Share) WriteAllDataToFile(ctx context.Context, remotePath string, data []byte) error {
	if err := s.life.Check(ctx, "write"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	return s.put(ctx, p, bytes.NewReader(data), int64(len(data)))
}

func (s *Share) put(ctx context.Context, p string, body io.Reader, size int64) error {
	if p == "/" {
		return share.RemoteError("write", p, errors.New("target is a directory"))
	}
	parentOK, err := s.isDir(ctx, share.Dir(p))
	if err != nil {
		return share.RemoteError("write", p, err)
	}
	if !parentOK {
		return share.NewPathError("write", p, share.ErrNotFound)
	}
	if dir, err := s.isDir(ctx, p); err != nil {
		return share.RemoteError("write", p, err)
	} else if dir {
		return share.RemoteError("write", p, errors.New("target is a directory"))
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fileKey(p)),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return share.RemoteError("write", p, err)
	}
	return nil
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
	body, err := s.get(ctx, "read", p)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, share.RemoteError("read", p, err)
	}
	return data, nil
}

// DownloadToLocalFile streams an object to localPath.
func (s *Share) DownloadToLocalFile(ctx context.Context, remotePath, localPath string) error {
	if err := s.life.Check(ctx, "download"); err != nil {
		return err
	}
	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return err
	}
	body, err := s.get(ctx, "download", p)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := share.CopyToFile(localPath, body, 0o600); err != nil {
		return share.RemoteError("download", p, err)
	}
	return nil
}

func (s *Share) get(ctx context.Context, op, p string) (io.ReadCloser, error) {
	if p == "/" {
		return nil, share.NewPathError(op, p, share.ErrNotFound)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fileKey(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, share.NewPathError(op, p, share.ErrNotFound)
		}
		return nil, share.RemoteError(op, p, err)
	}
	return out.Body, nil
}

// DeleteFile removes a file. Directories are reported as ErrNotFound.
func (s *Share) DeleteFile(ctx context.Context, remotePath string) error {
	if err := s.life.Check(ctx, "delete"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	ok, err := s.isFile(ctx, p)
	if err != nil {
		return share.RemoteError("delete", p, err)
	}
	if !ok {
		return share.NewPathError("delete", p, share.ErrNotFound)
	}
	return s.deleteKey(ctx, "delete", p, s.fileKey(p))
}

func (s *Share) deleteKey(ctx context.Context, op, p, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return share.RemoteError(op, p, err)
	}
	return nil
}

// ============================================================================
// Directory Operations
// ============================================================================

// DeleteEmptyDirectory removes the marker key of a directory with no children.
func (s *Share) DeleteEmptyDirectory(ctx context.Context, remotePath string) error {
	if err := s.life.Check(ctx, "rmdir"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}
	if p == "/" {
		return share.NewPathError("rmdir", p, share.ErrInvalidPath)
	}

	key := s.dirKey(p)
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return share.RemoteError("rmdir", p, err)
	}

	marker := false
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			marker = true
			continue
		}
		return share.NewPathError("rmdir", p, share.ErrDirectoryNotEmpty)
	}
	if !marker {
		return share.NewPathError("rmdir", p, share.ErrNotFound)
	}
	return s.deleteKey(ctx, "rmdir", p, key)
}

// CreateDirectory puts an empty marker key ending in "/".
func (s *Share) CreateDirectory(ctx context.Context, remotePath string) error {
	if err := s.life.Check(ctx, "mkdir"); err != nil {
		return err
	}
	p, err := share.VerifyAbsolute(remotePath)
	if err != nil {
		return err
	}

	if file, err := s.isFile(ctx, p); err != nil {
		return share.RemoteError("mkdir", p, err)
	} else if file {
		return share.NewPathError("mkdir", p, share.ErrAlreadyExists)
	}
	if dir, err := s.isDir(ctx, p); err != nil {
		return share.RemoteError("mkdir", p, err)
	} else if dir {
		return share.NewPathError("mkdir", p, share.ErrAlreadyExists)
	}
	if parent, err := s.isDir(ctx, share.Dir(p)); err != nil {
		return share.RemoteError("mkdir", p, err)
	} else if !parent {
		return share.NewPathError("mkdir", p, share.ErrNotFound)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.dirKey(p)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return share.RemoteError("mkdir", p, err)
	}
	return nil
}

// ListDirectoryContentNames returns the names of the entries accepted by filter.
func (s *Share) ListDirectoryContentNames(ctx context.Context, remotePath string, filter share.KindFilter) ([]string, error) {
	entries, err := s.list(ctx, remotePath, filter)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// ListDirectoryContent returns the entries accepted by filter.
func (s *Share) ListDirectoryContent(ctx context.Context, remotePath string, filter share.KindFilter) ([]share.DirEntry, error) {
	return s.list(ctx, remotePath, filter)
}

// list pages through one level below remotePath. Common prefixes are
// directories, objects are files. The directory's own marker is skipped.
func (s *Share) list(ctx context.Context, remotePath string, filter share.KindFilter) ([]share.DirEntry, error) {
	if err := s.life.Check(ctx, "list"); err != nil {
		return nil, err
	}
	p, err := share.NormalizeAbsolute(remotePath)
	if err != nil {
		return nil, err
	}
	ok, err := s.isDir(ctx, p)
	if err != nil {
		return nil, share.RemoteError("list", p, err)
	}
	if !ok {
		return nil, share.NewPathError("list", p, share.ErrNotFound)
	}

	key := s.dirKey(p)
	entries := []share.DirEntry{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(key),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, share.RemoteError("list", p, err)
		}
		if filter.Dirs {
			for _, cp := range page.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), key), "/")
				if name == "" {
					continue
				}
				entries = append(entries, share.DirEntry{
					Name: name,
					Kind: share.KindDirectory,
					Mode: uint32(fs.FileMode(0o755)),
				})
			}
		}
		if filter.Files {
			for _, obj := range page.Contents {
				k := aws.ToString(obj.Key)
				if k == key {
					continue
				}
				e := share.DirEntry{
					Name: strings.TrimPrefix(k, key),
					Kind: share.KindFile,
					Mode: uint32(fs.FileMode(0o644)),
				}
				e.SetFileInfo(aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified))
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
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
