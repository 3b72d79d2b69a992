package metrics

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/marmos91/fileaccess/pkg/share"
)

// InstrumentedShare wraps a share and reports every operation to a
// ShareMetrics. Identity and lifecycle methods pass straight through.
type InstrumentedShare struct {
	share.Share
	metrics ShareMetrics
	backend string
}

// Instrument wraps s. A nil m leaves s unwrapped.
func Instrument(s share.Share, m ShareMetrics) share.Share {
	if m == nil {
		return s
	}
	if _, ok := m.(noopShareMetrics); ok {
		return s
	}
	return &InstrumentedShare{Share: s, metrics: m, backend: backendOf(s)}
}

// Unwrap returns the wrapped share.
func (s *InstrumentedShare) Unwrap() share.Share { return s.Share }

func backendOf(s share.Share) string {
	if u, err := url.Parse(s.URLBase()); err == nil && u.Scheme != "" {
		return u.Scheme
	}
	return "unknown"
}

func (s *InstrumentedShare) observe(op string, start time.Time, err error) {
	s.metrics.ObserveOperation(s.backend, op, time.Since(start), err)
}

// UploadLocalFile calls the wrapped share and records the outcome.
func (s *InstrumentedShare) UploadLocalFile(ctx context.Context, localPath, remotePath string, removeLocal bool) error {
	start := time.Now()
	var size int64
	if fi, statErr := os.Stat(localPath); statErr == nil {
		size = fi.Size()
	}
	err := s.Share.UploadLocalFile(ctx, localPath, remotePath, removeLocal)
	s.observe("upload", start, err)
	if err == nil {
		s.metrics.RecordBytes(s.backend, "write", size)
	}
	return err
}

// WriteAllDataToFile calls the wrapped share and records the outcome.
func (s *InstrumentedShare) WriteAllDataToFile(ctx context.Context, remotePath string, data []byte) error {
	start := time.Now()
	err := s.Share.WriteAllDataToFile(ctx, remotePath, data)
	s.observe("write", start, err)
	if err == nil {
		s.metrics.RecordBytes(s.backend, "write", int64(len(data)))
	}
	return err
}

// ReadAllDataFromFile calls the wrapped share and records the outcome.
func (s *InstrumentedShare) ReadAllDataFromFile(ctx context.Context, remotePath string) ([]byte, error) {
	start := time.Now()
	data, err := s.Share.ReadAllDataFromFile(ctx, remotePath)
	s.observe("read", start, err)
	if err == nil {
		s.metrics.RecordBytes(s.backend, "read", int64(len(data)))
	}
	return data, err
}

// DownloadToLocalFile streams through the wrapped share when it can.
func (s *InstrumentedShare) DownloadToLocalFile(ctx context.Context, remotePath, localPath string) error {
	start := time.Now()
	err := share.DownloadFile(ctx, s.Share, remotePath, localPath, 0o600)
	s.observe("download", start, err)
	if err == nil {
		if fi, statErr := os.Stat(localPath); statErr == nil {
			s.metrics.RecordBytes(s.backend, "read", fi.Size())
		}
	}
	return err
}

// LocalPath forwards to the wrapped share so local file sets keep reading
// files in place.
func (s *InstrumentedShare) LocalPath(remotePath string) (string, error) {
	lp, ok := s.Share.(share.LocalPather)
	if !ok {
		return "", fmt.Errorf("local path %s: %w", remotePath, share.ErrInvalidPath)
	}
	return lp.LocalPath(remotePath)
}

// DeleteFile calls the wrapped share and records the outcome.
func (s *InstrumentedShare) DeleteFile(ctx context.Context, path string) error {
	start := time.Now()
	err := s.Share.DeleteFile(ctx, path)
	s.observe("delete", start, err)
	return err
}

// DeleteEmptyDirectory calls the wrapped share and records the outcome.
func (s *InstrumentedShare) DeleteEmptyDirectory(ctx context.Context, path string) error {
	start := time.Now()
	err := s.Share.DeleteEmptyDirectory(ctx, path)
	s.observe("rmdir", start, err)
	return err
}

// CreateDirectory calls the wrapped share and records the outcome.
func (s *InstrumentedShare) CreateDirectory(ctx context.Context, path string) error {
	start := time.Now()
	err := s.Share.CreateDirectory(ctx, path)
	s.observe("mkdir", start, err)
	return err
}

// ListDirectoryContentNames calls the wrapped share and records the outcome.
func (s *InstrumentedShare) ListDirectoryContentNames(ctx context.Context, path string, filter share.KindFilter) ([]string, error) {
	start := time.Now()
	names, err := s.Share.ListDirectoryContentNames(ctx, path, filter)
	s.observe("list", start, err)
	return names, err
}

// ListDirectoryContent calls the wrapped share and records the outcome.
func (s *InstrumentedShare) ListDirectoryContent(ctx context.Context, path string, filter share.KindFilter) ([]share.DirEntry, error) {
	start := time.Now()
	entries, err := s.Share.ListDirectoryContent(ctx, path, filter)
	s.observe("list", start, err)
	return entries, err
}

// EnsureDirectoryExists calls the wrapped share and records the outcome.
func (s *InstrumentedShare) EnsureDirectoryExists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	created, err := s.Share.EnsureDirectoryExists(ctx, path)
	s.observe("ensure_dir", start, err)
	return created, err
}

// ListAllDirectoriesRecursively calls the wrapped share and records the outcome.
func (s *InstrumentedShare) ListAllDirectoriesRecursively(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	dirs, err := s.Share.ListAllDirectoriesRecursively(ctx, path)
	s.observe("list_recursive", start, err)
	return dirs, err
}

// PerformSpeedTest calls the wrapped share and records the outcome.
func (s *InstrumentedShare) PerformSpeedTest(ctx context.Context, baseDir string, numFiles, fileSize int) (*share.SpeedTestResult, error) {
	start := time.Now()
	res, err := s.Share.PerformSpeedTest(ctx, baseDir, numFiles, fileSize)
	s.observe("speedtest", start, err)
	return res, err
}
