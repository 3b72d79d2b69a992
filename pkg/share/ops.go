package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/marmos91/fileaccess/internal/logger"
)

// Default speed test parameters.
const (
	DefaultSpeedTestFiles    = 2000
	DefaultSpeedTestFileSize = 65536
)

// dirsOnly selects subdirectories in a listing.
var dirsOnly = KindFilter{Dirs: true}

// EnsureDirectoryExists walks path from the root and creates every missing
// segment through s.CreateDirectory. It reports whether anything was created.
//
// The walk is not atomic. A concurrent creator winning the race for a segment
// surfaces as ErrAlreadyExists, which is treated as "already there".
func EnsureDirectoryExists(ctx context.Context, s Share, path string) (bool, error) {
	p, err := NormalizeAbsolute(path)
	if err != nil {
		return false, err
	}

	created := false
	parent := "/"
	for _, seg := range Split(p) {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		names, err := s.ListDirectoryContentNames(ctx, parent, dirsOnly)
		if err != nil {
			return created, err
		}

		next := Join(parent, seg)
		if !slices.Contains(names, seg) {
			err := s.CreateDirectory(ctx, next)
			switch {
			case err == nil:
				created = true
			case errors.Is(err, ErrAlreadyExists):
			default:
				return created, err
			}
		}
		parent = next
	}
	return created, nil
}

// ListAllDirectoriesRecursively returns every directory below path, depth
// first in pre-order. The medium must not contain directory cycles.
func ListAllDirectoriesRecursively(ctx context.Context, s Share, path string) ([]string, error) {
	p, err := NormalizeAbsolute(path)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if err := walkDirs(ctx, s, p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkDirs(ctx context.Context, s Share, dir string, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names, err := s.ListDirectoryContentNames(ctx, dir, dirsOnly)
	if err != nil {
		return err
	}
	for _, name := range names {
		child := Join(dir, name)
		*out = append(*out, child)
		if err := walkDirs(ctx, s, child, out); err != nil {
			return err
		}
	}
	return nil
}

// SpeedTestResult reports the average per-file duration of each phase.
type SpeedTestResult struct {
	URLBase   string
	HostName  string
	ShareName string

	NumFiles int
	FileSize int

	AvgWrite  time.Duration
	AvgRead   time.Duration
	AvgDelete time.Duration
}

// AvgWriteMs returns the average write time in milliseconds.
func (r *SpeedTestResult) AvgWriteMs() float64 { return millis(r.AvgWrite) }

// AvgReadMs returns the average read time in milliseconds.
func (r *SpeedTestResult) AvgReadMs() float64 { return millis(r.AvgRead) }

// AvgDeleteMs returns the average delete time in milliseconds.
func (r *SpeedTestResult) AvgDeleteMs() float64 { return millis(r.AvgDelete) }

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// PerformSpeedTest writes numFiles zero-filled files of fileSize bytes into a
// fresh scratch directory below baseDir, reads them all back, deletes them and
// finally removes the scratch directory. Phases are timed separately.
//
// Values <= 0 select DefaultSpeedTestFiles and DefaultSpeedTestFileSize.
// A failure part way leaves the scratch directory behind.
func PerformSpeedTest(ctx context.Context, s Share, baseDir string, numFiles, fileSize int) (*SpeedTestResult, error) {
	if numFiles <= 0 {
		numFiles = DefaultSpeedTestFiles
	}
	if fileSize <= 0 {
		fileSize = DefaultSpeedTestFileSize
	}

	base, err := NormalizeAbsolute(baseDir)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Scratch directory
	// ========================================================================

	tmpDir := Join(base, RandomName("tmp_", 64, ""))
	logger.Info("Speed test: creating directory %s on %s", tmpDir, s.URLBase())
	if err := s.CreateDirectory(ctx, tmpDir); err != nil {
		return nil, fmt.Errorf("speed test: %w", err)
	}

	data := make([]byte, fileSize)
	paths := make([]string, numFiles)
	for i := range paths {
		paths[i] = Join(tmpDir, RandomName("tmp_", 32, ".something"))
	}

	// ========================================================================
	// Step 2: Timed phases
	// ========================================================================

	avgWrite, err := timePhase(ctx, paths, func(p string) error {
		return s.WriteAllDataToFile(ctx, p, data)
	})
	if err != nil {
		return nil, fmt.Errorf("speed test write: %w", err)
	}
	logger.Info("Speed test: wrote %d files of %d bytes, %.3f ms per file", numFiles, fileSize, millis(avgWrite))

	avgRead, err := timePhase(ctx, paths, func(p string) error {
		got, err := s.ReadAllDataFromFile(ctx, p)
		if err == nil && len(got) != fileSize {
			err = RemoteError("read", p, fmt.Errorf("short read: %d of %d bytes", len(got), fileSize))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("speed test read: %w", err)
	}
	logger.Info("Speed test: read %d files, %.3f ms per file", numFiles, millis(avgRead))

	avgDelete, err := timePhase(ctx, paths, func(p string) error {
		return s.DeleteFile(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("speed test delete: %w", err)
	}
	logger.Info("Speed test: deleted %d files, %.3f ms per file", numFiles, millis(avgDelete))

	// ========================================================================
	// Step 3: Cleanup
	// ========================================================================

	if err := s.DeleteEmptyDirectory(ctx, tmpDir); err != nil {
		return nil, fmt.Errorf("speed test cleanup: %w", err)
	}

	return &SpeedTestResult{
		URLBase:   s.URLBase(),
		HostName:  s.HostName(),
		ShareName: s.ShareName(),
		NumFiles:  numFiles,
		FileSize:  fileSize,
		AvgWrite:  avgWrite,
		AvgRead:   avgRead,
		AvgDelete: avgDelete,
	}, nil
}

func timePhase(ctx context.Context, paths []string, fn func(string) error) (time.Duration, error) {
	start := time.Now()
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := fn(p); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(len(paths)), nil
}

// DownloadFile copies remotePath from s into localPath.
//
// Shares implementing Downloader stream the file; others fall back to
// ReadAllDataFromFile. localPath is removed again if the copy fails.
func DownloadFile(ctx context.Context, s Share, remotePath, localPath string, perm os.FileMode) error {
	if d, ok := s.(Downloader); ok {
		if err := d.DownloadToLocalFile(ctx, remotePath, localPath); err != nil {
			_ = os.Remove(localPath)
			return err
		}
		return nil
	}

	data, err := s.ReadAllDataFromFile(ctx, remotePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, perm); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}

// CopyToFile streams r into a new file at localPath with perm, removing the
// partial file if the copy fails.
func CopyToFile(localPath string, r io.Reader, perm os.FileMode) error {
	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(localPath)
		return err
	}
	return nil
}

// OpenLocalSource opens a local upload source, mapping a missing file to
// ErrNotFound.
func OpenLocalSource(localPath string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, NewPathError("upload", localPath, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", localPath, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, nil, NewPathError("upload", localPath, ErrNotFound)
	}
	return f, fi, nil
}

// TempSibling returns a hidden temporary name next to target, used for
// write-then-rename.
func TempSibling(target string) string {
	return Join(Dir(target), "."+Base(target)+"."+RandomName("", 12, ".tmp"))
}

// LocalTempSibling is TempSibling for OS paths.
func LocalTempSibling(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"."+RandomName("", 12, ".tmp"))
}
