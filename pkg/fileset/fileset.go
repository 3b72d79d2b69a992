package fileset

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"os"
	"path"
	"time"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/marmos91/fileaccess/pkg/staging"
)

// ManifestSuffix is appended to the file set name to form the manifest name.
const ManifestSuffix = ".index.gz"

// ManifestPath returns the share path of the manifest for a file set.
func ManifestPath(rootDir, name string) string {
	return share.Join(rootDir, name+ManifestSuffix)
}

// FileInfo is the metadata of one file in a file set.
type FileInfo struct {
	Index   int
	Total   int
	RelPath string
	Size    int64
	ModTime time.Time
}

// DirInfo is one entry of the directory list.
type DirInfo struct {
	Index   int
	Total   int
	RelPath string
}

// File is a file made available on local disk.
//
// When Ephemeral is true, LocalPath is a staged copy owned by the caller and
// must be released (FileSet.Release or os.Remove) once processed; forgetting
// to do so leaks disk space. When Ephemeral is false, LocalPath is the real
// file and must not be deleted.
type File struct {
	FileInfo
	LocalPath string
	Ephemeral bool
}

// OpenOptions select the file set to open.
type OpenOptions struct {
	// RootDir is the share directory holding "<Name>.index.gz" and "<Name>/".
	RootDir string
	Name    string

	// Filter restricts the files taken from the manifest.
	Filter PathFilter

	// Staging receives copies of remote files. It is cleared on open. When
	// nil and the share is not local, a temporary area is created and
	// removed again on Close.
	Staging *staging.Area
}

// FileSet walks a file set described by a manifest on a share.
//
// The metadata iterators (FilePaths, DirPaths) only read the in-memory index
// and keep working after Close. Files and FileByPath need the share.
type FileSet struct {
	share    share.Share
	index    *Index
	filesDir string
	local    share.LocalPather

	area     *staging.Area
	ownsArea bool
}

// Open reads and parses the manifest of a file set from s.
func Open(ctx context.Context, s share.Share, opts OpenOptions) (*FileSet, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("fileset: name is required")
	}
	root := opts.RootDir
	if root == "" {
		root = "/"
	}
	filesDir, err := share.NormalizeAbsolute(share.Join(root, opts.Name))
	if err != nil {
		return nil, err
	}

	fs := &FileSet{share: s, filesDir: filesDir, area: opts.Staging}
	if lp, ok := s.(share.LocalPather); ok && s.IsLocal() {
		fs.local = lp
	}

	// ========================================================================
	// Step 1: Staging area for remote shares
	// ========================================================================

	if fs.local == nil {
		if fs.area == nil {
			fs.area, err = staging.NewTemp("fileaccess-", staging.Options{})
			if err != nil {
				return nil, err
			}
			fs.ownsArea = true
		} else if err := fs.area.Clear(); err != nil {
			return nil, err
		}
	}

	// ========================================================================
	// Step 2: Load the manifest
	// ========================================================================

	idx, err := fs.loadIndex(ctx, ManifestPath(root, opts.Name), opts.Filter)
	if err != nil {
		fs.dropArea()
		return nil, err
	}
	fs.index = idx

	logger.Info("File set %s opened on %s: %d files, %d directories",
		opts.Name, s.URLBase(), idx.CountFiles(), idx.CountDirs())
	return fs, nil
}

// NewFromIndex wraps an already built index. filesDir is the share directory
// the relative paths are resolved against.
func NewFromIndex(s share.Share, idx *Index, filesDir string, area *staging.Area) (*FileSet, error) {
	dir, err := share.NormalizeAbsolute(filesDir)
	if err != nil {
		return nil, err
	}
	fs := &FileSet{share: s, index: idx, filesDir: dir, area: area}
	if lp, ok := s.(share.LocalPather); ok && s.IsLocal() {
		fs.local = lp
	}
	if fs.local == nil && fs.area == nil {
		return nil, fmt.Errorf("fileset: a staging area is required for %s", s.URLBase())
	}
	return fs, nil
}

// loadIndex streams the manifest through the staging area when the share can
// download to disk, and reads it into memory otherwise.
func (fs *FileSet) loadIndex(ctx context.Context, manifest string, filter PathFilter) (*Index, error) {
	if _, ok := fs.share.(share.Downloader); ok && fs.local == nil {
		tmp, err := fs.area.CreateScratchPath("", 0, ManifestSuffix)
		if err != nil {
			return nil, err
		}
		defer func() { _ = fs.area.Release(tmp) }()

		if err := share.DownloadFile(ctx, fs.share, manifest, tmp, fs.area.FileMode()); err != nil {
			return nil, err
		}
		f, err := os.Open(tmp)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return Build(f, filter)
	}

	data, err := fs.share.ReadAllDataFromFile(ctx, manifest)
	if err != nil {
		return nil, err
	}
	return Build(bytes.NewReader(data), filter)
}

// Index returns the underlying index.
func (fs *FileSet) Index() *Index { return fs.index }

// Share returns the share the file set lives on.
func (fs *FileSet) Share() share.Share { return fs.share }

func (fs *FileSet) CountFiles() int { return fs.index.CountFiles() }
func (fs *FileSet) CountDirs() int  { return fs.index.CountDirs() }

// Close closes the share and removes a staging area created by Open.
// Staged files already handed out are removed along with such an area.
func (fs *FileSet) Close() error {
	err := fs.share.Close()
	fs.dropArea()
	return err
}

func (fs *FileSet) dropArea() {
	if fs.ownsArea && fs.area != nil {
		if err := fs.area.Remove(); err != nil {
			logger.Warn("File set: failed to remove staging area %s: %v", fs.area.Dir(), err)
		}
	}
}

// ============================================================================
// Iteration
// ============================================================================

// Files yields every file of the set (optionally narrowed by filter) in
// manifest order, each available on local disk.
//
// Files on a local share point at the real file. Files on any other share are
// downloaded into the staging area right before they are yielded. Stopping the
// loop early is safe: nothing is staged for entries not yet reached, but the
// caller still owns every ephemeral file already yielded. A failure is yielded
// as the error of the last element and ends the sequence.
//
// Each call starts a fresh pass over the immutable index.
func (fs *FileSet) Files(ctx context.Context, filter PathFilter) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		selected := fs.selected(filter)
		for n, i := range selected {
			if err := ctx.Err(); err != nil {
				yield(File{}, err)
				return
			}

			f, err := fs.materialize(ctx, i)
			if err != nil {
				yield(File{}, err)
				return
			}
			f.Index = n
			f.Total = len(selected)

			if !yield(f, nil) {
				return
			}
		}
	}
}

func (fs *FileSet) selected(filter PathFilter) []int {
	out := make([]int, 0, fs.index.CountFiles())
	for i, p := range fs.index.filePaths {
		if filter == nil || filter.Accept(p) {
			out = append(out, i)
		}
	}
	return out
}

// FilePaths yields file metadata only. It never touches the share.
func (fs *FileSet) FilePaths() iter.Seq[FileInfo] {
	return func(yield func(FileInfo) bool) {
		for i := range fs.index.filePaths {
			if !yield(fs.index.FileInfo(i)) {
				return
			}
		}
	}
}

// DirPaths yields the directory list, duplicates included.
func (fs *FileSet) DirPaths() iter.Seq[DirInfo] {
	return func(yield func(DirInfo) bool) {
		total := len(fs.index.dirPaths)
		for i, d := range fs.index.dirPaths {
			if !yield(DirInfo{Index: i, Total: total, RelPath: d}) {
				return
			}
		}
	}
}

// FileByPath returns the file with exactly relPath, staged like in Files.
func (fs *FileSet) FileByPath(ctx context.Context, relPath string) (File, error) {
	i, ok := fs.index.Lookup(relPath)
	if !ok {
		return File{}, share.NewPathError("lookup", relPath, share.ErrNotFound)
	}
	return fs.materialize(ctx, i)
}

// Release deletes the staged copy of an ephemeral file. Real files are left
// alone.
func (fs *FileSet) Release(f File) error {
	if !f.Ephemeral {
		return nil
	}
	if fs.area == nil {
		return os.Remove(f.LocalPath)
	}
	return fs.area.Release(f.LocalPath)
}

// RemotePath returns the share path of a relative file path.
func (fs *FileSet) RemotePath(relPath string) (string, error) {
	return share.NormalizeAbsolute(share.Join(fs.filesDir, relPath))
}

func (fs *FileSet) materialize(ctx context.Context, i int) (File, error) {
	f := File{FileInfo: fs.index.FileInfo(i)}

	remote, err := fs.RemotePath(f.RelPath)
	if err != nil {
		return File{}, err
	}

	if fs.local != nil {
		if fs.share.IsClosed() {
			return File{}, share.NewPathError("stage", remote, share.ErrClosed)
		}
		f.LocalPath, err = fs.local.LocalPath(remote)
		if err != nil {
			return File{}, err
		}
		return f, nil
	}

	tmp, err := fs.area.CreateScratchPath("", 0, path.Ext(f.RelPath))
	if err != nil {
		return File{}, err
	}
	if err := share.DownloadFile(ctx, fs.share, remote, tmp, fs.area.FileMode()); err != nil {
		_ = fs.area.Release(tmp)
		return File{}, err
	}
	fs.area.Unreserve(tmp)
	f.LocalPath = tmp
	f.Ephemeral = true
	return f, nil
}
