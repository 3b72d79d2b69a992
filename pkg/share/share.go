package share

import (
	"context"
	"io/fs"
	"sync"
	"time"
)

// ============================================================================
// Share Interface
// ============================================================================

// Share is a live handle to a root directory on some storage medium.
//
// Every implementation (local disk, SFTP, SMB, S3, memory) exposes the same
// external semantics, so callers never care where the bytes live. All paths
// are absolute share paths ("/a/b"), resolved under the medium's base
// directory.
//
// Path Rules:
//   - Write and delete targets go through VerifyAbsolute (no "." or "..")
//   - Read and list targets go through NormalizeAbsolute
//
// Lifecycle:
// A share is open from construction until Close. After Close every method
// except Close itself fails with ErrClosed. A share is never reopened.
//
// Thread Safety:
// A share is driven by one logical owner at a time. Implementations that keep
// a single transport session serialize access to it internally.
type Share interface {
	// HostName is the host the medium lives on ("localhost" for local disk).
	HostName() string

	// ShareName is the display name of the share.
	ShareName() string

	// URLBase is a URL identifying the share root. Display only.
	URLBase() string

	// IsLocal reports whether files can be opened in place on this machine.
	IsLocal() bool

	IsClosed() bool

	// Close releases the transport. Calling it twice is harmless.
	Close() error

	// ========================================================================
	// File Operations
	// ========================================================================

	// UploadLocalFile copies a local file to remotePath.
	//
	// With removeLocal set the source is deleted afterwards. Implementations
	// may move the file instead of copying when both ends share a medium.
	//
	// Returns ErrNotFound if the local source is missing. The destination
	// either does not exist or holds the complete payload.
	UploadLocalFile(ctx context.Context, localPath, remotePath string, removeLocal bool) error

	// WriteAllDataToFile creates or overwrites remotePath with exactly data,
	// applying the configured file mode and owner where supported.
	WriteAllDataToFile(ctx context.Context, remotePath string, data []byte) error

	// ReadAllDataFromFile returns the full contents of remotePath.
	ReadAllDataFromFile(ctx context.Context, remotePath string) ([]byte, error)

	// DeleteFile removes a file. Returns ErrNotFound if absent.
	DeleteFile(ctx context.Context, path string) error

	// ========================================================================
	// Directory Operations
	// ========================================================================

	// DeleteEmptyDirectory removes a directory.
	// Returns ErrNotFound if absent and ErrDirectoryNotEmpty if it has entries.
	DeleteEmptyDirectory(ctx context.Context, path string) error

	// CreateDirectory creates a single directory.
	// Returns ErrAlreadyExists if the path exists.
	CreateDirectory(ctx context.Context, path string) error

	// ListDirectoryContentNames returns the names of entries matching filter,
	// in the medium's native order. Returns ErrNotFound if path is missing or
	// is not a directory.
	ListDirectoryContentNames(ctx context.Context, path string, filter KindFilter) ([]string, error)

	// ListDirectoryContent is ListDirectoryContentNames with full entries.
	ListDirectoryContent(ctx context.Context, path string, filter KindFilter) ([]DirEntry, error)

	// EnsureDirectoryExists creates every missing segment of path.
	// Returns true iff at least one directory was created.
	EnsureDirectoryExists(ctx context.Context, path string) (bool, error)

	// ListAllDirectoriesRecursively returns every directory below path in
	// depth-first pre-order. The start path itself is not included.
	ListAllDirectoriesRecursively(ctx context.Context, path string) ([]string, error)

	// PerformSpeedTest measures average per-file write, read and delete times
	// in a scratch directory under baseDir.
	PerformSpeedTest(ctx context.Context, baseDir string, numFiles, fileSize int) (*SpeedTestResult, error)
}

// LocalPather is implemented by shares whose files live on this machine.
type LocalPather interface {
	// LocalPath maps a share path to the real path on local disk.
	LocalPath(remotePath string) (string, error)
}

// Downloader is implemented by shares that can stream a file to local disk
// without buffering it in memory.
type Downloader interface {
	DownloadToLocalFile(ctx context.Context, remotePath, localPath string) error
}

// ============================================================================
// Entries
// ============================================================================

// EntryKind classifies a directory entry.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindOther
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "f"
	case KindDirectory:
		return "d"
	default:
		return "?"
	}
}

// KindFilter selects which kinds of entries a listing returns.
type KindFilter struct {
	Dirs   bool
	Files  bool
	Others bool
}

// AllKinds selects every entry.
var AllKinds = KindFilter{Dirs: true, Files: true, Others: true}

// Accepts reports whether entries of kind k pass the filter.
func (f KindFilter) Accepts(k EntryKind) bool {
	switch k {
	case KindFile:
		return f.Files
	case KindDirectory:
		return f.Dirs
	default:
		return f.Others
	}
}

// DirEntry describes one entry of a directory listing.
//
// Size and ModTimeMillis are set for files only and are nil for directories
// and other entries, even when the medium could report them.
type DirEntry struct {
	Name          string
	Kind          EntryKind
	Mode          uint32
	UID           int
	GID           int
	Size          *int64
	ModTimeMillis *int64
}

// NewDirEntry builds an entry from an fs.FileInfo. uid and gid are passed in
// because how they are obtained differs per medium.
func NewDirEntry(fi fs.FileInfo, uid, gid int) DirEntry {
	e := DirEntry{
		Name: fi.Name(),
		Kind: KindOf(fi.Mode()),
		Mode: UnixMode(fi.Mode()),
		UID:  uid,
		GID:  gid,
	}
	if e.Kind == KindFile {
		e.SetFileInfo(fi.Size(), fi.ModTime())
	}
	return e
}

// UnixMode returns the permission bits of m in unix st_mode layout, including
// setuid, setgid and sticky. The file type bits are not included.
func UnixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}

// SetFileInfo fills size and modification time.
func (e *DirEntry) SetFileInfo(size int64, mtime time.Time) {
	ms := mtime.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	e.Size = &size
	e.ModTimeMillis = &ms
}

// KindOf maps an fs.FileMode to an EntryKind.
func KindOf(m fs.FileMode) EntryKind {
	switch {
	case m.IsRegular():
		return KindFile
	case m.IsDir():
		return KindDirectory
	default:
		return KindOther
	}
}

// ============================================================================
// Options
// ============================================================================

// Options are optional defaults applied to newly created entries. A nil field
// means "leave the medium's default". Shares that cannot apply them ignore them.
type Options struct {
	FileMode *fs.FileMode
	DirMode  *fs.FileMode
	UID      *int
	GID      *int
}

// Owner returns the uid/gid to apply, with -1 meaning "unchanged".
func (o Options) Owner() (uid, gid int, ok bool) {
	uid, gid = -1, -1
	if o.UID != nil {
		uid = *o.UID
	}
	if o.GID != nil {
		gid = *o.GID
	}
	return uid, gid, o.UID != nil || o.GID != nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Lifecycle tracks the one-way Open -> Closed transition of a share.
type Lifecycle struct {
	mu     sync.Mutex
	closed bool
}

// Check returns ErrClosed once the share is closed, and ctx.Err() if the
// context is done.
func (l *Lifecycle) Check(ctx context.Context, op string) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return NewPathError(op, "", ErrClosed)
	}
	return ctx.Err()
}

// MarkClosed flips the state and reports whether this call did it.
func (l *Lifecycle) MarkClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	return true
}

func (l *Lifecycle) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
