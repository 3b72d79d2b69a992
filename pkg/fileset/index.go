package fileset

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxLineLength bounds a single manifest line.
const maxLineLength = 1 << 20

// Index is an immutable, ordered catalogue of the files in a file set, built
// from a manifest.
//
// File paths, sizes and modification times are parallel slices in manifest
// order. The directory list holds the parent directory of each file,
// deduplicated only against the directory recorded just before it: a
// directory that reappears after another one is listed again.
type Index struct {
	filePaths []string
	fileSizes []int64
	modTimes  []time.Time
	dirPaths  []string
	byPath    map[string]int
}

// Build decompresses and parses a manifest.
//
// Each line reads "<size>\t<mtime seconds>\t<relative path>". The mtime may be
// fractional. When filter is non-nil, a line is kept only if the filter
// accepts its raw path (before a leading "./" is stripped). The numeric
// fields of lines the filter drops are not checked.
func Build(r io.Reader, filter PathFilter) (*Index, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	defer gz.Close()

	idx := &Index{byPath: make(map[string]int)}

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Split(strings.TrimSuffix(sc.Text(), "\r"), "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected 3 fields, got %d", ErrManifestCorrupt, lineNo, len(fields))
		}
		if filter != nil && !filter.Accept(fields[2]) {
			continue
		}

		size, mtime, err := parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrManifestCorrupt, lineNo, err)
		}
		idx.add(strings.TrimPrefix(fields[2], "./"), size, mtime)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	return idx, nil
}

// parseFields parses the size and mtime of a split manifest line and checks
// its path.
func parseFields(fields []string) (int64, time.Time, error) {
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || size < 0 {
		return 0, time.Time{}, fmt.Errorf("bad size %q", fields[0])
	}

	secs, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, time.Time{}, fmt.Errorf("bad timestamp %q", fields[1])
	}
	// microsecond resolution keeps decimal timestamps like "...0.123" exact
	whole, frac := math.Modf(secs)
	mtime := time.Unix(int64(whole), int64(math.Round(frac*1e6))*1e3).UTC()

	if fields[2] == "" {
		return 0, time.Time{}, fmt.Errorf("empty path")
	}
	return size, mtime, nil
}

func (idx *Index) add(rel string, size int64, mtime time.Time) {
	if n := strings.LastIndexByte(rel, '/'); n > 0 {
		dir := rel[:n]
		if len(idx.dirPaths) == 0 || idx.dirPaths[len(idx.dirPaths)-1] != dir {
			idx.dirPaths = append(idx.dirPaths, dir)
		}
	}
	if _, dup := idx.byPath[rel]; !dup {
		idx.byPath[rel] = len(idx.filePaths)
	}
	idx.filePaths = append(idx.filePaths, rel)
	idx.fileSizes = append(idx.fileSizes, size)
	idx.modTimes = append(idx.modTimes, mtime)
}

// CountFiles returns the number of files in the index.
func (idx *Index) CountFiles() int { return len(idx.filePaths) }

// CountDirs returns the length of the directory list, duplicates included.
func (idx *Index) CountDirs() int { return len(idx.dirPaths) }

// FilePaths returns a copy of the relative file paths in manifest order.
func (idx *Index) FilePaths() []string { return append([]string(nil), idx.filePaths...) }

// FileSizes returns a copy of the file sizes.
func (idx *Index) FileSizes() []int64 { return append([]int64(nil), idx.fileSizes...) }

// ModTimes returns a copy of the modification times.
func (idx *Index) ModTimes() []time.Time { return append([]time.Time(nil), idx.modTimes...) }

// DirPaths returns a copy of the directory list.
func (idx *Index) DirPaths() []string { return append([]string(nil), idx.dirPaths...) }

// Lookup returns the position of the first file with exactly rel.
func (idx *Index) Lookup(rel string) (int, bool) {
	i, ok := idx.byPath[rel]
	return i, ok
}

// FileInfo returns the metadata of the i-th file.
func (idx *Index) FileInfo(i int) FileInfo {
	return FileInfo{
		Index:   i,
		Total:   len(idx.filePaths),
		RelPath: idx.filePaths[i],
		Size:    idx.fileSizes[i],
		ModTime: idx.modTimes[i],
	}
}
