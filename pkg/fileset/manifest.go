package fileset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/fileaccess/pkg/share"
)

// ManifestEntry is one line of a manifest.
type ManifestEntry struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// WriteManifest writes entries as a gzip-compressed manifest.
func WriteManifest(w io.Writer, entries []ManifestEntry) error {
	gz := gzip.NewWriter(w)
	bw := bufio.NewWriter(gz)
	for _, e := range entries {
		if strings.ContainsAny(e.RelPath, "\t\n") {
			return fmt.Errorf("manifest: path %q contains a tab or newline", e.RelPath)
		}
		secs := float64(e.ModTime.UnixMilli()) / 1000
		line := strconv.FormatInt(e.Size, 10) + "\t" +
			strconv.FormatFloat(secs, 'f', -1, 64) + "\t" +
			e.RelPath + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return gz.Close()
}

// Scan walks dir on s and returns a manifest entry for every regular file
// below it. Within a directory files come first, sorted by name, followed by
// the subdirectories in name order.
func Scan(ctx context.Context, s share.Share, dir string) ([]ManifestEntry, error) {
	root, err := share.NormalizeAbsolute(dir)
	if err != nil {
		return nil, err
	}
	var out []ManifestEntry
	if err := scanDir(ctx, s, root, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDir(ctx context.Context, s share.Share, dir, rel string, out *[]ManifestEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.ListDirectoryContent(ctx, dir, share.KindFilter{Dirs: true, Files: true})
	if err != nil {
		return err
	}
	slices.SortFunc(entries, func(a, b share.DirEntry) int { return strings.Compare(a.Name, b.Name) })

	for _, e := range entries {
		if e.Kind != share.KindFile {
			continue
		}
		*out = append(*out, ManifestEntry{
			RelPath: joinRel(rel, e.Name),
			Size:    *e.Size,
			ModTime: time.UnixMilli(*e.ModTimeMillis).UTC(),
		})
	}
	for _, e := range entries {
		if e.Kind != share.KindDirectory {
			continue
		}
		if err := scanDir(ctx, s, share.Join(dir, e.Name), joinRel(rel, e.Name), out); err != nil {
			return err
		}
	}
	return nil
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

// Publish scans "<rootDir>/<name>" on s and writes its manifest next to it as
// "<rootDir>/<name>.index.gz". It returns the number of files indexed.
func Publish(ctx context.Context, s share.Share, rootDir, name string) (int, error) {
	entries, err := Scan(ctx, s, share.Join(rootDir, name))
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := WriteManifest(&buf, entries); err != nil {
		return 0, err
	}
	if err := s.WriteAllDataToFile(ctx, ManifestPath(rootDir, name), buf.Bytes()); err != nil {
		return 0, err
	}
	return len(entries), nil
}
