package fileset

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzManifest(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(text))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func mustBuild(t *testing.T, text string, filter PathFilter) *Index {
	t.Helper()
	idx, err := Build(bytes.NewReader(gzManifest(t, text)), filter)
	require.NoError(t, err)
	return idx
}

func TestBuild_Basic(t *testing.T) {
	idx := mustBuild(t, "10\t1000000000\tfoo.txt\n20\t1000000001\tbar/baz.txt\n", nil)

	assert.Equal(t, 2, idx.CountFiles())
	assert.Equal(t, []string{"foo.txt", "bar/baz.txt"}, idx.FilePaths())
	assert.Equal(t, []int64{10, 20}, idx.FileSizes())
	assert.Equal(t, []string{"bar"}, idx.DirPaths())
	assert.Equal(t, 1, idx.CountDirs())

	times := idx.ModTimes()
	assert.Equal(t, time.Unix(1000000000, 0).UTC(), times[0])
	assert.Equal(t, time.Unix(1000000001, 0).UTC(), times[1])
}

func TestBuild_FractionalTimestamp(t *testing.T) {
	idx := mustBuild(t, "1\t1500000000.25\ta\n", nil)
	assert.Equal(t, time.Unix(1500000000, 250000000).UTC(), idx.ModTimes()[0])
}

func TestBuild_StripsDotSlash(t *testing.T) {
	idx := mustBuild(t, "1\t0\t./top.txt\n2\t0\t./d/x.txt\n", nil)
	assert.Equal(t, []string{"top.txt", "d/x.txt"}, idx.FilePaths())
	assert.Equal(t, []string{"d"}, idx.DirPaths())
}

func TestBuild_DirectoryDedupIsAdjacentOnly(t *testing.T) {
	manifest := strings.Join([]string{
		"1\t0\ta/1",
		"1\t0\ta/2",
		"1\t0\tb/1",
		"1\t0\ta/3",
		"1\t0\tnoparent",
		"1\t0\ta/b/c",
	}, "\n") + "\n"

	idx := mustBuild(t, manifest, nil)
	assert.Equal(t, []string{"a", "b", "a", "a/b"}, idx.DirPaths())
	assert.Equal(t, 4, idx.CountDirs())
	assert.Equal(t, 6, idx.CountFiles())
}

func TestBuild_FilterSeesRawPath(t *testing.T) {
	manifest := "1\t0\t./keep/a\n2\t0\t./drop/b\n3\t0\tkeep/c\n"

	idx := mustBuild(t, manifest, PrefixFilter{Prefix: "./keep"})
	assert.Equal(t, []string{"keep/a"}, idx.FilePaths())
}

func TestBuild_FilterKeepsColumnsAligned(t *testing.T) {
	manifest := "1\t100\tx/one\n2\t200\ty/two\n3\t300\tx/three\n"

	idx := mustBuild(t, manifest, PrefixFilter{Prefix: "x/"})
	assert.Equal(t, []string{"x/one", "x/three"}, idx.FilePaths())
	assert.Equal(t, []int64{1, 3}, idx.FileSizes())
	assert.Equal(t, time.Unix(300, 0).UTC(), idx.ModTimes()[1])
	assert.Equal(t, []string{"x"}, idx.DirPaths())
}

func TestBuild_FilterRunsBeforeNumericParsing(t *testing.T) {
	manifest := "1\t0\tkeep/a\nbogus\tnever\tdrop/b\n2\t5\tkeep/c\n"

	idx := mustBuild(t, manifest, PrefixFilter{Prefix: "keep/"})
	assert.Equal(t, []string{"keep/a", "keep/c"}, idx.FilePaths())
	assert.Equal(t, []int64{1, 2}, idx.FileSizes())

	_, err := Build(bytes.NewReader(gzManifest(t, manifest)), nil)
	assert.ErrorIs(t, err, ErrManifestCorrupt)
}

func TestBuild_FieldCountCheckedForFilteredLines(t *testing.T) {
	manifest := "1\t0\tkeep/a\ndrop/b\n"

	_, err := Build(bytes.NewReader(gzManifest(t, manifest)), PrefixFilter{Prefix: "keep/"})
	assert.ErrorIs(t, err, ErrManifestCorrupt)
}

func TestBuild_TrailingNewlineOptional(t *testing.T) {
	idx := mustBuild(t, "1\t0\ta\n2\t0\tb", nil)
	assert.Equal(t, []string{"a", "b"}, idx.FilePaths())
}

func TestBuild_Empty(t *testing.T) {
	idx := mustBuild(t, "", nil)
	assert.Zero(t, idx.CountFiles())
	assert.Zero(t, idx.CountDirs())
}

func TestBuild_Corrupt(t *testing.T) {
	tests := map[string]string{
		"TwoFields":    "10\tfoo.txt\n",
		"FourFields":   "10\t0\tfoo\tbar\n",
		"BadSize":      "ten\t0\tfoo.txt\n",
		"NegativeSize": "-1\t0\tfoo.txt\n",
		"BadTime":      "10\tyesterday\tfoo.txt\n",
		"EmptyPath":    "10\t0\t\n",
		"BlankLine":    "1\t0\ta\n\n2\t0\tb\n",
	}
	for name, manifest := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Build(bytes.NewReader(gzManifest(t, manifest)), nil)
			assert.ErrorIs(t, err, ErrManifestCorrupt)
		})
	}

	t.Run("NotGzip", func(t *testing.T) {
		_, err := Build(strings.NewReader("10\t0\tfoo.txt\n"), nil)
		assert.ErrorIs(t, err, ErrManifestCorrupt)
	})
}

func TestLookup(t *testing.T) {
	idx := mustBuild(t, "1\t0\ta\n2\t0\tb\n", nil)
	i, ok := idx.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = idx.Lookup("c")
	assert.False(t, ok)
}

func TestWriteManifest_RoundTrip(t *testing.T) {
	entries := []ManifestEntry{
		{RelPath: "a.txt", Size: 3, ModTime: time.UnixMilli(1700000000123).UTC()},
		{RelPath: "dir/b.txt", Size: 0, ModTime: time.Unix(42, 0).UTC()},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, entries))

	idx, err := Build(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, idx.FilePaths())
	assert.Equal(t, []int64{3, 0}, idx.FileSizes())
	assert.Equal(t, int64(1700000000123), idx.ModTimes()[0].UnixMilli())

	assert.Error(t, WriteManifest(&bytes.Buffer{}, []ManifestEntry{{RelPath: "bad\tname"}}))
}
