package testing

import (
	"sort"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListingTests covers kind filtering and the DirEntry invariants.
func (suite *ShareTestSuite) RunListingTests(t *testing.T) {
	setup := func(t *testing.T) share.Share {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/docs")
		mustMkdir(t, s, "/pics")
		mustWrite(t, s, "/a.txt", pattern(10))
		mustWrite(t, s, "/b.txt", pattern(2048))
		return s
	}

	t.Run("Names", func(t *testing.T) {
		s := setup(t)

		all := mustListNames(t, s, "/", share.AllKinds)
		sort.Strings(all)
		assert.Equal(t, []string{"a.txt", "b.txt", "docs", "pics"}, all)

		dirs := mustListNames(t, s, "/", share.KindFilter{Dirs: true})
		sort.Strings(dirs)
		assert.Equal(t, []string{"docs", "pics"}, dirs)

		files := mustListNames(t, s, "/", share.KindFilter{Files: true})
		sort.Strings(files)
		assert.Equal(t, []string{"a.txt", "b.txt"}, files)

		assert.Empty(t, mustListNames(t, s, "/", share.KindFilter{}))
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		s := setup(t)
		assert.Empty(t, mustListNames(t, s, "/docs", share.AllKinds))
	})

	t.Run("Entries", func(t *testing.T) {
		s := setup(t)
		entries, err := s.ListDirectoryContent(testContext(), "/", share.AllKinds)
		require.NoError(t, err)
		require.Len(t, entries, 4)

		dir := findEntry(t, entries, "docs")
		assert.Equal(t, share.KindDirectory, dir.Kind)
		assert.Nil(t, dir.Size, "directories carry no size")
		assert.Nil(t, dir.ModTimeMillis, "directories carry no mtime")

		file := findEntry(t, entries, "b.txt")
		assert.Equal(t, share.KindFile, file.Kind)
		require.NotNil(t, file.Size)
		require.NotNil(t, file.ModTimeMillis)
		assert.Equal(t, int64(2048), *file.Size)
		assert.GreaterOrEqual(t, *file.ModTimeMillis, int64(0))
	})

	t.Run("EntriesFiltered", func(t *testing.T) {
		s := setup(t)
		entries, err := s.ListDirectoryContent(testContext(), "/", share.KindFilter{Files: true})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, share.KindFile, e.Kind)
			assert.NotNil(t, e.Size)
		}
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		s := setup(t)
		_, err := s.ListDirectoryContentNames(testContext(), "/nowhere", share.AllKinds)
		AssertErrorIs(t, share.ErrNotFound, err)
		_, err = s.ListDirectoryContent(testContext(), "/nowhere", share.AllKinds)
		AssertErrorIs(t, share.ErrNotFound, err)
	})

	t.Run("ListFile", func(t *testing.T) {
		s := setup(t)
		_, err := s.ListDirectoryContentNames(testContext(), "/a.txt", share.AllKinds)
		AssertErrorIs(t, share.ErrNotFound, err)
	})
}
