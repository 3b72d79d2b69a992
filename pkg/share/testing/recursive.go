package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecursiveTests covers EnsureDirectoryExists and
// ListAllDirectoriesRecursively.
func (suite *ShareTestSuite) RunRecursiveTests(t *testing.T) {
	t.Run("EnsureCreatesAll", func(t *testing.T) {
		s := suite.NewShare(t)

		created, err := s.EnsureDirectoryExists(testContext(), "/a/b/c")
		require.NoError(t, err)
		assert.True(t, created)

		dirs, err := s.ListAllDirectoriesRecursively(testContext(), "/")
		require.NoError(t, err)
		assert.Equal(t, []string{"/a", "/a/b", "/a/b/c"}, dirs)

		created, err = s.EnsureDirectoryExists(testContext(), "/a/b/c")
		require.NoError(t, err)
		assert.False(t, created)

		dirs, err = s.ListAllDirectoriesRecursively(testContext(), "/")
		require.NoError(t, err)
		assert.Len(t, dirs, 3)
	})

	t.Run("EnsurePartial", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/x")

		created, err := s.EnsureDirectoryExists(testContext(), "/x/./y")
		require.NoError(t, err)
		assert.True(t, created)
		assertListed(t, s, "/x", "y", true)
	})

	t.Run("EnsureRoot", func(t *testing.T) {
		s := suite.NewShare(t)
		created, err := s.EnsureDirectoryExists(testContext(), "/")
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("ListPreOrder", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/p")
		mustMkdir(t, s, "/p/q")
		mustMkdir(t, s, "/p/q/r")
		mustWrite(t, s, "/p/q/file.txt", []byte("x"))

		dirs, err := s.ListAllDirectoriesRecursively(testContext(), "/p")
		require.NoError(t, err)
		assert.Equal(t, []string{"/p/q", "/p/q/r"}, dirs)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		s := suite.NewShare(t)
		dirs, err := s.ListAllDirectoriesRecursively(testContext(), "/")
		require.NoError(t, err)
		assert.Empty(t, dirs)
	})
}
