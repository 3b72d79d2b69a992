package testing

import (
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
)

// RunDirectoryTests covers CreateDirectory and DeleteEmptyDirectory.
func (suite *ShareTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("CreateAndDelete", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/d")
		assertListed(t, s, "/", "d", true)

		assert.NoError(t, s.DeleteEmptyDirectory(testContext(), "/d"))
		assertListed(t, s, "/", "d", false)
	})

	t.Run("CreateExisting", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/d")
		AssertErrorIs(t, share.ErrAlreadyExists, s.CreateDirectory(testContext(), "/d"))
	})

	t.Run("CreateOverFile", func(t *testing.T) {
		s := suite.NewShare(t)
		mustWrite(t, s, "/f", []byte("x"))
		AssertErrorIs(t, share.ErrAlreadyExists, s.CreateDirectory(testContext(), "/f"))
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		s := suite.NewShare(t)
		AssertErrorIs(t, share.ErrNotFound, s.DeleteEmptyDirectory(testContext(), "/ghost"))
	})

	t.Run("DeleteNonEmpty", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/full")
		mustWrite(t, s, "/full/item", []byte("x"))
		AssertErrorIs(t, share.ErrDirectoryNotEmpty, s.DeleteEmptyDirectory(testContext(), "/full"))
		assertListed(t, s, "/", "full", true)
	})

	t.Run("DeleteNonEmptyWithSubdir", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/outer")
		mustMkdir(t, s, "/outer/inner")
		AssertErrorIs(t, share.ErrDirectoryNotEmpty, s.DeleteEmptyDirectory(testContext(), "/outer"))
	})
}
