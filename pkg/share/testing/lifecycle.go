package testing

import (
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
)

// RunLifecycleTests checks the one-way Open -> Closed transition.
func (suite *ShareTestSuite) RunLifecycleTests(t *testing.T) {
	t.Run("ClosedRejectsEverything", func(t *testing.T) {
		s := suite.NewShare(t)
		mustWrite(t, s, "/f", []byte("x"))
		assert.False(t, s.IsClosed())

		assert.NoError(t, s.Close())
		assert.True(t, s.IsClosed())

		ctx := testContext()
		AssertErrorIs(t, share.ErrClosed, s.WriteAllDataToFile(ctx, "/g", nil))
		_, err := s.ReadAllDataFromFile(ctx, "/f")
		AssertErrorIs(t, share.ErrClosed, err)
		AssertErrorIs(t, share.ErrClosed, s.DeleteFile(ctx, "/f"))
		AssertErrorIs(t, share.ErrClosed, s.CreateDirectory(ctx, "/d"))
		AssertErrorIs(t, share.ErrClosed, s.DeleteEmptyDirectory(ctx, "/d"))
		_, err = s.ListDirectoryContentNames(ctx, "/", share.AllKinds)
		AssertErrorIs(t, share.ErrClosed, err)
		_, err = s.ListDirectoryContent(ctx, "/", share.AllKinds)
		AssertErrorIs(t, share.ErrClosed, err)
		_, err = s.EnsureDirectoryExists(ctx, "/a")
		AssertErrorIs(t, share.ErrClosed, err)
		_, err = s.ListAllDirectoriesRecursively(ctx, "/")
		AssertErrorIs(t, share.ErrClosed, err)
		_, err = s.PerformSpeedTest(ctx, "/", 1, 1)
		AssertErrorIs(t, share.ErrClosed, err)
		AssertErrorIs(t, share.ErrClosed, s.UploadLocalFile(ctx, "/tmp/whatever", "/u", false))
	})

	t.Run("CloseTwice", func(t *testing.T) {
		s := suite.NewShare(t)
		assert.NoError(t, s.Close())
		assert.NoError(t, s.Close())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := suite.NewShare(t)
		ctx, cancel := contextWithCancel()
		cancel()
		assert.Error(t, s.WriteAllDataToFile(ctx, "/f", []byte("x")))
	})
}
