package testing

import (
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
)

// RunPathTests checks that malformed paths are rejected before any I/O.
func (suite *ShareTestSuite) RunPathTests(t *testing.T) {
	t.Run("WriteRejectsDotSegments", func(t *testing.T) {
		s := suite.NewShare(t)
		AssertErrorIs(t, share.ErrInvalidPath, s.WriteAllDataToFile(testContext(), "/a/./b", []byte("x")))
		AssertErrorIs(t, share.ErrInvalidPath, s.WriteAllDataToFile(testContext(), "/a/../b", []byte("x")))
	})

	t.Run("RelativePathRejected", func(t *testing.T) {
		s := suite.NewShare(t)
		AssertErrorIs(t, share.ErrInvalidPath, s.WriteAllDataToFile(testContext(), "relative.txt", nil))
		AssertErrorIs(t, share.ErrInvalidPath, s.CreateDirectory(testContext(), ""))
		_, err := s.ReadAllDataFromFile(testContext(), "x")
		AssertErrorIs(t, share.ErrInvalidPath, err)
	})

	t.Run("RootEscapeRejected", func(t *testing.T) {
		s := suite.NewShare(t)
		_, err := s.ReadAllDataFromFile(testContext(), "/../etc/passwd")
		AssertErrorIs(t, share.ErrInvalidPath, err)
		_, err = s.ListDirectoryContentNames(testContext(), "/..", share.AllKinds)
		AssertErrorIs(t, share.ErrInvalidPath, err)
		AssertErrorIs(t, share.ErrInvalidPath, s.DeleteFile(testContext(), "/../x"))
	})

	t.Run("ReadNormalizes", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/dir")
		mustWrite(t, s, "/dir/file.txt", []byte("hello"))

		data := mustRead(t, s, "/dir/../dir/./file.txt")
		if string(data) != "hello" {
			t.Errorf("expected normalized read to return file content, got %q", data)
		}
	})
}
