package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUploadTests covers UploadLocalFile with and without removing the source.
func (suite *ShareTestSuite) RunUploadTests(t *testing.T) {
	writeLocal := func(t *testing.T, data []byte) string {
		p := filepath.Join(t.TempDir(), "source.bin")
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}

	t.Run("KeepSource", func(t *testing.T) {
		s := suite.NewShare(t)
		data := pattern(100000)
		src := writeLocal(t, data)

		require.NoError(t, s.UploadLocalFile(testContext(), src, "/up.bin", false))
		assert.Equal(t, data, mustRead(t, s, "/up.bin"))
		assert.FileExists(t, src)
	})

	t.Run("RemoveSource", func(t *testing.T) {
		s := suite.NewShare(t)
		data := pattern(513)
		src := writeLocal(t, data)

		require.NoError(t, s.UploadLocalFile(testContext(), src, "/moved.bin", true))
		assert.Equal(t, data, mustRead(t, s, "/moved.bin"))
		assert.NoFileExists(t, src)
	})

	t.Run("MissingSource", func(t *testing.T) {
		s := suite.NewShare(t)
		err := s.UploadLocalFile(testContext(), filepath.Join(t.TempDir(), "absent"), "/x.bin", false)
		AssertErrorIs(t, share.ErrNotFound, err)
		assertListed(t, s, "/", "x.bin", false)
	})

	t.Run("InvalidTarget", func(t *testing.T) {
		s := suite.NewShare(t)
		src := writeLocal(t, []byte("x"))
		AssertErrorIs(t, share.ErrInvalidPath, s.UploadLocalFile(testContext(), src, "/a/../x", false))
	})
}
