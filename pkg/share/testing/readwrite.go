package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
)

// RunReadWriteTests covers whole-file writes, reads and deletes.
func (suite *ShareTestSuite) RunReadWriteTests(t *testing.T) {
	for _, size := range []int{0, 1, 4096, 65536 + 3} {
		t.Run(fmt.Sprintf("RoundTrip_%d", size), func(t *testing.T) {
			s := suite.NewShare(t)
			data := pattern(size)
			mustWrite(t, s, "/file.bin", data)
			got := mustRead(t, s, "/file.bin")
			assert.True(t, bytes.Equal(data, got), "round trip of %d bytes", size)
		})
	}

	t.Run("Overwrite", func(t *testing.T) {
		s := suite.NewShare(t)
		mustWrite(t, s, "/file.txt", []byte("first version, quite long"))
		mustWrite(t, s, "/file.txt", []byte("second"))
		assert.Equal(t, []byte("second"), mustRead(t, s, "/file.txt"))
	})

	t.Run("WriteInSubdirectory", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/sub")
		mustWrite(t, s, "/sub/data.txt", []byte("nested"))
		assert.Equal(t, []byte("nested"), mustRead(t, s, "/sub/data.txt"))
		assertListed(t, s, "/sub", "data.txt", true)
	})

	t.Run("ReadMissing", func(t *testing.T) {
		s := suite.NewShare(t)
		_, err := s.ReadAllDataFromFile(testContext(), "/missing.txt")
		AssertErrorIs(t, share.ErrNotFound, err)
	})

	t.Run("DeleteFile", func(t *testing.T) {
		s := suite.NewShare(t)
		mustWrite(t, s, "/doomed.txt", []byte("bye"))
		assertListed(t, s, "/", "doomed.txt", true)

		assert.NoError(t, s.DeleteFile(testContext(), "/doomed.txt"))
		assertListed(t, s, "/", "doomed.txt", false)

		_, err := s.ReadAllDataFromFile(testContext(), "/doomed.txt")
		AssertErrorIs(t, share.ErrNotFound, err)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		s := suite.NewShare(t)
		AssertErrorIs(t, share.ErrNotFound, s.DeleteFile(testContext(), "/nope.txt"))
	})
}
