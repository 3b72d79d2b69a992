package testing

import (
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSpeedTests runs a tiny speed test and checks it cleans up after itself.
func (suite *ShareTestSuite) RunSpeedTests(t *testing.T) {
	t.Run("SmallRun", func(t *testing.T) {
		s := suite.NewShare(t)
		mustMkdir(t, s, "/bench")

		res, err := s.PerformSpeedTest(testContext(), "/bench", 5, 128)
		require.NoError(t, err)

		assert.Equal(t, s.URLBase(), res.URLBase)
		assert.Equal(t, s.HostName(), res.HostName)
		assert.Equal(t, s.ShareName(), res.ShareName)
		assert.Equal(t, 5, res.NumFiles)
		assert.Equal(t, 128, res.FileSize)
		assert.GreaterOrEqual(t, res.AvgWriteMs(), 0.0)
		assert.GreaterOrEqual(t, res.AvgReadMs(), 0.0)
		assert.GreaterOrEqual(t, res.AvgDeleteMs(), 0.0)

		assert.Empty(t, mustListNames(t, s, "/bench", share.AllKinds), "scratch directory must be removed")
	})
}
