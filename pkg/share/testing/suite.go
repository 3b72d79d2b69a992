package testing

import (
	"context"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
)

// ShareTestSuite is a conformance suite for share.Share implementations.
// It tests the contract, not implementation details, so the same suite runs
// against local disk, memory, SFTP, SMB and S3 shares.
//
// Usage:
//
//	func TestMyShare(t *testing.T) {
//	    suite := &sharetest.ShareTestSuite{
//	        NewShare: func(t *testing.T) share.Share {
//	            return myshare.New(...)
//	        },
//	    }
//	    suite.Run(t)
//	}
type ShareTestSuite struct {
	// NewShare returns a fresh, empty share for each test. Cleanup should be
	// registered with t.Cleanup.
	NewShare func(t *testing.T) share.Share

	// SkipSpeedTest skips the speed test group for slow media.
	SkipSpeedTest bool
}

// Run executes all tests in the suite.
func (suite *ShareTestSuite) Run(t *testing.T) {
	t.Run("Paths", suite.RunPathTests)
	t.Run("ReadWrite", suite.RunReadWriteTests)
	t.Run("Directories", suite.RunDirectoryTests)
	t.Run("Listing", suite.RunListingTests)
	t.Run("Recursive", suite.RunRecursiveTests)
	t.Run("Upload", suite.RunUploadTests)
	if !suite.SkipSpeedTest {
		t.Run("SpeedTest", suite.RunSpeedTests)
	}
	t.Run("Lifecycle", suite.RunLifecycleTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

func contextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
