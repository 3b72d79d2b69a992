//go:build integration

package smb

import (
	"context"
	"os"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	sharetest "github.com/marmos91/fileaccess/pkg/share/testing"
	"github.com/stretchr/testify/require"
)

// TestSMBShare_Integration runs the share suite against a real SMB server.
//
// Prerequisites:
//   - A Samba server exporting a writable share
//   - Run with: go test -tags=integration ./pkg/share/smb/...
//
// To start one:
//
//	docker run --rm -p 445:445 dperson/samba -u "test;test" -s "data;/share;yes;no;no;test"
func TestSMBShare_Integration(t *testing.T) {
	cfg := Config{
		Client: ClientConfig{
			Host:     envOr("SMB_HOST", "localhost"),
			User:     envOr("SMB_USER", "test"),
			Password: envOr("SMB_PASSWORD", "test"),
		},
		Share: envOr("SMB_SHARE", "data"),
	}

	cache := NewClientCache()
	t.Cleanup(func() { _ = cache.Clear() })

	suite := &sharetest.ShareTestSuite{
		SkipSpeedTest: true,
		NewShare: func(t *testing.T) share.Share {
			ctx := context.Background()
			s, err := Open(ctx, cache, cfg)
			require.NoError(t, err)
			clearShare(t, s, "/")
			return s
		},
	}
	suite.Run(t)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// clearShare removes everything below dir.
func clearShare(t *testing.T, s share.Share, dir string) {
	t.Helper()
	ctx := context.Background()
	entries, err := s.ListDirectoryContent(ctx, dir, share.AllKinds)
	require.NoError(t, err)
	for _, e := range entries {
		p := share.Join(dir, e.Name)
		if e.Kind == share.KindDirectory {
			clearShare(t, s, p)
			require.NoError(t, s.DeleteEmptyDirectory(ctx, p))
			continue
		}
		require.NoError(t, s.DeleteFile(ctx, p))
	}
}
