package share_test

import (
	"context"
	"slices"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/marmos91/fileaccess/pkg/share/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staleListing hides some names from directory listings, the way a listing
// taken just before another client created them would.
type staleListing struct {
	share.Share
	hidden map[string]bool

	listed []string
	mkdirs []string
}

func (s *staleListing) ListDirectoryContentNames(ctx context.Context, path string, filter share.KindFilter) ([]string, error) {
	s.listed = append(s.listed, path)
	names, err := s.Share.ListDirectoryContentNames(ctx, path, filter)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(n string) bool { return s.hidden[share.Join(path, n)] }), nil
}

func (s *staleListing) CreateDirectory(ctx context.Context, path string) error {
	s.mkdirs = append(s.mkdirs, path)
	return s.Share.CreateDirectory(ctx, path)
}

func newStaleListing(t *testing.T, existing []string, hidden ...string) *staleListing {
	t.Helper()
	ctx := context.Background()
	m := memory.New(memory.Config{})
	t.Cleanup(func() { _ = m.Close() })
	for _, d := range existing {
		require.NoError(t, m.CreateDirectory(ctx, d))
	}
	s := &staleListing{Share: m, hidden: make(map[string]bool)}
	for _, h := range hidden {
		s.hidden[h] = true
	}
	return s
}

func TestEnsureDirectoryExists_LostRaceIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := newStaleListing(t, []string{"/a", "/a/b"}, "/a")

	created, err := share.EnsureDirectoryExists(ctx, s, "/a/b")
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, []string{"/a"}, s.mkdirs)
	assert.Equal(t, []string{"/", "/a"}, s.listed)
}

func TestEnsureDirectoryExists_ContinuesPastLostRace(t *testing.T) {
	ctx := context.Background()
	s := newStaleListing(t, []string{"/a", "/a/b"}, "/a", "/a/b")

	created, err := share.EnsureDirectoryExists(ctx, s, "/a/b/c")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"/a", "/a/b", "/a/b/c"}, s.mkdirs)

	names, err := s.Share.ListDirectoryContentNames(ctx, "/a/b", share.AllKinds)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names)
}

func TestEnsureDirectoryExists_OtherErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	m := memory.New(memory.Config{ReadOnly: true})
	defer m.Close()

	created, err := share.EnsureDirectoryExists(ctx, m, "/x/y")
	assert.False(t, created)
	assert.ErrorIs(t, err, share.ErrRemoteIO)
}
