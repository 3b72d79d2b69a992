package smb

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	sharetest "github.com/marmos91/fileaccess/pkg/share/testing"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// aferoTransport serves a share from an afero filesystem.
type aferoTransport struct {
	fs       afero.Fs
	unmounts *atomic.Int32
}

func abs(name string) string { return "/" + name }

func (t *aferoTransport) Stat(name string) (os.FileInfo, error) { return t.fs.Stat(abs(name)) }

func (t *aferoTransport) ReadDir(name string) ([]os.FileInfo, error) {
	return afero.ReadDir(t.fs, abs(name))
}

func (t *aferoTransport) Open(name string) (io.ReadCloser, error) { return t.fs.Open(abs(name)) }

func (t *aferoTransport) Create(name string) (io.WriteCloser, error) {
	return t.fs.Create(abs(name))
}

func (t *aferoTransport) Mkdir(name string, perm os.FileMode) error {
	return t.fs.Mkdir(abs(name), perm)
}

func (t *aferoTransport) Remove(name string) error { return t.fs.Remove(abs(name)) }

func (t *aferoTransport) Rename(oldname, newname string) error {
	return t.fs.Rename(abs(oldname), abs(newname))
}

func (t *aferoTransport) Umount() error {
	t.unmounts.Add(1)
	return nil
}

// fakeSession exports one directory per share name.
type fakeSession struct {
	roots    map[string]string
	extra    []string
	unmounts atomic.Int32
	logoffs  atomic.Int32
}

func newFakeSession(t *testing.T, names ...string) *fakeSession {
	t.Helper()
	fs := &fakeSession{roots: make(map[string]string)}
	for _, n := range names {
		fs.roots[n] = t.TempDir()
	}
	return fs
}

func (f *fakeSession) ListSharenames() ([]string, error) {
	names := append([]string{}, f.extra...)
	for n := range f.roots {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeSession) Mount(name string) (Transport, error) {
	root, ok := f.roots[name]
	if !ok {
		return nil, &os.PathError{Op: "mount", Path: name, Err: os.ErrNotExist}
	}
	return &aferoTransport{
		fs:       afero.NewBasePathFs(afero.NewOsFs(), root),
		unmounts: &f.unmounts,
	}, nil
}

func (f *fakeSession) Logoff() error {
	f.logoffs.Add(1)
	return nil
}

func newTestShare(t *testing.T) *Share {
	t.Helper()
	c := newClient(ClientConfig{Host: "fileserver", User: "alice"}, newFakeSession(t, "data"))
	s, err := c.Mount(context.Background(), "data")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return s
}

func TestSMBShare(t *testing.T) {
	suite := &sharetest.ShareTestSuite{
		NewShare: func(t *testing.T) share.Share {
			return newTestShare(t)
		},
	}
	suite.Run(t)
}

func TestIdentity(t *testing.T) {
	s := newTestShare(t)
	assert.Equal(t, "fileserver", s.HostName())
	assert.Equal(t, "smb://fileserver/data/", s.URLBase())
	assert.Equal(t, "data", s.ShareName())
	assert.False(t, s.IsLocal())
	assert.Equal(t, "smb://fileserver/", s.Client().URLBase())
	assert.Equal(t, "alice", s.Client().UserName())
}

func TestWrite_MapsToShareRoot(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession(t, "data")
	c := newClient(ClientConfig{Host: "fileserver"}, sess)
	defer c.Close()

	s, err := c.Mount(ctx, "data")
	require.NoError(t, err)
	require.NoError(t, s.CreateDirectory(ctx, "/reports"))
	require.NoError(t, s.WriteAllDataToFile(ctx, "/reports/q1.csv", []byte("a,b\n")))
	require.NoError(t, s.WriteAllDataToFile(ctx, "/reports/q1.csv", []byte("c,d\n")))

	data, err := os.ReadFile(filepath.Join(sess.roots["data"], "reports", "q1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(data))

	entries, err := os.ReadDir(filepath.Join(sess.roots["data"], "reports"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWrite_OntoDirectory(t *testing.T) {
	ctx := context.Background()
	s := newTestShare(t)
	require.NoError(t, s.CreateDirectory(ctx, "/d"))

	err := s.WriteAllDataToFile(ctx, "/d", []byte("x"))
	sharetest.AssertErrorIs(t, share.ErrRemoteIO, err)
}

func TestMount_Cached(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession(t, "data")
	c := newClient(ClientConfig{Host: "fileserver"}, sess)
	defer c.Close()

	a, err := c.Mount(ctx, "data")
	require.NoError(t, err)
	b, err := c.Mount(ctx, "data")
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, a.Close())
	assert.EqualValues(t, 1, sess.unmounts.Load())

	d, err := c.Mount(ctx, "data")
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.False(t, d.IsClosed())
}

func TestMount_Errors(t *testing.T) {
	ctx := context.Background()
	c := newClient(ClientConfig{Host: "fileserver"}, newFakeSession(t, "data"))
	defer c.Close()

	_, err := c.Mount(ctx, "missing")
	sharetest.AssertErrorIs(t, share.ErrNotFound, err)

	_, err = c.Mount(ctx, "a/b")
	sharetest.AssertErrorIs(t, share.ErrInvalidPath, err)

	_, err = c.Mount(ctx, "")
	sharetest.AssertErrorIs(t, share.ErrInvalidPath, err)
}

func TestListShares(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession(t, "public", "data")
	sess.extra = []string{"IPC$", "ADMIN$"}
	c := newClient(ClientConfig{Host: "fileserver"}, sess)
	defer c.Close()

	names, err := c.ListShareNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN$", "IPC$", "data", "public"}, names)

	infos, err := c.ListShares(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 4)
	assert.True(t, infos[0].IsSpecial())
	assert.Equal(t, TypeSpecial, infos[1].Type)
	assert.Equal(t, TypeDisk, infos[2].Type)
	assert.False(t, infos[3].IsSpecial())
}

func TestClientClose(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession(t, "data", "public")
	c := newClient(ClientConfig{Host: "fileserver"}, sess)

	a, err := c.Mount(ctx, "data")
	require.NoError(t, err)
	b, err := c.Mount(ctx, "public")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.True(t, c.IsClosed())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.EqualValues(t, 2, sess.unmounts.Load())
	assert.EqualValues(t, 1, sess.logoffs.Load())

	_, err = c.ListShareNames(ctx)
	sharetest.AssertErrorIs(t, share.ErrClosed, err)
	_, err = c.Mount(ctx, "data")
	sharetest.AssertErrorIs(t, share.ErrClosed, err)

	// closing a share after its client is a no-op
	require.NoError(t, a.Close())
	assert.EqualValues(t, 2, sess.unmounts.Load())
}

func newTestCache(t *testing.T) (*ClientCache, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	cc := NewClientCache()
	cc.connect = func(_ context.Context, cfg ClientConfig) (*Client, error) {
		dials.Add(1)
		if cfg.Host == "unreachable" {
			return nil, errors.Join(share.ErrRemoteIO, errors.New("connection refused"))
		}
		return newClient(cfg, newFakeSession(t, "data")), nil
	}
	return cc, &dials
}

func TestClientCache_ReusesByCredentials(t *testing.T) {
	ctx := context.Background()
	cc, dials := newTestCache(t)
	defer cc.Clear()

	a, err := cc.Get(ctx, ClientConfig{Host: "h", User: "u", Password: "p"})
	require.NoError(t, err)
	b, err := cc.Get(ctx, ClientConfig{Host: "h", Port: DefaultPort, User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := cc.Get(ctx, ClientConfig{Host: "h", User: "u", Password: "other"})
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	assert.EqualValues(t, 2, dials.Load())
	assert.Equal(t, 2, cc.Len())
}

func TestClientCache_ReconnectsClosed(t *testing.T) {
	ctx := context.Background()
	cc, dials := newTestCache(t)
	defer cc.Clear()

	cfg := ClientConfig{Host: "h", User: "u", Password: "p"}
	a, err := cc.Get(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := cc.Get(ctx, cfg)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.EqualValues(t, 2, dials.Load())
}

func TestClientCache_Clear(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t)

	a, err := cc.Get(ctx, ClientConfig{Host: "h1", User: "u"})
	require.NoError(t, err)
	b, err := cc.Get(ctx, ClientConfig{Host: "h2", User: "u"})
	require.NoError(t, err)

	require.NoError(t, cc.Clear())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, cc.Len())
}

func TestClientCache_ConnectError(t *testing.T) {
	cc, _ := newTestCache(t)
	_, err := cc.Get(context.Background(), ClientConfig{Host: "unreachable"})
	sharetest.AssertErrorIs(t, share.ErrRemoteIO, err)
	assert.Equal(t, 0, cc.Len())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cc, dials := newTestCache(t)
	defer cc.Clear()

	cfg := Config{Client: ClientConfig{Host: "h", User: "u"}, Share: "data"}
	a, err := Open(ctx, cc, cfg)
	require.NoError(t, err)
	b, err := Open(ctx, cc, cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.EqualValues(t, 1, dials.Load())

	_, err = Open(ctx, nil, cfg)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	cfg := ClientConfig{Host: "h", Port: DefaultPort, User: "u", Password: "secret"}
	fp := fingerprint(cfg)
	assert.Len(t, fp, 64)
	assert.NotContains(t, fp, "secret")
	assert.Equal(t, fp, fingerprint(cfg))

	cfg.User = "v"
	assert.NotEqual(t, fp, fingerprint(cfg))
}
