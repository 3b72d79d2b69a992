package share

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAbsolute(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/a", "/a"},
		{"/a/b/c", "/a/b/c"},
		{"/a/b/../c", "/a/c"},
		{"/a/./b", "/a/b"},
		{"/a/..", "/"},
		{"/./.", "/"},
		{"/a/b/../../c/./d", "/c/d"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeAbsolute(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAbsolute_Invalid(t *testing.T) {
	for _, in := range []string{"", "a/b", "./a", "/..", "/../x", "/a/../../b"} {
		_, err := NormalizeAbsolute(in)
		assert.True(t, errors.Is(err, ErrInvalidPath), "input %q", in)
	}
}

func TestVerifyAbsolute(t *testing.T) {
	for _, in := range []string{"/", "/a", "/a/b.txt", "/a/.hidden/b..c"} {
		got, err := VerifyAbsolute(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, got)

		// clean paths are fixed points of normalization
		norm, err := NormalizeAbsolute(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, norm)
	}

	for _, in := range []string{"", "rel", "/a/./b", "/a/../b", "/.", "/.."} {
		_, err := VerifyAbsolute(in)
		assert.True(t, errors.Is(err, ErrInvalidPath), "input %q", in)
	}
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "/a/b", Join("/a", "b"))
	assert.Equal(t, "/b", Join("/", "b"))
	assert.Equal(t, "/", Join("/"))
	assert.Equal(t, "/a/b/c", Join("/a/", "/b/", "c"))

	assert.Equal(t, []string{"a", "b"}, Split("/a/b"))
	assert.Empty(t, Split("/"))

	assert.Equal(t, "c", Base("/a/b/c"))
	assert.Equal(t, "/", Base("/"))
	assert.Equal(t, "/a/b", Dir("/a/b/c"))
	assert.Equal(t, "/", Dir("/a"))
	assert.Equal(t, "/", Dir("/"))
}

func TestRandomName(t *testing.T) {
	n := RandomName("tmp_", 64, ".something")
	assert.Len(t, n, 4+64+10)
	assert.Regexp(t, `^tmp_[A-Za-z0-9]{64}\.something$`, n)
	assert.Len(t, RandomName("", 0, ""), DefaultRandomLength)
	assert.NotEqual(t, RandomName("", 32, ""), RandomName("", 32, ""))
}

func TestMapError(t *testing.T) {
	assert.Nil(t, MapError("read", "/x", nil))

	err := MapError("read", "/x", errors.New("connection reset"))
	assert.True(t, errors.Is(err, ErrRemoteIO))

	err = MapError("read", "/x", NewPathError("read", "/x", ErrClosed))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, errors.Is(err, ErrRemoteIO))
}

func TestKindFilter(t *testing.T) {
	assert.True(t, AllKinds.Accepts(KindOther))
	f := KindFilter{Files: true}
	assert.True(t, f.Accepts(KindFile))
	assert.False(t, f.Accepts(KindDirectory))
	assert.Equal(t, "d", KindDirectory.String())
	assert.Equal(t, "?", KindOther.String())
}
