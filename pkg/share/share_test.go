package share

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnixMode(t *testing.T) {
	tests := []struct {
		in   fs.FileMode
		want uint32
	}{
		{0o644, 0o644},
		{fs.ModeDir | 0o755, 0o755},
		{fs.ModeSetuid | 0o755, 0o4755},
		{fs.ModeSetgid | 0o750, 0o2750},
		{fs.ModeDir | fs.ModeSticky | 0o777, 0o1777},
		{fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky | 0o700, 0o7700},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UnixMode(tt.in), "UnixMode(%v)", tt.in)
	}
}

type fakeInfo struct {
	name string
	mode fs.FileMode
	size int64
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return time.UnixMilli(1500) }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return nil }

func TestNewDirEntry_KeepsSpecialBits(t *testing.T) {
	dir := NewDirEntry(fakeInfo{name: "tmp", mode: fs.ModeDir | fs.ModeSticky | 0o777}, 0, 0)
	assert.Equal(t, KindDirectory, dir.Kind)
	assert.Equal(t, uint32(0o1777), dir.Mode)
	assert.Nil(t, dir.Size)

	file := NewDirEntry(fakeInfo{name: "su", mode: fs.ModeSetuid | 0o755, size: 7}, 1, 2)
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, uint32(0o4755), file.Mode)
	if assert.NotNil(t, file.Size) {
		assert.Equal(t, int64(7), *file.Size)
	}
	if assert.NotNil(t, file.ModTimeMillis) {
		assert.Equal(t, int64(1500), *file.ModTimeMillis)
	}
}
