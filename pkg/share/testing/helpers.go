package testing

import (
	"errors"
	"slices"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustWrite writes data and fails the test if it errors.
func mustWrite(t *testing.T, s share.Share, path string, data []byte) {
	t.Helper()
	err := s.WriteAllDataToFile(testContext(), path, data)
	require.NoError(t, err, "WriteAllDataToFile(%s) should succeed", path)
}

// mustRead reads a file and fails the test if it errors.
func mustRead(t *testing.T, s share.Share, path string) []byte {
	t.Helper()
	data, err := s.ReadAllDataFromFile(testContext(), path)
	require.NoError(t, err, "ReadAllDataFromFile(%s) should succeed", path)
	return data
}

// mustMkdir creates a directory and fails the test if it errors.
func mustMkdir(t *testing.T, s share.Share, path string) {
	t.Helper()
	err := s.CreateDirectory(testContext(), path)
	require.NoError(t, err, "CreateDirectory(%s) should succeed", path)
}

// mustListNames lists names and fails the test if it errors.
func mustListNames(t *testing.T, s share.Share, path string, filter share.KindFilter) []string {
	t.Helper()
	names, err := s.ListDirectoryContentNames(testContext(), path, filter)
	require.NoError(t, err, "ListDirectoryContentNames(%s) should succeed", path)
	return names
}

// assertListed checks whether name appears in the listing of dir.
func assertListed(t *testing.T, s share.Share, dir, name string, expected bool) {
	t.Helper()
	names := mustListNames(t, s, dir, share.AllKinds)
	assert.Equal(t, expected, slices.Contains(names, name), "listing of %s: %v", dir, names)
}

// pattern returns n bytes of a repeating, non-zero pattern.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

// findEntry returns the entry named name.
func findEntry(t *testing.T, entries []share.DirEntry, name string) share.DirEntry {
	t.Helper()
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("entry %q not found in listing", name)
	return share.DirEntry{}
}
