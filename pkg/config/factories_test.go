package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/marmos91/fileaccess/pkg/share/local"
	"github.com/marmos91/fileaccess/pkg/share/memory"
)

func TestCreateShare_Local(t *testing.T) {
	ctx := context.Background()
	f := &Factory{}
	defer f.Close()

	dir := t.TempDir()
	s, err := f.CreateShare(ctx, ShareConfig{Type: "local", Local: map[string]any{"path": dir}})
	if err != nil {
		t.Fatalf("Failed to create local share: %v", err)
	}
	defer s.Close()

	if _, ok := s.(*local.Share); !ok {
		t.Fatalf("Expected *local.Share, got %T", s)
	}
	if !s.IsLocal() {
		t.Error("Expected local share to be local")
	}
}

func TestCreateShare_LocalCreate(t *testing.T) {
	ctx := context.Background()
	f := &Factory{}

	dir := filepath.Join(t.TempDir(), "new", "base")
	s, err := f.CreateShare(ctx, ShareConfig{Type: "local", Local: map[string]any{"path": dir, "create": "true"}})
	if err != nil {
		t.Fatalf("Failed to create local share: %v", err)
	}
	defer s.Close()

	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("Expected base dir to be created: %v", err)
	}
}

func TestCreateShare_LocalMissingPath(t *testing.T) {
	f := &Factory{}
	_, err := f.CreateShare(context.Background(), ShareConfig{Type: "local", Local: map[string]any{}})
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateShare_MemoryPooledByName(t *testing.T) {
	ctx := context.Background()
	f := &Factory{}

	a, err := f.CreateShareFromURL(ctx, "mem://scratch")
	if err != nil {
		t.Fatalf("Failed to create memory share: %v", err)
	}
	if err := a.WriteAllDataToFile(ctx, "/hello.txt", []byte("hi")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = a.Close()

	b, err := f.CreateShareFromURL(ctx, "mem://scratch")
	if err != nil {
		t.Fatalf("Failed to reopen memory share: %v", err)
	}
	data, err := b.ReadAllDataFromFile(ctx, "/hello.txt")
	if err != nil || string(data) != "hi" {
		t.Errorf("Expected pooled memory share to keep data, got %q, %v", data, err)
	}

	other, err := f.CreateShareFromURL(ctx, "mem://other")
	if err != nil {
		t.Fatalf("Failed to create memory share: %v", err)
	}
	if _, err := other.ReadAllDataFromFile(ctx, "/hello.txt"); !errors.Is(err, share.ErrNotFound) {
		t.Errorf("Expected separate namespace, got %v", err)
	}
}

func TestCreateShare_MemoryReadOnly(t *testing.T) {
	ctx := context.Background()
	f := &Factory{}

	s, err := f.CreateShare(ctx, ShareConfig{Type: "memory", Memory: map[string]any{"name": "ro", "read_only": true}})
	if err != nil {
		t.Fatalf("Failed to create memory share: %v", err)
	}
	if _, ok := s.(*memory.Share); !ok {
		t.Fatalf("Expected *memory.Share, got %T", s)
	}
	if err := s.WriteAllDataToFile(ctx, "/x", []byte("x")); !errors.Is(err, share.ErrRemoteIO) {
		t.Errorf("Expected read-only share to reject writes, got %v", err)
	}
}

func TestCreateShare_MissingRequiredOptions(t *testing.T) {
	ctx := context.Background()
	f := &Factory{}
	defer f.Close()

	cases := []struct {
		sc   ShareConfig
		want string
	}{
		{ShareConfig{Type: "sftp", SFTP: map[string]any{}}, "host is required"},
		{ShareConfig{Type: "smb", SMB: map[string]any{"share": "x"}}, "host is required"},
		{ShareConfig{Type: "smb", SMB: map[string]any{"host": "h"}}, "share is required"},
		{ShareConfig{Type: "s3", S3: map[string]any{}}, "bucket is required"},
	}
	for _, c := range cases {
		_, err := f.CreateShare(ctx, c.sc)
		if err == nil {
			t.Errorf("%s: expected error", c.sc.Type)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: expected %q, got: %v", c.sc.Type, c.want, err)
		}
	}
}

func TestCreateShare_DecodeError(t *testing.T) {
	f := &Factory{}
	_, err := f.CreateShare(context.Background(), ShareConfig{Type: "sftp", SFTP: map[string]any{"host": "h", "port": "not-a-port"}})
	if err == nil || !strings.Contains(err.Error(), "failed to decode") {
		t.Errorf("Expected decode error, got: %v", err)
	}
}

func TestCreateShare_UnknownType(t *testing.T) {
	f := &Factory{}
	_, err := f.CreateShare(context.Background(), ShareConfig{Type: "ftp"})
	if err == nil || !strings.Contains(err.Error(), "unknown share type") {
		t.Errorf("Expected unknown type error, got: %v", err)
	}
}

func TestOpenShare_ByNameOrURL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &Config{Shares: []ShareConfig{
		{Name: "home", Type: "local", Local: map[string]any{"path": dir}},
	}}
	f := &Factory{}

	s, err := f.OpenShare(ctx, cfg, "home")
	if err != nil {
		t.Fatalf("OpenShare(home) failed: %v", err)
	}
	_ = s.Close()

	s, err = f.OpenShare(ctx, cfg, "file://"+filepath.ToSlash(dir))
	if err != nil {
		t.Fatalf("OpenShare(url) failed: %v", err)
	}
	_ = s.Close()

	if _, err := f.OpenShare(ctx, cfg, "nope"); err == nil {
		t.Error("Expected error for unknown share name")
	}
}

func TestNewFactory_Defaults(t *testing.T) {
	uid := 1000
	cfg := &Config{Defaults: DefaultsConfig{FileMode: "0640", DirMode: "0750", UID: &uid}}

	f, err := NewFactory(cfg)
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	defer f.Close()

	if f.SMBCache == nil {
		t.Error("Expected SMB cache to be created")
	}
	if f.Defaults.FileMode == nil || *f.Defaults.FileMode != fs.FileMode(0o640) {
		t.Errorf("Unexpected file mode %v", f.Defaults.FileMode)
	}
	if f.Defaults.DirMode == nil || *f.Defaults.DirMode != fs.FileMode(0o750) {
		t.Errorf("Unexpected dir mode %v", f.Defaults.DirMode)
	}
	if f.Defaults.UID == nil || *f.Defaults.UID != 1000 || f.Defaults.GID != nil {
		t.Errorf("Unexpected owner %v/%v", f.Defaults.UID, f.Defaults.GID)
	}

	if _, err := NewFactory(&Config{Defaults: DefaultsConfig{FileMode: "bad"}}); err == nil {
		t.Error("Expected error for bad mode")
	}
}

func TestStagingConfig_NewArea(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stage")
	cfg := StagingConfig{Dir: dir, Prefix: "x_", RandomLength: 10, FileMode: "0600", DirMode: "0700"}

	area, err := cfg.NewArea()
	if err != nil {
		t.Fatalf("NewArea failed: %v", err)
	}
	if area.Dir() != dir {
		t.Errorf("Expected area at %s, got %s", dir, area.Dir())
	}

	p, err := area.NewScratchPath()
	if err != nil {
		t.Fatalf("NewScratchPath failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(p), "x_") || len(filepath.Base(p)) != 12 {
		t.Errorf("Unexpected scratch name %q", filepath.Base(p))
	}

	tmp, err := StagingConfig{}.NewArea()
	if err != nil {
		t.Fatalf("NewArea(temp) failed: %v", err)
	}
	defer tmp.Remove()
	if !strings.HasPrefix(filepath.Base(tmp.Dir()), "fileaccess-") {
		t.Errorf("Unexpected temp area %s", tmp.Dir())
	}
}

func TestListSMBShares_RejectsOtherSchemes(t *testing.T) {
	f := &Factory{}
	_, err := f.ListSMBShares(context.Background(), "mem://x")
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("Expected ErrInvalidURL, got %v", err)
	}
}
