package config

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/metrics"
	"github.com/marmos91/fileaccess/pkg/share"
	"github.com/marmos91/fileaccess/pkg/share/local"
	"github.com/marmos91/fileaccess/pkg/share/memory"
	shareS3 "github.com/marmos91/fileaccess/pkg/share/s3"
	"github.com/marmos91/fileaccess/pkg/share/sftp"
	"github.com/marmos91/fileaccess/pkg/share/smb"
	"github.com/marmos91/fileaccess/pkg/staging"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
)

// Factory creates shares from configuration.
//
// SMB sessions are pooled in SMBCache so that every share opened against the
// same server with the same credentials reuses one logon. Memory shares are
// pooled by name so that reopening "mem://x" sees the same files.
//
// Call Close when done to log off pooled SMB sessions.
type Factory struct {
	// SMBCache pools SMB clients. Nil creates one on first use.
	SMBCache *smb.ClientCache

	// Defaults are applied to files and directories the shares create
	Defaults share.Options

	// Metrics observes every operation on the created shares. Nil disables it.
	Metrics metrics.ShareMetrics

	mu       sync.Mutex
	memories map[string]afero.Fs
}

// NewFactory creates a factory using the defaults from cfg.
func NewFactory(cfg *Config) (*Factory, error) {
	opts, err := cfg.Defaults.ShareOptions()
	if err != nil {
		return nil, err
	}
	return &Factory{
		SMBCache: smb.NewClientCache(),
		Defaults: opts,
		Metrics:  metrics.NewShareMetrics(),
	}, nil
}

// Close releases pooled SMB sessions.
func (f *Factory) Close() error {
	if f.SMBCache == nil {
		return nil
	}
	return f.SMBCache.Clear()
}

// CreateShare creates a share based on configuration.
//
// This factory function uses the Type field to determine which backend to
// create, then decodes the type-specific options from the corresponding map
// and passes them to the backend's constructor.
//
// Supported types:
//   - "local": Uses pkg/share/local (local filesystem)
//   - "sftp": Uses pkg/share/sftp (SSH file transfer)
//   - "smb": Uses pkg/share/smb (SMB2/CIFS network share)
//   - "s3": Uses pkg/share/s3 (Amazon S3 or compatible storage)
//   - "memory": Uses pkg/share/memory (in-memory, for tests and dry runs)
//
// The share is wrapped with metrics.Instrument when the factory has metrics.
func (f *Factory) CreateShare(ctx context.Context, sc ShareConfig) (share.Share, error) {
	s, err := f.createShare(ctx, sc)
	if err != nil {
		return nil, err
	}
	return metrics.Instrument(s, f.Metrics), nil
}

func (f *Factory) createShare(ctx context.Context, sc ShareConfig) (share.Share, error) {
	switch sc.Type {
	case "local":
		return f.createLocalShare(ctx, sc.Local)
	case "sftp":
		return f.createSFTPShare(ctx, sc.SFTP)
	case "smb", "cifs":
		return f.createSMBShare(ctx, sc.SMB)
	case "s3":
		return f.createS3Share(ctx, sc.S3)
	case "memory":
		return f.createMemoryShare(sc.Memory)
	default:
		return nil, fmt.Errorf("unknown share type: %q", sc.Type)
	}
}

// CreateShareFromURL parses raw with ParseShareURL and creates the share.
func (f *Factory) CreateShareFromURL(ctx context.Context, raw string) (share.Share, error) {
	sc, err := ParseShareURL(raw)
	if err != nil {
		return nil, err
	}
	return f.CreateShare(ctx, sc)
}

// OpenShare resolves ref as a share URL or, failing that, a share name in cfg.
func (f *Factory) OpenShare(ctx context.Context, cfg *Config, ref string) (share.Share, error) {
	if IsShareURL(ref) {
		return f.CreateShareFromURL(ctx, ref)
	}
	sc, err := cfg.Share(ref)
	if err != nil {
		return nil, err
	}
	return f.CreateShare(ctx, *sc)
}

// decode decodes a type section into out. Strings are accepted for numbers
// and durations so sections may come from URLs or environment variables.
func decode(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

// createLocalShare creates a local filesystem share.
func (f *Factory) createLocalShare(ctx context.Context, options map[string]any) (share.Share, error) {
	type localShareConfig struct {
		Path   string `mapstructure:"path"`
		Create bool   `mapstructure:"create"`
	}

	var cfg localShareConfig
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode local share config: %w", err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("local share: path is required")
	}

	s, err := local.New(ctx, local.Config{BaseDir: cfg.Path, CreateBaseDir: cfg.Create, Options: f.Defaults})
	if err != nil {
		return nil, fmt.Errorf("failed to create local share: %w", err)
	}
	return s, nil
}

// createSFTPShare creates an SSH/SFTP share.
func (f *Factory) createSFTPShare(ctx context.Context, options map[string]any) (share.Share, error) {
	type sftpShareConfig struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		User            string        `mapstructure:"user"`
		Password        string        `mapstructure:"password"`
		KeyFile         string        `mapstructure:"key_file"`
		KeyPassphrase   string        `mapstructure:"key_passphrase"`
		KnownHosts      string        `mapstructure:"known_hosts"`
		BaseDir         string        `mapstructure:"base_dir"`
		Timeout         time.Duration `mapstructure:"timeout"`
		MaxOpsPerSecond uint          `mapstructure:"max_ops_per_second"`
	}

	var cfg sftpShareConfig
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode sftp share config: %w", err)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp share: host is required")
	}

	s, err := sftp.Dial(ctx, sftp.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		KeyFile:         cfg.KeyFile,
		KeyPassphrase:   cfg.KeyPassphrase,
		KnownHostsFile:  cfg.KnownHosts,
		BaseDir:         cfg.BaseDir,
		Timeout:         cfg.Timeout,
		MaxOpsPerSecond: cfg.MaxOpsPerSecond,
		Options:         f.Defaults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp share: %w", err)
	}
	return s, nil
}

// createSMBShare mounts an SMB share through the pooled client.
func (f *Factory) createSMBShare(ctx context.Context, options map[string]any) (share.Share, error) {
	type smbShareConfig struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		User            string        `mapstructure:"user"`
		Password        string        `mapstructure:"password"`
		Domain          string        `mapstructure:"domain"`
		Share           string        `mapstructure:"share"`
		Timeout         time.Duration `mapstructure:"timeout"`
		MaxOpsPerSecond uint          `mapstructure:"max_ops_per_second"`
	}

	var cfg smbShareConfig
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode smb share config: %w", err)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("smb share: host is required")
	}
	if cfg.Share == "" {
		return nil, fmt.Errorf("smb share: share is required")
	}

	s, err := smb.Open(ctx, f.smbCache(), smb.Config{
		Client: f.smbClientConfig(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Domain, cfg.Timeout, cfg.MaxOpsPerSecond),
		Share:  cfg.Share,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create smb share: %w", err)
	}
	return s, nil
}

func (f *Factory) smbClientConfig(host string, port int, user, password, domain string, timeout time.Duration, ops uint) smb.ClientConfig {
	return smb.ClientConfig{
		Host:            host,
		Port:            port,
		User:            user,
		Password:        password,
		Domain:          domain,
		Timeout:         timeout,
		MaxOpsPerSecond: ops,
	}
}

func (f *Factory) smbCache() *smb.ClientCache {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SMBCache == nil {
		f.SMBCache = smb.NewClientCache()
	}
	return f.SMBCache
}

// ListSMBShares connects to the server named by an smb:// URL and lists its
// shares. The URL's share path is optional here.
func (f *Factory) ListSMBShares(ctx context.Context, raw string) ([]smb.ShareInfo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = "/IPC$/"
	}
	sc, err := ParseShareURL(u.String())
	if err != nil {
		return nil, err
	}
	if sc.Type != "smb" {
		return nil, fmt.Errorf("%w: %s is not an smb URL", ErrInvalidURL, raw)
	}

	var opts struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Domain   string `mapstructure:"domain"`
	}
	if err := decode(sc.SMB, &opts); err != nil {
		return nil, err
	}

	c, err := f.smbCache().Get(ctx, f.smbClientConfig(opts.Host, opts.Port, opts.User, opts.Password, opts.Domain, 0, 0))
	if err != nil {
		return nil, err
	}
	return c.ListShares(ctx)
}

// createS3Share creates an S3-based share.
func (f *Factory) createS3Share(ctx context.Context, options map[string]any) (share.Share, error) {
	type s3ShareConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var cfg s3ShareConfig
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode s3 share config: %w", err)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 share: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	// ========================================================================
	// Step 1: Create S3 Client
	// ========================================================================

	client, err := shareS3.NewClient(ctx, shareS3.ClientConfig{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		MaxRetries:      cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Share
	// ========================================================================

	s, err := shareS3.New(ctx, shareS3.Config{
		Client:    client,
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.KeyPrefix,
		Endpoint:  cfg.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 share: %w", err)
	}

	logger.Info("S3 share initialized: bucket=%s, region=%s, prefix=%s",
		cfg.Bucket, cfg.Region, cfg.KeyPrefix)
	return s, nil
}

// createMemoryShare creates an in-memory share. Shares with the same name
// opened through one factory see the same files.
func (f *Factory) createMemoryShare(options map[string]any) (share.Share, error) {
	type memoryShareConfig struct {
		Name     string `mapstructure:"name"`
		ReadOnly bool   `mapstructure:"read_only"`
	}

	var cfg memoryShareConfig
	if err := decode(options, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory share config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	f.mu.Lock()
	if f.memories == nil {
		f.memories = make(map[string]afero.Fs)
	}
	fsys, ok := f.memories[cfg.Name]
	if !ok {
		fsys = afero.NewMemMapFs()
		f.memories[cfg.Name] = fsys
	}
	f.mu.Unlock()

	return memory.New(memory.Config{Name: cfg.Name, Fs: fsys, ReadOnly: cfg.ReadOnly, Options: f.Defaults}), nil
}

// ============================================================================
// Section helpers
// ============================================================================

// ShareOptions converts the defaults section into share.Options.
func (d DefaultsConfig) ShareOptions() (share.Options, error) {
	var opts share.Options
	if d.FileMode != "" {
		m, err := parseMode(d.FileMode)
		if err != nil {
			return opts, fmt.Errorf("defaults.file_mode: %w", err)
		}
		mode := fs.FileMode(m)
		opts.FileMode = &mode
	}
	if d.DirMode != "" {
		m, err := parseMode(d.DirMode)
		if err != nil {
			return opts, fmt.Errorf("defaults.dir_mode: %w", err)
		}
		mode := fs.FileMode(m)
		opts.DirMode = &mode
	}
	opts.UID = d.UID
	opts.GID = d.GID
	return opts, nil
}

// StagingOptions converts the staging section into staging.Options.
func (c StagingConfig) StagingOptions() (staging.Options, error) {
	opts := staging.Options{
		Prefix:       c.Prefix,
		RandomLength: c.RandomLength,
	}
	if c.FileMode != "" {
		m, err := parseMode(c.FileMode)
		if err != nil {
			return opts, fmt.Errorf("staging.file_mode: %w", err)
		}
		opts.FileMode = fs.FileMode(m)
	}
	if c.DirMode != "" {
		m, err := parseMode(c.DirMode)
		if err != nil {
			return opts, fmt.Errorf("staging.dir_mode: %w", err)
		}
		opts.DirMode = fs.FileMode(m)
	}
	return opts, nil
}

// NewArea creates the configured staging area. Without a directory a fresh
// one is created under the system temp dir; the caller removes it.
func (c StagingConfig) NewArea() (*staging.Area, error) {
	opts, err := c.StagingOptions()
	if err != nil {
		return nil, err
	}
	if c.Dir == "" {
		return staging.NewTemp("fileaccess-", opts)
	}
	return staging.New(c.Dir, opts)
}
