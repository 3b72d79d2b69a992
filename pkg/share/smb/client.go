package smb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hirochachacha/go-smb2"
	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/marmos91/fileaccess/pkg/share"
)

// DefaultPort is the SMB port used when ClientConfig.Port is zero.
const DefaultPort = 445

// ShareType classifies an exported share.
type ShareType int

const (
	// TypeDisk is a regular disk share.
	TypeDisk ShareType = 3

	// TypeSpecial is an administrative or IPC share (ADMIN$, IPC$, C$).
	TypeSpecial ShareType = 6
)

// ShareInfo describes one share exported by a server.
type ShareInfo struct {
	Name string
	Type ShareType
}

// IsSpecial reports whether the share is administrative or IPC.
func (i ShareInfo) IsSpecial() bool { return i.Type == TypeSpecial }

// ClientConfig identifies a server and the credentials to log on with.
type ClientConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Domain   string

	Timeout time.Duration

	// MaxOpsPerSecond throttles each mounted share. Zero means unlimited.
	MaxOpsPerSecond uint
}

func (c *ClientConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c ClientConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Transport is the subset of a mounted go-smb2 share used by Share. Paths are
// relative to the share root, "/"-separated, and "" is the root itself.
type Transport interface {
	Stat(name string) (os.FileInfo, error)
	ReadDir(name string) ([]os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Mkdir(name string, perm os.FileMode) error
	Remove(name string) error
	Rename(oldname, newname string) error
	Umount() error
}

// session is the logged-on side of a client.
type session interface {
	ListSharenames() ([]string, error)
	Mount(name string) (Transport, error)
	Logoff() error
}

// Client is one logged-on SMB session to a server. Shares mounted through it
// are cached by name until they are closed.
type Client struct {
	cfg  ClientConfig
	sess session

	mu     sync.Mutex
	closed bool
	shares map[string]*Share
}

// Connect dials cfg.Host and logs on with NTLM.
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("smb: host is required")
	}
	cfg.applyDefaults()

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, errors.Join(share.ErrRemoteIO, fmt.Errorf("smb: failed to connect to %s: %w", cfg.addr(), err))
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.User,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}
	s, err := dialer.DialContext(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Join(share.ErrRemoteIO, fmt.Errorf("smb: logon to %s failed: %w", cfg.addr(), err))
	}

	logger.Info("SMB session established: %s@%s", cfg.User, cfg.addr())
	return newClient(cfg, &smbSession{session: s, conn: conn, host: cfg.Host}), nil
}

func newClient(cfg ClientConfig, sess session) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		sess:   sess,
		shares: make(map[string]*Share),
	}
}

// HostName returns the server host.
func (c *Client) HostName() string { return c.cfg.Host }

// UserName returns the user the session logged on as.
func (c *Client) UserName() string { return c.cfg.User }

// URLBase returns the URL of the server.
func (c *Client) URLBase() string { return "smb://" + c.cfg.Host + "/" }

// IsClosed reports whether the session has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ListShareNames returns the names of all shares exported by the server.
func (c *Client) ListShareNames(ctx context.Context) ([]string, error) {
	if err := c.check(ctx, "shares"); err != nil {
		return nil, err
	}
	names, err := c.sess.ListSharenames()
	if err != nil {
		return nil, share.RemoteError("shares", c.URLBase(), err)
	}
	sort.Strings(names)
	return names, nil
}

// ListShares returns the exported shares with their type. Only names are
// exposed by the protocol layer, so names ending in "$" are special.
func (c *Client) ListShares(ctx context.Context) ([]ShareInfo, error) {
	names, err := c.ListShareNames(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ShareInfo, 0, len(names))
	for _, n := range names {
		t := TypeDisk
		if strings.HasSuffix(n, "$") {
			t = TypeSpecial
		}
		infos = append(infos, ShareInfo{Name: n, Type: t})
	}
	return infos, nil
}

// Mount returns the open share with the given name, mounting it on first use.
func (c *Client) Mount(ctx context.Context, name string) (*Share, error) {
	if err := c.check(ctx, "mount"); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, share.NewPathError("mount", name, share.ErrInvalidPath)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.shares[name]; ok && !s.IsClosed() {
		return s, nil
	}

	t, err := c.sess.Mount(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, share.NewPathError("mount", name, share.ErrNotFound)
		}
		return nil, share.RemoteError("mount", name, err)
	}

	s := newShare(c, t, name)
	c.shares[name] = s
	logger.Debug("SMB share mounted: %s", s.URLBase())
	return s, nil
}

// forget drops a closed share from the mount cache.
func (c *Client) forget(s *Share) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shares[s.name] == s {
		delete(c.shares, s.name)
	}
}

// Close unmounts every share and logs off.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	shares := c.shares
	c.shares = make(map[string]*Share)
	c.mu.Unlock()

	var errs []error
	for _, s := range shares {
		errs = append(errs, s.unmount())
	}
	errs = append(errs, c.sess.Logoff())

	logger.Info("SMB session closed: %s@%s", c.cfg.User, c.cfg.addr())
	return errors.Join(errs...)
}

func (c *Client) check(ctx context.Context, op string) error {
	if c.IsClosed() {
		return share.NewPathError(op, c.URLBase(), share.ErrClosed)
	}
	return ctx.Err()
}

// ============================================================================
// Client Cache
// ============================================================================

// ClientCache reuses one Client per server and credential set.
//
// Entries are keyed by a SHA-256 fingerprint of address, user and password,
// so credentials never appear in map keys.
type ClientCache struct {
	mu      sync.Mutex
	clients map[string]*Client
	connect func(context.Context, ClientConfig) (*Client, error)
}

// NewClientCache creates an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{
		clients: make(map[string]*Client),
		connect: Connect,
	}
}

// Get returns the cached client for cfg, connecting if there is none or the
// cached one has been closed.
func (cc *ClientCache) Get(ctx context.Context, cfg ClientConfig) (*Client, error) {
	cfg.applyDefaults()
	key := fingerprint(cfg)

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if c, ok := cc.clients[key]; ok && !c.IsClosed() {
		return c, nil
	}

	c, err := cc.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cc.clients[key] = c
	return c, nil
}

// Len returns the number of cached clients.
func (cc *ClientCache) Len() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.clients)
}

// Clear closes every cached client and empties the cache.
func (cc *ClientCache) Clear() error {
	cc.mu.Lock()
	clients := cc.clients
	cc.clients = make(map[string]*Client)
	cc.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			logger.Warn("SMB: failed to close client for %s: %v", c.HostName(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func fingerprint(cfg ClientConfig) string {
	sum := sha256.Sum256([]byte(cfg.addr() + ">><<" + cfg.User + ">><<" + cfg.Password))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// go-smb2 adapters
// ============================================================================

type smbSession struct {
	session *smb2.Session
	conn    net.Conn
	host    string
}

func (s *smbSession) ListSharenames() ([]string, error) {
	return s.session.ListSharenames()
}

func (s *smbSession) Mount(name string) (Transport, error) {
	fs, err := s.session.Mount(`\\` + s.host + `\` + name)
	if err != nil {
		return nil, err
	}
	return &smbTransport{fs: fs}, nil
}

func (s *smbSession) Logoff() error {
	err := s.session.Logoff()
	return errors.Join(err, s.conn.Close())
}

// smbTransport adapts *smb2.Share to Transport.
type smbTransport struct {
	fs *smb2.Share
}

func winPath(name string) string {
	return strings.ReplaceAll(name, "/", `\`)
}

func (t *smbTransport) Stat(name string) (os.FileInfo, error) {
	return t.fs.Stat(winPath(name))
}

func (t *smbTransport) ReadDir(name string) ([]os.FileInfo, error) {
	return t.fs.ReadDir(winPath(name))
}

func (t *smbTransport) Open(name string) (io.ReadCloser, error) {
	f, err := t.fs.Open(winPath(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (t *smbTransport) Create(name string) (io.WriteCloser, error) {
	f, err := t.fs.Create(winPath(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (t *smbTransport) Mkdir(name string, perm os.FileMode) error {
	return t.fs.Mkdir(winPath(name), perm)
}

func (t *smbTransport) Remove(name string) error {
	return t.fs.Remove(winPath(name))
}

func (t *smbTransport) Rename(oldname, newname string) error {
	return t.fs.Rename(winPath(oldname), winPath(newname))
}

func (t *smbTransport) Umount() error {
	return t.fs.Umount()
}
