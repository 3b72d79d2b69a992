package sftp

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/marmos91/fileaccess/internal/logger"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Client is the subset of *sftp.Client the share needs.
type Client interface {
	Stat(p string) (os.FileInfo, error)
	Lstat(p string) (os.FileInfo, error)
	ReadDir(p string) ([]os.FileInfo, error)
	Open(p string) (*sftp.File, error)
	OpenFile(p string, f int) (*sftp.File, error)
	Mkdir(p string) error
	Remove(p string) error
	RemoveDirectory(p string) error
	Rename(oldname, newname string) error
	PosixRename(oldname, newname string) error
	Chmod(p string, mode os.FileMode) error
	Chown(p string, uid, gid int) error
	Close() error
}

var _ Client = (*sftp.Client)(nil)

// sshConfig builds the SSH client configuration for cfg.
func sshConfig(cfg Config) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to read key file: %w", err)
		}
		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to parse key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		password := cfg.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp: a password or key file is required")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to load known hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger.Warn("SFTP: host key of %s is not verified (no known_hosts file configured)", cfg.Host)
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}, nil
}

// dial opens an SSH connection and starts the SFTP subsystem on it.
func dial(ctx context.Context, cfg Config) (*sftp.Client, *ssh.Client, error) {
	clientCfg, err := sshConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("sftp: failed to connect to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("sftp: SSH handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(c, chans, reqs)
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("sftp: failed to start subsystem on %s: %w", addr, err)
	}
	return sftpClient, sshClient, nil
}
