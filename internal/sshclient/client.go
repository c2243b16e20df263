// Package sshclient runs module commands on a remote host over SSH.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tastythames/dmon-worker/internal/modules"
)

// Client implements modules.Runner. Every call opens its own connection;
// modules run one at a time so there is nothing to pool.
type Client struct {
	cfg         Config
	hostKeyFunc ssh.HostKeyCallback
}

var _ modules.Runner = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user is empty")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("ssh password is empty")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is empty")
	}

	hk := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		var err error
		if hk, err = knownhosts.New(cfg.KnownHosts); err != nil {
			return nil, fmt.Errorf("ssh known_hosts: %w", err)
		}
	}
	return &Client{cfg: cfg, hostKeyFunc: hk}, nil
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Run executes cmd remotely and returns its stdout.
func (c *Client) Run(ctx context.Context, cmd string) ([]byte, error) {
	addr := c.Addr()

	password := c.cfg.Password
	sshCfg := &ssh.ClientConfig{
		User:            c.cfg.User,
		HostKeyCallback: c.hostKeyFunc,
		Timeout:         c.cfg.Timeout,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_user, _instruction string, questions []string, _echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// bound the handshake, then lift the deadline for the command itself
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		return nil, err
	}
	client := ssh.NewClient(cconn, chans, reqs)
	defer client.Close()
	_ = conn.SetDeadline(time.Time{})

	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			var ee *ssh.ExitError
			if errors.As(err, &ee) {
				return stdout.Bytes(), &modules.ExitError{Code: ee.ExitStatus(), Stdout: stdout.Bytes(), Stderr: stderr.String()}
			}
			return stdout.Bytes(), err
		}
		return stdout.Bytes(), nil
	}
}
