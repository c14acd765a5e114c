// Package connpool implements a fixed-size pool of SSH connections to the
// remote host driving the external relaxation program. Checkout blocks
// without spinning: a free connection arrives over a buffered channel,
// which also makes checkout context-cancellable.
package connpool

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/xtalopt/engine/internal/enginerr"
)

// Connection wraps one SSH client plus the sessions it opens for remote
// exec/sftp-style file operations.
type Connection struct {
	id     int
	mu     sync.Mutex
	client *ssh.Client
	inUse  bool
}

// ID returns the connection's pool slot number, used only for logging.
func (c *Connection) ID() int { return c.id }

// Client returns the underlying SSH client for exec/file operations.
func (c *Connection) Client() *ssh.Client { return c.client }

// Pool is a fixed-size collection of SSH connections to one remote host,
// shared by every candidate the scheduler currently has in flight.
type Pool struct {
	mu sync.Mutex

	conns []*Connection
	free  chan *Connection

	host           string
	user           string
	port           int
	knownHostsPath string

	hexHostKey string
	valid      bool
}

// New creates a Pool sized for n concurrent connections. MakeConnections
// must be called before GetFreeConnection.
func New(n int, knownHostsPath string) *Pool {
	return &Pool{
		conns:          make([]*Connection, 0, n),
		free:           make(chan *Connection, n),
		knownHostsPath: knownHostsPath,
	}
}

// SeedForTesting populates the pool's free list with already-constructed
// connections, bypassing MakeConnections' SSH dial. It exists so packages
// that depend on a Pool (the scheduler) can exercise checkout/checkin
// without a live SSH server; callers must size the Pool's free channel
// (via New) to hold at least len(conns).
func SeedForTesting(p *Pool, conns ...*Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range conns {
		p.conns = append(p.conns, c)
		p.free <- c
	}
}

// MakeConnections dials n SSH connections to host:port as user using a
// password-authenticated config, and populates the free list. Every
// connection is dialed upfront; any single dial failure fails the whole
// pool.
func (p *Pool) MakeConnections(ctx context.Context, host, user, pass string, port int, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.valid = false
	p.host, p.user, p.port = host, user, port

	hostKeyCallback, err := knownhosts.New(p.knownHostsPath)
	if err != nil {
		return enginerr.Wrap(enginerr.ConnectionFault, err, "load known_hosts").WithOperation("MakeConnections")
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         15 * time.Second,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	for i := 0; i < n; i++ {
		client, err := ssh.Dial("tcp", addr, cfg)
		if err != nil {
			kind := enginerr.UnknownError
			switch {
			case isUnknownHostKeyErr(err):
				kind = enginerr.UnknownHost
			case isAuthErr(err):
				kind = enginerr.BadPassword
			default:
				kind = enginerr.ConnError
			}
			return enginerr.Wrap(enginerr.ConnectionFault, err, "dial ssh connection").
				WithOperation("MakeConnections").WithConnKind(kind)
		}
		conn := &Connection{id: i, client: client}
		p.conns = append(p.conns, conn)
		p.free <- conn
	}

	p.valid = true
	return nil
}

// GetFreeConnection blocks until a connection is free or ctx is done.
func (p *Pool) GetFreeConnection(ctx context.Context) (*Connection, error) {
	select {
	case c := <-p.free:
		c.mu.Lock()
		c.inUse = true
		c.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// UnlockConnection returns a connection to the free list.
func (p *Pool) UnlockConnection(c *Connection) {
	c.mu.Lock()
	c.inUse = false
	c.mu.Unlock()
	p.free <- c
}

// Close waits for every connection to be idle, then closes all of them.
// Idle connections are drained straight off the free channel.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for range p.conns {
		c := <-p.free
		c.client.Close()
	}
}

// ServerKeyHash returns the hex-encoded fingerprint captured during the
// most recent ValidateServerKey call.
func (p *Pool) ServerKeyHash() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hexHostKey
}

// ValidateServerKey dials the target host once purely to capture its host
// key fingerprint, without validating it against known_hosts. The caller is
// expected to show the fingerprint to the operator and, on acceptance, call
// AppendKnownHost.
func (p *Pool) ValidateServerKey(ctx context.Context, host string, port int) (fingerprint string, err error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	cfg := &ssh.ClientConfig{
		User: "probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			fingerprint = hex.EncodeToString(key.Marshal())
			return nil // accept unconditionally; we're only capturing the key.
		},
		Timeout: 10 * time.Second,
	}
	client, dialErr := ssh.Dial("tcp", addr, cfg)
	if client != nil {
		client.Close()
	}
	if fingerprint == "" && dialErr != nil {
		return "", enginerr.Wrap(enginerr.ConnectionFault, dialErr, "probe server key").
			WithOperation("ValidateServerKey").WithConnKind(enginerr.UnknownHost)
	}
	p.mu.Lock()
	p.hexHostKey = fingerprint
	p.mu.Unlock()
	return fingerprint, nil
}

// AppendKnownHost appends host's current public key to the pool's
// known_hosts file, the operator-approved counterpart to ValidateServerKey.
func AppendKnownHost(path, host string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return enginerr.Wrap(enginerr.ConnectionFault, err, "open known_hosts").WithOperation("AppendKnownHost")
	}
	defer f.Close()

	line := knownhosts.Line([]string{host}, key) + "\n"
	if _, err := f.WriteString(line); err != nil {
		return enginerr.Wrap(enginerr.ConnectionFault, err, "write known_hosts").WithOperation("AppendKnownHost")
	}
	return nil
}

func isUnknownHostKeyErr(err error) bool {
	_, ok := err.(*knownhosts.KeyError)
	return ok
}

func isAuthErr(err error) bool {
	return err != nil && err.Error() != "" && (containsFold(err.Error(), "unable to authenticate") ||
		containsFold(err.Error(), "auth"))
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			a, b := s[i+j], substr[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
