package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	ErrHostRequired = errors.New("session: server host required")
	ErrResolve      = errors.New("session: resolve failed")
	ErrConnect      = errors.New("session: connect failed")
)

// Resolver looks up server addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer opens the CWP stream to a resolved server.
type Dialer struct {
	cfg      Config
	resolver Resolver
}

func NewDialer(cfg Config, resolver Resolver) *Dialer {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Dialer{cfg: cfg.WithDefaults(), resolver: resolver}
}

// Resolve returns the first address of host. Failures wrap ErrResolve.
func (d *Dialer) Resolve(ctx context.Context, host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("%w: %w", ErrResolve, ErrHostRequired)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ResolveTimeout)
	defer cancel()
	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("%w: host=%q: %w", ErrResolve, host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: host=%q: no addresses", ErrResolve, host)
	}
	return addrs[0], nil
}

// Connect opens a TCP connection to addr:port. Failures wrap ErrConnect.
func (d *Dialer) Connect(ctx context.Context, addr string, port int) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}
