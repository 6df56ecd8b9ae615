package feed

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// TCPSource reads a framed feed from a TCP connection.
type TCPSource struct {
	conn    net.Conn
	scanner *Scanner
}

// DialTCP connects to a feed sender. Lines are always treated as framed.
func DialTCP(ctx context.Context, addr string, opts Options) (*TCPSource, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial feed %s: %w", addr, err)
	}
	return NewTCPSource(conn, opts), nil
}

// NewTCPSource wraps an established connection.
func NewTCPSource(conn net.Conn, opts Options) *TCPSource {
	opts.Framed = true
	if opts.Logger != nil {
		opts.Logger = opts.Logger.With("remote_addr", conn.RemoteAddr().String())
	}
	return &TCPSource{conn: conn, scanner: NewScanner(conn, opts)}
}

// Next returns the next record. Cancelling ctx unblocks a pending read.
func (s *TCPSource) Next(ctx context.Context) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	rec, err := s.scanner.Next()
	if err != nil && ctx.Err() != nil {
		return models.Record{}, ctx.Err()
	}
	return rec, err
}

// Close closes the connection.
func (s *TCPSource) Close() error {
	return s.conn.Close()
}
