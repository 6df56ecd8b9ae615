package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

const replayFlushEvery = 256

// Replayer serves a feed file to TCP clients. Every client gets the whole
// file from the top, each line prefixed with the send time in unix seconds,
// and the connection is closed at end of file.
type Replayer struct {
	path   string
	rate   int // lines per second, 0 = unthrottled
	logger *slog.Logger
	now    func() time.Time
}

// NewReplayer creates a replayer for path.
func NewReplayer(path string, rate int, logger *slog.Logger) *Replayer {
	return &Replayer{
		path:   path,
		rate:   rate,
		logger: logger.With("component", "replayer", "path", path),
		now:    time.Now,
	}
}

// Serve accepts clients until ctx is cancelled, then closes ln and waits for
// in-flight streams to finish.
func (r *Replayer) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	r.logger.Info("replayer_listening", "addr", ln.Addr().String(), "rate", r.rate)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.serveConn(ctx, conn)
		}()
	}
}

func (r *Replayer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	addr := conn.RemoteAddr().String()
	r.logger.Info("client_connected", "remote_addr", addr)

	start := r.now()
	sent, err := r.Stream(ctx, conn)
	if err != nil {
		r.logger.Warn("replay_aborted", "remote_addr", addr, "sent", sent, "error", err)
		return
	}
	r.logger.Info("replay_finished",
		"remote_addr", addr,
		"sent", sent,
		"duration_ms", r.now().Sub(start).Milliseconds(),
	)
}

// Stream writes the framed file to w and returns the number of lines sent.
func (r *Replayer) Stream(ctx context.Context, w io.Writer) (int, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return 0, fmt.Errorf("open feed file: %w", err)
	}
	defer f.Close()

	in := bufio.NewReaderSize(f, 64*1024)
	out := bufio.NewWriterSize(w, 64*1024)
	buf := make([]byte, 0, 256)

	sent := 0
	windowStart := r.now()
	for {
		line, readErr := in.ReadBytes('\n')
		if len(line) > 0 {
			buf = strconv.AppendFloat(buf[:0], float64(r.now().UnixNano())/1e9, 'f', 6, 64)
			buf = append(buf, ',')
			buf = append(buf, line...)
			if _, err := out.Write(buf); err != nil {
				return sent, err
			}
			sent++

			if sent%replayFlushEvery == 0 {
				if err := out.Flush(); err != nil {
					return sent, err
				}
			}
			if r.rate > 0 && sent%r.rate == 0 {
				if err := r.pace(ctx, windowStart); err != nil {
					return sent, err
				}
				windowStart = r.now()
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return sent, out.Flush()
			}
			return sent, fmt.Errorf("read feed file: %w", readErr)
		}
	}
}

// pace sleeps out the rest of the one-second window that began at windowStart.
func (r *Replayer) pace(ctx context.Context, windowStart time.Time) error {
	wait := time.Second - r.now().Sub(windowStart)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
