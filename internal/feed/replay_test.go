package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

func writeFeedFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReplayerStreamFramesEveryLine(t *testing.T) {
	path := writeFeedFile(t, mboHeader, mboLine("A", "B", "61.25", "3", "11"), mboLine("C", "B", "61.25", "3", "11"))
	r := NewReplayer(path, 0, discard)
	r.now = func() time.Time { return time.Unix(1_700_000_000, 250_000_000) }

	var out bytes.Buffer
	sent, err := r.Stream(context.Background(), &out)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if sent != 3 {
		t.Fatalf("sent = %d, want 3", sent)
	}

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), out.String())
	}
	for _, line := range lines {
		sentAt, _, err := SplitFrame(line)
		if err != nil {
			t.Fatalf("SplitFrame(%q): %v", line, err)
		}
		if sentAt != 1_700_000_000.25 {
			t.Fatalf("sentAt = %v", sentAt)
		}
	}
	if !strings.HasSuffix(lines[0], ","+mboHeader) {
		t.Fatalf("header frame = %q", lines[0])
	}
}

func TestReplayerStreamMissingFile(t *testing.T) {
	r := NewReplayer(filepath.Join(t.TempDir(), "absent.txt"), 0, discard)
	if _, err := r.Stream(context.Background(), io.Discard); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReplayerPacesToRate(t *testing.T) {
	path := writeFeedFile(t, mboHeader, mboLine("A", "B", "61.25", "3", "11"))
	r := NewReplayer(path, 1, discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sent, err := r.Stream(ctx, io.Discard)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded while pacing", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 before the first pause", sent)
	}
}

func TestReplayerServeToTCPSource(t *testing.T) {
	path := writeFeedFile(t,
		mboHeader,
		mboLine("A", "B", "61.25", "3", "11"),
		mboLine("A", "A", "61.30", "2", "12"),
	)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- NewReplayer(path, 0, discard).Serve(ctx, ln) }()

	src, err := DialTCP(context.Background(), ln.Addr().String(), Options{Logger: discard})
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer src.Close()

	var got []models.Record
	for {
		rec, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 2 || got[0].OrderID != 11 || got[1].Side != models.SideAsk {
		t.Fatalf("records = %+v", got)
	}

	cancel()
	select {
	case err := <-served:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
