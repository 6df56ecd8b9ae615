package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func frame(sentAt float64, line string) string {
	return fmt.Sprintf("%.6f,%s\n", sentAt, line)
}

func TestScannerUnframed(t *testing.T) {
	input := strings.Join([]string{
		mboHeader,
		mboLine("A", "B", "61.25", "3", "1"),
		"",
		mboLine("Q", "B", "61.25", "3", "2"), // unknown action
		"short,line",
		mboLine("A", "A", "61.30", "2", "3"),
	}, "\n")

	m := instrumentation.NewMetrics(prometheus.NewRegistry())
	s := NewScanner(strings.NewReader(input), Options{Logger: discard, Metrics: m})

	var ids []uint64
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, rec.OrderID)
	}

	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected records %v", ids)
	}
	if got := testutil.ToFloat64(m.RecordsDropped.WithLabelValues("dropped")); got != 2 {
		t.Fatalf("expected 2 dropped records, got %v", got)
	}
}

func TestScannerFramedLatency(t *testing.T) {
	now := time.Unix(1_759_152_600, 0)
	input := frame(1_759_152_599.9, mboHeader) +
		frame(1_759_152_599.999, mboLine("A", "B", "61.25", "3", "1")) +
		"garbage," + mboLine("C", "B", "", "", "1") + "\n"

	m := instrumentation.NewMetrics(prometheus.NewRegistry())
	s := NewScanner(strings.NewReader(input), Options{Framed: true, Logger: discard, Metrics: m})
	s.dec.now = func() time.Time { return now }

	rec, err := s.Next()
	if err != nil || rec.Action != models.ActionAdd {
		t.Fatalf("unexpected first record %+v %v", rec, err)
	}
	if n := testutil.CollectAndCount(m.FeedLatencyMs); n != 1 {
		t.Fatalf("expected latency histogram to be collected, got %d", n)
	}

	// Bad prefix: logged, still parsed.
	rec, err = s.Next()
	if err != nil || rec.Action != models.ActionCancel {
		t.Fatalf("unexpected second record %+v %v", rec, err)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("feed", "bad_frame_prefix")); got != 1 {
		t.Fatalf("expected bad prefix error count 1, got %v", got)
	}

	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScannerEmptyStream(t *testing.T) {
	s := NewScanner(strings.NewReader(""), Options{Logger: discard})
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean EOF, got %v", err)
	}
}

func TestScannerBadHeader(t *testing.T) {
	s := NewScanner(strings.NewReader("price,size\n"), Options{Logger: discard})
	if _, err := s.Next(); !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestTCPSource(t *testing.T) {
	client, server := net.Pipe()
	src := NewTCPSource(client, Options{Logger: discard})
	defer src.Close()

	go func() {
		sent := float64(time.Now().UnixNano()) / 1e9
		_, _ = io.WriteString(server, frame(sent, mboHeader))
		_, _ = io.WriteString(server, frame(sent, mboLine("A", "B", "61.25", "3", "11")))
		_ = server.Close()
	}()

	ctx := context.Background()
	rec, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.OrderID != 11 || rec.Side != models.SideBid {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after sender closed, got %v", err)
	}
}

func TestTCPSourceCancel(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	src := NewTCPSource(client, Options{Logger: discard})
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
}

func TestRedisSourceHandle(t *testing.T) {
	m := instrumentation.NewMetrics(prometheus.NewRegistry())
	s := &RedisSource{dec: newDecoder(Options{Framed: true, Logger: discard, Metrics: m}, "redis_source")}
	sent := fmt.Sprintf("%.6f", float64(time.Now().UnixNano())/1e9)

	if _, ok := s.handle(redis.XMessage{ID: "1-0", Values: map[string]interface{}{fieldLine: sent + "," + mboLine("A", "B", "1", "1", "1")}}); ok {
		t.Fatal("record before header must be dropped")
	}
	if _, ok := s.handle(redis.XMessage{ID: "2-0", Values: map[string]interface{}{fieldHeader: sent + "," + mboHeader}}); ok {
		t.Fatal("header message must not yield a record")
	}
	rec, ok := s.handle(redis.XMessage{ID: "3-0", Values: map[string]interface{}{fieldLine: sent + "," + mboLine("T", "A", "61", "2", "5")}})
	if !ok || rec.Action != models.ActionTrade || rec.OrderID != 5 {
		t.Fatalf("unexpected record %+v ok=%v", rec, ok)
	}
	if _, ok := s.handle(redis.XMessage{ID: "4-0", Values: map[string]interface{}{"data": "x"}}); ok {
		t.Fatal("message without line must be dropped")
	}

	if got := testutil.ToFloat64(m.RecordsDropped.WithLabelValues("no_header")); got != 1 {
		t.Fatalf("expected 1 no_header drop, got %v", got)
	}
}

func TestFileSource(t *testing.T) {
	path := t.TempDir() + "/feed.txt"
	content := mboHeader + "\n" + mboLine("A", "A", "61.30", "2", "3") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := OpenFile(path, Options{Logger: discard})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	if rec, err := src.Next(ctx); err != nil || rec.OrderID != 3 {
		t.Fatalf("unexpected record %+v %v", rec, err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}

	if _, err := OpenFile(path+".missing", Options{Logger: discard}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
