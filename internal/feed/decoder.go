package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// DefaultLatencyWarn is the arrival latency above which a warning is logged.
const DefaultLatencyWarn = 5 * time.Millisecond

// Options configures how raw lines are decoded.
type Options struct {
	// Framed lines carry a sender timestamp prefix column.
	Framed bool

	// LatencyWarn is the arrival latency warning threshold for framed lines.
	LatencyWarn time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// decoder holds header state and turns raw lines into records. The first
// line it sees is the header.
type decoder struct {
	opts   Options
	parser *Parser
	logger *slog.Logger
	now    func() time.Time
}

func newDecoder(opts Options, component string) *decoder {
	if opts.LatencyWarn <= 0 {
		opts.LatencyWarn = DefaultLatencyWarn
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &decoder{
		opts:   opts,
		logger: logger.With("component", component),
		now:    time.Now,
	}
}

func (d *decoder) hasHeader() bool {
	return d.parser != nil
}

// setHeader installs the header from a raw line.
func (d *decoder) setHeader(line string) error {
	payload := line
	if d.opts.Framed {
		var err error
		if _, payload, err = SplitFrame(line); payload == "" && err != nil {
			return fmt.Errorf("header: %w", err)
		}
	}

	h, err := ParseHeader(payload)
	if err != nil {
		return err
	}
	d.parser = NewParser(h)
	d.logger.Info("feed_header", "columns", len(h), "framed", d.opts.Framed)
	return nil
}

// decode converts one raw data line. Errors wrap ErrDropRecord or
// ErrMalformedRecord and are never fatal.
func (d *decoder) decode(line string) (models.Record, error) {
	payload := line
	if d.opts.Framed {
		sentAt, p, err := SplitFrame(line)
		switch {
		case err == nil:
			d.observeArrival(sentAt)
		case p != "":
			// The prefix is still stripped and the record parsed.
			d.logger.Error("malformed_frame", "error", err)
			if d.opts.Metrics != nil {
				d.opts.Metrics.RecordError("feed", "bad_frame_prefix")
			}
		}
		payload = p
	}

	return d.parser.Parse(payload)
}

// observeArrival records sender-to-receiver latency of one line.
func (d *decoder) observeArrival(sentAt float64) {
	sent := time.Unix(0, int64(sentAt*1e9))
	latency := d.now().Sub(sent)
	latencyMs := float64(latency.Nanoseconds()) / 1e6

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordFeedLatency(latencyMs)
	}
	if latency > d.opts.LatencyWarn {
		d.logger.Warn("high_latency", "latency_ms", latencyMs)
	}
}

// handleSkip logs and counts a line the decoder rejected.
func (d *decoder) handleSkip(line string, err error) {
	reason := "malformed"
	if errors.Is(err, ErrDropRecord) {
		reason = "dropped"
		d.logger.Debug("record_dropped", "error", err)
	} else {
		d.logger.Warn("record_malformed", "error", err, "line", line)
	}
	d.recordDropped(reason)
}

func (d *decoder) recordDropped(reason string) {
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordDropped(reason)
	}
}
