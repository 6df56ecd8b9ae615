package feed

import (
	"bufio"
	"fmt"
	"io"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

const maxLineBytes = 1 << 20

// Scanner reads records from a line stream. The first non-empty line is the
// header; dropped and malformed lines are logged and skipped.
type Scanner struct {
	sc  *bufio.Scanner
	dec *decoder
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader, opts Options) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Scanner{sc: sc, dec: newDecoder(opts, "feed_scanner")}
}

// Next returns the next well-formed record. It returns io.EOF when the stream
// ends cleanly, including when it ends before a header was seen.
func (s *Scanner) Next() (models.Record, error) {
	for s.sc.Scan() {
		line := s.sc.Text()
		if line == "" {
			continue
		}

		if !s.dec.hasHeader() {
			if err := s.dec.setHeader(line); err != nil {
				return models.Record{}, fmt.Errorf("feed header: %w", err)
			}
			continue
		}

		rec, err := s.dec.decode(line)
		if err != nil {
			s.dec.handleSkip(line, err)
			continue
		}
		return rec, nil
	}

	if err := s.sc.Err(); err != nil {
		return models.Record{}, fmt.Errorf("feed read: %w", err)
	}
	if !s.dec.hasHeader() {
		s.dec.logger.Warn("feed_empty", "reason", "stream closed before header")
	}
	return models.Record{}, io.EOF
}
