package feed

import (
	"context"
	"fmt"
	"os"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// FileSource reads an unframed feed file, header first.
type FileSource struct {
	f       *os.File
	scanner *Scanner
}

// OpenFile opens path for reading. opts.Framed is honored so captured wire
// traffic can be replayed as well.
func OpenFile(path string, opts Options) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed file: %w", err)
	}
	if opts.Logger != nil {
		opts.Logger = opts.Logger.With("path", path)
	}
	return &FileSource{f: f, scanner: NewScanner(f, opts)}, nil
}

// Next returns the next record or io.EOF at end of file.
func (s *FileSource) Next(ctx context.Context) (models.Record, error) {
	if err := ctx.Err(); err != nil {
		return models.Record{}, err
	}
	return s.scanner.Next()
}

// Close closes the file.
func (s *FileSource) Close() error {
	return s.f.Close()
}
