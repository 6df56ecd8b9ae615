package feed

import (
	"context"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// Source yields records in feed-arrival order. Next blocks until a record is
// available, the stream ends (io.EOF) or ctx is done.
type Source interface {
	Next(ctx context.Context) (models.Record, error)
	Close() error
}
