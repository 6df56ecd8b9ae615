package book

import (
	"fmt"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// InvalidSideError is returned for a side tag that is not BID, ASK or NONE.
// It indicates a corrupt or unsupported feed and must not be swallowed.
type InvalidSideError struct {
	Side models.Side
}

func (e *InvalidSideError) Error() string {
	return fmt.Sprintf("book: invalid side %s", e.Side)
}
