// Package feed turns line-oriented MBO text into normalized records.
//
// A feed is a header line naming the columns followed by one data line per
// event. On the wire every line, header included, is prefixed with the
// sender's wall clock as float seconds and a comma.
package feed

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

var (
	// ErrMalformedRecord marks a line that could not be converted into a record.
	ErrMalformedRecord = errors.New("feed: malformed record")

	// ErrDropRecord marks a line that is skipped by contract: too few fields
	// or an action letter the book does not handle.
	ErrDropRecord = errors.New("feed: record dropped")
)

// Column names recognized in the header.
const (
	colTsEvent = "ts_event"
	colAction  = "action"
	colSide    = "side"
	colPrice   = "price"
	colSize    = "size"
	colOrderID = "order_id"
	colSymbol  = "symbol"
)

// Header maps column names to their index in a data line's payload.
type Header map[string]int

// ParseHeader builds a Header from a header payload (the line with any
// transport prefix already removed).
func ParseHeader(payload string) (Header, error) {
	payload = strings.TrimRight(payload, "\r\n")
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedRecord)
	}

	cols := strings.Split(payload, ",")
	h := make(Header, len(cols))
	for i, name := range cols {
		h[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{colTsEvent, colAction} {
		if _, ok := h[required]; !ok {
			return nil, fmt.Errorf("%w: header missing %q column", ErrMalformedRecord, required)
		}
	}
	return h, nil
}

// Width is the number of columns a data line must carry.
func (h Header) Width() int {
	n := 0
	for _, i := range h {
		n = max(n, i+1)
	}
	return n
}

// SplitFrame separates the sender timestamp prefix from the payload.
// The payload is returned even when the prefix is not a valid number.
func SplitFrame(line string) (sentAt float64, payload string, err error) {
	line = strings.TrimRight(line, "\r\n")
	prefix, payload, ok := strings.Cut(line, ",")
	if !ok {
		return 0, "", fmt.Errorf("%w: no frame prefix", ErrMalformedRecord)
	}
	sentAt, err = strconv.ParseFloat(strings.TrimSpace(prefix), 64)
	if err != nil {
		return 0, payload, fmt.Errorf("%w: frame prefix %q: %v", ErrMalformedRecord, prefix, err)
	}
	return sentAt, payload, nil
}

// Parser converts data payloads into records using a header.
type Parser struct {
	header Header
	width  int
}

// NewParser returns a parser for lines described by h.
func NewParser(h Header) *Parser {
	return &Parser{header: h, width: h.Width()}
}

// Parse converts one data payload. It returns an error wrapping ErrDropRecord
// for lines that are skipped by contract and ErrMalformedRecord for lines that
// cannot be converted.
func (p *Parser) Parse(payload string) (models.Record, error) {
	parts := strings.Split(strings.TrimRight(payload, "\r\n"), ",")
	if len(parts) < p.width {
		return models.Record{}, fmt.Errorf("%w: %d fields, header has %d", ErrDropRecord, len(parts), p.width)
	}

	get := func(name string) string {
		idx, ok := p.header[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(parts[idx])
	}

	ts, err := parseTimestamp(get(colTsEvent))
	if err != nil {
		return models.Record{}, err
	}

	action, ok := models.ActionFromCode(strings.ToUpper(get(colAction)))
	if !ok {
		return models.Record{}, fmt.Errorf("%w: action %q", ErrDropRecord, get(colAction))
	}

	sideTag := strings.ToUpper(get(colSide))
	if sideTag == "" {
		sideTag = string(models.SideNone)
	}
	if len(sideTag) != 1 {
		return models.Record{}, fmt.Errorf("%w: side %q", ErrMalformedRecord, sideTag)
	}

	price, err := parseNumber(colPrice, get(colPrice))
	if err != nil {
		return models.Record{}, err
	}
	size, err := parseNumber(colSize, get(colSize))
	if err != nil {
		return models.Record{}, err
	}

	var orderID uint64
	if raw := get(colOrderID); raw != "" {
		orderID, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return models.Record{}, fmt.Errorf("%w: order_id %q: %v", ErrMalformedRecord, raw, err)
		}
	}

	symbol := get(colSymbol)
	if symbol == "" {
		symbol = models.UnknownInstrument
	}

	return models.Record{
		Ts:         ts,
		Action:     action,
		OrderID:    orderID,
		Side:       models.Side(sideTag[0]),
		Price:      price,
		Size:       size,
		Instrument: symbol,
	}, nil
}

// parseNumber parses an optional float field. Blank means 0.
func parseNumber(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrMalformedRecord, name, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s %q is not finite", ErrMalformedRecord, name, raw)
	}
	return v, nil
}

// localLayout is ISO-8601 without a zone, read as UTC.
const localLayout = "2006-01-02T15:04:05.999999999"

// parseTimestamp converts an ISO-8601 timestamp to nanoseconds since epoch.
// A space separator between date and time is accepted.
func parseTimestamp(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: missing ts_event", ErrMalformedRecord)
	}
	if len(raw) > 10 && raw[10] == ' ' {
		raw = raw[:10] + "T" + raw[11:]
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		var errLocal error
		t, errLocal = time.ParseInLocation(localLayout, raw, time.UTC)
		if errLocal != nil {
			return 0, fmt.Errorf("%w: ts_event %q: %v", ErrMalformedRecord, raw, err)
		}
	}
	return t.UnixNano(), nil
}
