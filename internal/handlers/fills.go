package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/athiyenarivalagan/hft-market-making/internal/driver"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

const maxFillBody = 4 << 10

// FillSubmitter applies an own-order execution inside the driver loop.
type FillSubmitter interface {
	SubmitFill(ctx context.Context, f models.Fill) error
}

// FillHandler handles POST /fills.
type FillHandler struct {
	driver    FillSubmitter
	validator *schemaValidator
	logger    *slog.Logger
}

// NewFillHandler creates the fill intake handler.
func NewFillHandler(d FillSubmitter, logger *slog.Logger) (*FillHandler, error) {
	v, err := newSchemaValidator(fillSchema())
	if err != nil {
		return nil, err
	}
	return &FillHandler{
		driver:    d,
		validator: v,
		logger:    logger.With("handler", "fills"),
	}, nil
}

func (h *FillHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFillBody))
	if err != nil {
		sendError(w, http.StatusRequestEntityTooLarge, "invalid_body", "Body too large")
		return
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		h.logger.Debug("fill_decode_failed", "error", err)
		sendError(w, http.StatusBadRequest, "invalid_body", "Body must be a JSON object")
		return
	}
	if err := h.validator.validate(doc); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_fill", err.Error())
		return
	}

	var fill models.Fill
	if err := json.Unmarshal(body, &fill); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_fill", err.Error())
		return
	}

	err = h.driver.SubmitFill(r.Context(), fill)
	switch {
	case err == nil:
		h.logger.Info("fill_accepted", "side", fill.Side, "price", fill.Price, "size", fill.Size)
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, driver.ErrInvalidFill):
		sendError(w, http.StatusBadRequest, "invalid_fill", err.Error())
	case errors.Is(err, driver.ErrStopped):
		sendError(w, http.StatusServiceUnavailable, "driver_stopped", "Engine is not running")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.logger.Warn("fill_timeout", "error", err)
		sendError(w, http.StatusGatewayTimeout, "timeout", "Fill was not applied in time")
	default:
		h.logger.Error("fill_failed", "error", err)
		sendError(w, http.StatusInternalServerError, "internal_error", "Fill could not be applied")
	}
}
