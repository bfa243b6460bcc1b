package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/pkg/feedback"
	"github.com/valentinpelus/attackref/pkg/types"
)

const (
	msgFeedbackSubmitted = "Feedback submitted successfully!"
	msgFeedbackCleared   = "All feedback cleared successfully!"
	msgFeedbackAvailable = "Feedback CSV is available at /feedback.csv"

	errSavingFeedback   = "Error saving feedback"
	errReadingFeedback  = "Error reading feedback"
	errClearingFeedback = "Error clearing feedback"
	errNoFeedbackFile   = "No feedback file found"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType  = "text/csv; charset=utf-8"
	notifyTimeout   = 10 * time.Second
)

// FeedbackStore is the persistence the feedback endpoints need
type FeedbackStore interface {
	Append(sub types.FeedbackSubmission) (types.FeedbackRecord, error)
	List() ([]types.FeedbackRecord, error)
	Clear() error
	Exists() bool
	Export(w io.Writer) (int64, error)
	Stats() (types.FeedbackStats, error)
}

// FeedbackNotifier is told about every stored record
type FeedbackNotifier interface {
	NotifyFeedback(ctx context.Context, record types.FeedbackRecord) error
}

// FeedbackResponse echoes a stored record
type FeedbackResponse struct {
	ID           string `json:"id"`
	Technique    string `json:"technique"`
	STRIDE       string `json:"stride"`
	CIA          string `json:"cia"`
	FeedbackType string `json:"feedback_type"`
	Timestamp    string `json:"timestamp"`
	SID          string `json:"sid"`
	Comment      string `json:"comment"`
	Message      string `json:"message"`
}

// FeedbackHandler serves /api/feedback and the raw CSV
type FeedbackHandler struct {
	store     FeedbackStore
	validator *Validator
	notifier  FeedbackNotifier
	logger    *zap.Logger
	pending   sync.WaitGroup
}

// NewFeedbackHandler creates a feedback handler; notifier may be nil
func NewFeedbackHandler(store FeedbackStore, validator *Validator, notifier FeedbackNotifier, logger *zap.Logger) *FeedbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackHandler{
		store:     store,
		validator: validator,
		notifier:  notifier,
		logger:    logger,
	}
}

// Submit validates and appends one feedback record
func (h *FeedbackHandler) Submit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := h.validator.Feedback(body); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.logger.Info("rejected feedback submission", zap.Error(verr))
			respondValidation(c, verr)
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var sub types.FeedbackSubmission
	if err := json.Unmarshal(body, &sub); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.store.Append(sub)
	if err != nil {
		h.logger.Error("failed to save feedback", zap.String("technique", sub.Technique), zap.Error(err))
		respondError(c, http.StatusInternalServerError, errSavingFeedback)
		return
	}

	h.notify(record)

	respondOK(c, FeedbackResponse{
		ID:           record.ID,
		Technique:    record.Technique,
		STRIDE:       record.STRIDE,
		CIA:          record.CIA,
		FeedbackType: record.FeedbackType,
		Timestamp:    record.Timestamp(),
		SID:          record.SID,
		Comment:      record.Comment,
		Message:      msgFeedbackSubmitted,
	})
}

// notify runs the notifier in the background; failures are only logged
func (h *FeedbackHandler) notify(record types.FeedbackRecord) {
	if h.notifier == nil {
		return
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := h.notifier.NotifyFeedback(ctx, record); err != nil {
			h.logger.Warn("failed to send feedback notification", zap.String("id", record.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until background notifications have finished
func (h *FeedbackHandler) Wait() {
	h.pending.Wait()
}

// List returns every record keyed by the CSV header names
func (h *FeedbackHandler) List(c *gin.Context) {
	records, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to read feedback", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errReadingFeedback)
		return
	}

	items := make([]map[string]string, 0, len(records))
	for _, r := range records {
		items = append(items, r.Fields())
	}
	respondOK(c, gin.H{"feedback": items})
}

// Clear removes every record
func (h *FeedbackHandler) Clear(c *gin.Context) {
	if err := h.store.Clear(); err != nil {
		h.logger.Error("failed to clear feedback", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errClearingFeedback)
		return
	}
	respondOK(c, gin.H{"message": msgFeedbackCleared})
}

// Download tells the caller where the raw CSV lives
func (h *FeedbackHandler) Download(c *gin.Context) {
	if !h.store.Exists() {
		respondError(c, http.StatusNotFound, errNoFeedbackFile)
		return
	}
	respondOK(c, gin.H{"message": msgFeedbackAvailable})
}

// Stats returns counts per feedback type and technique
func (h *FeedbackHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to compute feedback stats", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errReadingFeedback)
		return
	}
	respondOK(c, stats)
}

// RawCSV serves the backing file as stored
func (h *FeedbackHandler) RawCSV(c *gin.Context) {
	if !h.store.Exists() {
		respondError(c, http.StatusNotFound, errNoFeedbackFile)
		return
	}

	var buf bytes.Buffer
	if _, err := h.store.Export(&buf); err != nil {
		h.logger.Error("failed to export feedback", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errReadingFeedback)
		return
	}
	c.Data(http.StatusOK, csvContentType, buf.Bytes())
}

// ExportXLSX renders every record as a spreadsheet attachment
func (h *FeedbackHandler) ExportXLSX(c *gin.Context) {
	records, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to read feedback", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errReadingFeedback)
		return
	}

	var buf bytes.Buffer
	if err := feedback.WriteXLSX(&buf, records); err != nil {
		h.logger.Error("failed to render feedback workbook", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errReadingFeedback)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="feedback.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
