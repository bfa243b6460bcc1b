package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/pkg/llm"
	"github.com/valentinpelus/attackref/pkg/types"
)

const (
	msgProcedureGenerated = "Procedure example generated successfully!"
	msgProcedureRouterOK  = "Procedure example endpoint is working!"

	errProcedureFieldsRequired = "Both technique_name and technique_description are required"
	errProcedureFailed         = "Failed to generate procedure example"
	errProviderUnavailable     = "LLM client initialization failed"
	errArchiveDisabled         = "Procedure archive is not configured"
	errArchiveRead             = "Error reading procedure archive"
)

// DefaultGenerateTimeout bounds one provider call
const DefaultGenerateTimeout = 2 * time.Minute

// ProcedureArchive keeps generated examples for later browsing
type ProcedureArchive interface {
	Store(ctx context.Context, example *types.ProcedureExample) error
	Recent(ctx context.Context, technique string, limit int) ([]types.ProcedureExample, error)
}

// ProcedureResponse is returned by the generate endpoint
type ProcedureResponse struct {
	TechniqueName    string `json:"technique_name"`
	ProcedureExample string `json:"procedure_example"`
	Message          string `json:"message"`
}

// ProcedureHandler serves /api/procedure
type ProcedureHandler struct {
	provider  llm.Provider
	initErr   error
	archive   ProcedureArchive
	validator *Validator
	logger    *zap.Logger
	timeout   time.Duration
}

// NewProcedureHandler creates a procedure handler. When the provider could not be
// created, pass it as nil together with the error that prevented it.
func NewProcedureHandler(provider llm.Provider, initErr error, archive ProcedureArchive, validator *Validator, logger *zap.Logger) *ProcedureHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == nil && initErr == nil {
		initErr = errors.New("no LLM provider configured")
	}
	return &ProcedureHandler{
		provider:  provider,
		initErr:   initErr,
		archive:   archive,
		validator: validator,
		logger:    logger,
		timeout:   DefaultGenerateTimeout,
	}
}

// Generate asks the provider for a procedure example
func (h *ProcedureHandler) Generate(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := h.validator.Procedure(body); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			respondValidation(c, verr)
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var req types.ProcedureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.TechniqueName) == "" || strings.TrimSpace(req.TechniqueDescription) == "" {
		respondError(c, http.StatusBadRequest, errProcedureFieldsRequired)
		return
	}

	if h.provider == nil {
		h.logger.Error("LLM client unavailable", zap.Error(h.initErr))
		respondError(c, http.StatusInternalServerError, errProviderUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	text, err := h.provider.GenerateProcedure(ctx, req)
	if err != nil {
		h.logger.Error("error generating procedure example",
			zap.String("technique", req.TechniqueName),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, errProcedureFailed)
		return
	}

	if h.archive != nil {
		example := &types.ProcedureExample{
			TechniqueName:        req.TechniqueName,
			TechniqueDescription: req.TechniqueDescription,
			Example:              text,
			Provider:             h.provider.Name(),
		}
		if err := h.archive.Store(ctx, example); err != nil {
			h.logger.Warn("failed to archive procedure example", zap.String("technique", req.TechniqueName), zap.Error(err))
		}
	}

	respondOK(c, ProcedureResponse{
		TechniqueName:    req.TechniqueName,
		ProcedureExample: text,
		Message:          msgProcedureGenerated,
	})
}

// Health pings the provider. It always answers 200; the status field carries the result.
func (h *ProcedureHandler) Health(c *gin.Context) {
	if h.provider == nil {
		h.logger.Warn("LLM client unavailable for health check", zap.Error(h.initErr))
		respondOK(c, gin.H{"status": "error", "message": "Health check failed: " + errProviderUnavailable})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.provider.Ping(ctx); err != nil {
		respondOK(c, gin.H{"status": "unhealthy", "message": "LLM connection failed"})
		return
	}
	respondOK(c, gin.H{"status": "healthy", "message": "LLM connection is working"})
}

// Test reports that the procedure routes are mounted
func (h *ProcedureHandler) Test(c *gin.Context) {
	respondOK(c, gin.H{"message": msgProcedureRouterOK})
}

// History lists archived examples, newest first
func (h *ProcedureHandler) History(c *gin.Context) {
	if h.archive == nil {
		respondError(c, http.StatusServiceUnavailable, errArchiveDisabled)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	examples, err := h.archive.Recent(c.Request.Context(), c.Query("technique"), limit)
	if err != nil {
		h.logger.Error("failed to read procedure archive", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errArchiveRead)
		return
	}
	respondOK(c, gin.H{"examples": examples})
}
