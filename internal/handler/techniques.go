package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/valentinpelus/attackref/pkg/catalog"
)

const (
	errCatalogNotLoaded = "Technique catalog is not loaded"
	errTechniqueUnknown = "Technique not found"
)

// TechniqueCatalog is the read side of the technique table
type TechniqueCatalog interface {
	All() []catalog.Technique
	ByID(id string) ([]catalog.Technique, error)
	ByTactic(tactic string) []catalog.Technique
	Tactics() []catalog.TacticSummary
}

// TechniqueHandler serves /api/techniques and /api/tactics
type TechniqueHandler struct {
	catalog TechniqueCatalog
}

// NewTechniqueHandler creates a technique handler; a nil catalog answers 503
func NewTechniqueHandler(c TechniqueCatalog) *TechniqueHandler {
	return &TechniqueHandler{catalog: c}
}

func (h *TechniqueHandler) loaded(c *gin.Context) bool {
	if h.catalog == nil {
		respondError(c, http.StatusServiceUnavailable, errCatalogNotLoaded)
		return false
	}
	return true
}

// List returns every row, or the rows of the tactic named by ?tactic=
func (h *TechniqueHandler) List(c *gin.Context) {
	if !h.loaded(c) {
		return
	}

	var rows []catalog.Technique
	if tactic := strings.TrimSpace(c.Query("tactic")); tactic != "" {
		rows = h.catalog.ByTactic(tactic)
	} else {
		rows = h.catalog.All()
	}
	if rows == nil {
		rows = []catalog.Technique{}
	}
	respondOK(c, gin.H{"count": len(rows), "techniques": rows})
}

// Get returns the rows of one technique id
func (h *TechniqueHandler) Get(c *gin.Context) {
	if !h.loaded(c) {
		return
	}

	id := c.Param("id")
	rows, err := h.catalog.ByID(id)
	if errors.Is(err, catalog.ErrNotFound) {
		respondError(c, http.StatusNotFound, errTechniqueUnknown)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(c, gin.H{"technique_id": strings.ToUpper(id), "techniques": rows})
}

// Tactics lists tactics with their technique counts
func (h *TechniqueHandler) Tactics(c *gin.Context) {
	if !h.loaded(c) {
		return
	}
	respondOK(c, gin.H{"tactics": h.catalog.Tactics()})
}
