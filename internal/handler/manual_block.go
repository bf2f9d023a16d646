package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

const (
	userIDQueryPrefix   = "userId=="
	defaultAutomatedMax = 100
)

// RecordService is the record store served over HTTP.
type RecordService interface {
	ListManualBlocksPage(ctx context.Context, patronID string, limit, offset int) (*models.ManualBlockCollection, error)
	GetManualBlock(ctx context.Context, id string) (*models.ManualBlock, error)
	CreateManualBlock(ctx context.Context, b *models.ManualBlock) error
	UpdateManualBlock(ctx context.Context, b *models.ManualBlock) error
	DeleteManualBlock(ctx context.Context, id string) error
	ListAutomatedBlocks(ctx context.Context, patronID string, limit int) ([]models.AutomatedBlock, error)
	SetActiveRecord(ctx context.Context, patronID, blockID string) error
	GetActiveRecord(ctx context.Context, patronID string) (*models.ActiveRecord, error)
}

// RecordHandler serves manual blocks, automated blocks and active records.
type RecordHandler struct {
	records RecordService
}

// NewRecordHandler creates a new RecordHandler instance.
func NewRecordHandler(records RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// Register mounts the record store routes on rg.
func (h *RecordHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/manualblocks", h.ListManualBlocks)
	rg.POST("/manualblocks", h.CreateManualBlock)
	rg.GET("/manualblocks/:id", h.GetManualBlock)
	rg.PUT("/manualblocks/:id", h.UpdateManualBlock)
	rg.DELETE("/manualblocks/:id", h.DeleteManualBlock)
	rg.GET("/automated-patron-blocks/:patronId", h.ListAutomatedBlocks)
	rg.GET("/patrons/:patronId/active-record", h.GetActiveRecord)
	rg.PUT("/patrons/:patronId/active-record", h.SetActiveRecord)
}

// parseUserQuery extracts the patron id from a query of the form userId==<id>.
func parseUserQuery(q string) (string, bool) {
	q = strings.TrimSpace(q)
	if !strings.HasPrefix(q, userIDQueryPrefix) {
		return "", false
	}
	id := strings.Trim(strings.TrimPrefix(q, userIDQueryPrefix), `"`)
	return id, id != ""
}

// ListManualBlocks handles GET /manualblocks?query=userId==<id>.
func (h *RecordHandler) ListManualBlocks(c *gin.Context) {
	patronID, ok := parseUserQuery(c.Query("query"))
	if !ok {
		respondError(c, http.StatusBadRequest, "query must be of the form userId==<id>")
		return
	}

	limit, err := queryInt(c, "limit", defaultPageLimit, maxPageLimit)
	if err != nil {
		handleError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0, 0)
	if err != nil {
		handleError(c, err)
		return
	}

	page, err := h.records.ListManualBlocksPage(c.Request.Context(), patronID, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetManualBlock handles GET /manualblocks/:id.
func (h *RecordHandler) GetManualBlock(c *gin.Context) {
	b, err := h.records.GetManualBlock(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// CreateManualBlock handles POST /manualblocks.
func (h *RecordHandler) CreateManualBlock(c *gin.Context) {
	var b models.ManualBlock
	if err := c.ShouldBindJSON(&b); err != nil {
		logger.Log.Warn("Invalid request payload",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.records.CreateManualBlock(c.Request.Context(), &b); err != nil {
		handleError(c, err)
		return
	}

	c.Header("Location", c.Request.URL.Path+"/"+b.ID)
	c.JSON(http.StatusCreated, b)
}

// UpdateManualBlock handles PUT /manualblocks/:id. The path id wins over the body.
func (h *RecordHandler) UpdateManualBlock(c *gin.Context) {
	var b models.ManualBlock
	if err := c.ShouldBindJSON(&b); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	b.ID = c.Param("id")

	if err := h.records.UpdateManualBlock(c.Request.Context(), &b); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteManualBlock handles DELETE /manualblocks/:id.
func (h *RecordHandler) DeleteManualBlock(c *gin.Context) {
	if err := h.records.DeleteManualBlock(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAutomatedBlocks handles GET /automated-patron-blocks/:patronId.
func (h *RecordHandler) ListAutomatedBlocks(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultAutomatedMax, maxPageLimit)
	if err != nil {
		handleError(c, err)
		return
	}

	automated, err := h.records.ListAutomatedBlocks(c.Request.Context(), c.Param("patronId"), limit)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AutomatedBlockCollection{AutomatedPatronBlocks: automated})
}

// GetActiveRecord handles GET /patrons/:patronId/active-record.
func (h *RecordHandler) GetActiveRecord(c *gin.Context) {
	rec, err := h.records.GetActiveRecord(c.Request.Context(), c.Param("patronId"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// SetActiveRecord handles PUT /patrons/:patronId/active-record.
func (h *RecordHandler) SetActiveRecord(c *gin.Context) {
	var rec models.ActiveRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.records.SetActiveRecord(c.Request.Context(), c.Param("patronId"), rec.BlockID); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
