package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/middleware"
	"github.com/libraryops/patron-blocks/internal/panel"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

// CreatePanelRequest opens a panel for a patron.
type CreatePanelRequest struct {
	PatronID    string `json:"patronId" binding:"required"`
	AccordionID string `json:"accordionId"`
	Expanded    bool   `json:"expanded"`
}

// SortRequest toggles a sort column by its alias.
type SortRequest struct {
	Key string `json:"key" binding:"required"`
}

// PanelResponse wraps a view with the side effects of the call that produced it.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type PanelResponse struct {
	View     panel.View `json:"view"`
	Toggled  bool       `json:"toggled,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// NavigateResponse tells the UI where a row click leads.
type NavigateResponse struct {
	NavigateTo string `json:"navigateTo"`
}

// PanelHandler exposes patron blocks panels over HTTP. Panels live in the registry
// between calls and belong to the user who opened them.
type PanelHandler struct {
	registry *panel.Registry
	store    panel.Store
	cfg      panel.Config
	notifier blocks.Notifier
	catalog  *i18n.Catalog
	fallback *i18n.Localizer
	now      func() time.Time
}

// NewPanelHandler creates a new PanelHandler instance. notifier may be nil.
func NewPanelHandler(
	registry *panel.Registry,
	store panel.Store,
	cfg panel.Config,
	notifier blocks.Notifier,
	catalog *i18n.Catalog,
	defaultLanguage string,
) *PanelHandler {
	return &PanelHandler{
		registry: registry,
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		catalog:  catalog,
		fallback: catalog.Localizer(defaultLanguage),
		now:      time.Now,
	}
}

// Register mounts the panel routes on rg.
func (h *PanelHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/panels", h.CreatePanel)
	rg.GET("/panels/:panelId", h.GetPanel)
	rg.POST("/panels/:panelId/refresh", h.RefreshPanel)
	rg.POST("/panels/:panelId/sort", h.SortPanel)
	rg.POST("/panels/:panelId/rows/:rowId/click", h.ClickRow)
	rg.DELETE("/panels/:panelId", h.ClosePanel)
}

func (h *PanelHandler) localizer(c *gin.Context) *i18n.Localizer {
	return middleware.GetLocalizer(c, h.fallback)
}

// viewOptions checks capabilities against the caller's token, not the one that
// opened the panel.
func viewOptions(c *gin.Context) []panel.ViewOption {
	opts := []panel.ViewOption{panel.WithViewer(middleware.GetCapabilities(c))}
	if c.Query("applySort") == "true" {
		opts = append(opts, panel.WithAppliedSort())
	}
	return opts
}

// CreatePanel handles POST /panels. It mounts the panel, which decides whether the
// accordion is open.
func (h *PanelHandler) CreatePanel(c *gin.Context) {
	var req CreatePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Invalid request payload",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	var toggled bool
	opts := []panel.Option{
		panel.WithClock(h.now),
		panel.WithPermissions(middleware.GetCapabilities(c)),
		panel.WithHost(panel.Host{
			AccordionID: req.AccordionID,
			Expanded:    req.Expanded,
			OnToggle:    func(string) { toggled = true },
		}),
	}
	if h.notifier != nil {
		opts = append(opts, panel.WithNotifier(h.notifier))
	}
	p := panel.New(h.cfg, req.PatronID, h.store, opts...)

	resp := PanelResponse{}
	if err := p.Mount(c.Request.Context()); err != nil {
		if !errors.Is(err, panel.ErrAutomatedUnavailable) {
			p.Close()
			logger.Log.Error("Failed to mount panel",
				zap.Error(err),
				zap.String("patronId", req.PatronID),
			)
			respondError(c, http.StatusBadGateway, "failed to load patron blocks")
			return
		}
		resp.Warnings = append(resp.Warnings, err.Error())
	}

	h.registry.Add(middleware.GetSubject(c), p)
	h.expire(c, p.Update(c.Request.Context()))

	resp.Toggled = toggled
	resp.View = p.View(h.localizer(c), viewOptions(c)...)

	logger.Log.Info("Panel opened",
		zap.String("panelId", p.ID()),
		zap.String("patronId", req.PatronID),
		zap.Bool("expanded", resp.View.Expanded),
	)
	c.Header("Location", c.Request.URL.Path+"/"+p.ID())
	c.JSON(http.StatusCreated, resp)
}

// expire waits for a removal started by this request. Failures are logged only: the
// blocks stay listed and are retried on the next update.
func (h *PanelHandler) expire(c *gin.Context, exp *panel.Expiry) {
	if exp == nil {
		return
	}
	if _, err := exp.Wait(c.Request.Context()); err != nil {
		logger.Log.Warn("Expired blocks not fully removed",
			zap.Error(err),
			zap.Int("dispatched", len(exp.Blocks())),
		)
	}
}

func (h *PanelHandler) lookup(c *gin.Context) (*panel.Panel, bool) {
	p, err := h.registry.Get(c.Param("panelId"), middleware.GetSubject(c))
	if err != nil {
		if errors.Is(err, panel.ErrPanelNotFound) {
			respondError(c, http.StatusNotFound, h.localizer(c).Localize(i18n.MsgErrorPanelNotFound))
			return nil, false
		}
		handleError(c, err)
		return nil, false
	}
	return p, true
}

// GetPanel handles GET /panels/:panelId. Expired blocks found since the last call
// are removed before the view is rendered.
func (h *PanelHandler) GetPanel(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	h.expire(c, p.Update(c.Request.Context()))
	c.JSON(http.StatusOK, PanelResponse{View: p.View(h.localizer(c), viewOptions(c)...)})
}

// RefreshPanel handles POST /panels/:panelId/refresh.
func (h *PanelHandler) RefreshPanel(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	resp := PanelResponse{}
	exp, err := p.Refresh(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, panel.ErrAutomatedUnavailable):
			resp.Warnings = append(resp.Warnings, err.Error())
		case panel.IsFetchError(err):
			logger.Log.Error("Failed to refresh panel",
				zap.Error(err),
				zap.String("panelId", p.ID()),
			)
			respondError(c, http.StatusBadGateway, "failed to load patron blocks")
			return
		default:
			handleError(c, err)
			return
		}
	}

	h.expire(c, exp)
	resp.View = p.View(h.localizer(c), viewOptions(c)...)
	c.JSON(http.StatusOK, resp)
}

// SortPanel handles POST /panels/:panelId/sort. An unknown key leaves the sort
// unchanged and is reported as a warning.
func (h *PanelHandler) SortPanel(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	loc := h.localizer(c)
	resp := PanelResponse{}
	if !p.Sort(req.Key, loc) {
		resp.Warnings = append(resp.Warnings, loc.Localize(i18n.MsgErrorInvalidSortKey))
	}

	resp.View = p.View(loc, panel.WithViewer(middleware.GetCapabilities(c)), panel.WithAppliedSort())
	c.JSON(http.StatusOK, resp)
}

// ClickRow handles POST /panels/:panelId/rows/:rowId/click. An empty body counts as
// a click on the row itself.
func (h *PanelHandler) ClickRow(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}

	var ev panel.ClickEvent
	if err := c.ShouldBindJSON(&ev); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	path, navigate := p.RowClick(ev, c.Param("rowId"), panel.WithViewer(middleware.GetCapabilities(c)))
	if !navigate {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, NavigateResponse{NavigateTo: path})
}

// ClosePanel handles DELETE /panels/:panelId.
func (h *PanelHandler) ClosePanel(c *gin.Context) {
	if err := h.registry.Remove(c.Param("panelId"), middleware.GetSubject(c)); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
