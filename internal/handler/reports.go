package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/middleware"
	"phishguard/internal/models"
	"phishguard/internal/realtime"
	"phishguard/internal/reports"
)

type ReportHandler interface {
	Submit(c *gin.Context)
	Categories(c *gin.Context)
	List(c *gin.Context)
	Analytics(c *gin.Context)
	Export(c *gin.Context)
	Stream(c *gin.Context)
}

type reportHandler struct {
	service   *reports.Service
	dashboard *reports.Dashboard
	store     docstore.Store
	logger    *zap.Logger
	now       func() time.Time
}

func NewReportHandler(service *reports.Service, dashboard *reports.Dashboard, store docstore.Store, logger *zap.Logger) ReportHandler {
	return &reportHandler{service: service, dashboard: dashboard, store: store, logger: logger, now: time.Now}
}

func (h *reportHandler) Submit(c *gin.Context) {
	var in reports.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.Submit(c.Request.Context(), middleware.IdentityFrom(c), in)
	if err != nil {
		var invalid reports.ValidationError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report", "fields": invalid})
		case errors.Is(err, reports.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to submit a report"})
		default:
			h.logger.Error("Failed to submit report", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit report. Please try again."})
		}
		return
	}

	c.JSON(http.StatusCreated, report)
}

// Categories lists the scam types offered on the report form.
func (h *reportHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.ReportCategories})
}

func (h *reportHandler) filtered(c *gin.Context) ([]models.Report, bool) {
	if !awaitReady(c, h.dashboard.Ready()) {
		return nil, false
	}
	return reports.Filter(h.dashboard.Reports(), c.Query("q"), c.Query("category")), true
}

func (h *reportHandler) List(c *gin.Context) {
	list, ok := h.filtered(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list, "total": len(list)})
}

func (h *reportHandler) Analytics(c *gin.Context) {
	if !awaitReady(c, h.dashboard.Ready()) {
		return
	}
	c.JSON(http.StatusOK, reports.ComputeAnalytics(h.dashboard.Reports(), h.now()))
}

// Export downloads the filtered reports as CSV.
func (h *reportHandler) Export(c *gin.Context) {
	list, ok := h.filtered(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reports.ExportFilename(h.now())))
	if err := reports.ExportCSV(c.Writer, list, time.Local); err != nil {
		h.logger.Error("Failed to export reports", zap.Error(err))
		_ = c.Error(err)
	}
}

func (h *reportHandler) Stream(c *gin.Context) {
	serveStream(c, h.logger, func(ctx context.Context, onChange func([]models.Report)) (*realtime.View[models.Report], error) {
		return realtime.Subscribe(ctx, h.store, reports.Query(), models.ReportFromDocument, onChange)
	})
}
