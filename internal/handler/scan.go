package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishguard/internal/inference"
	"phishguard/internal/middleware"
	"phishguard/internal/models"
	"phishguard/internal/realtime"
	"phishguard/internal/scanner"
)

// MaxUploadBytes caps document and QR uploads.
const MaxUploadBytes = 10 << 20

type ScanHandler interface {
	ScanLink(c *gin.Context)
	ScanEmail(c *gin.Context)
	ScanDocument(c *gin.Context)
	ScanQR(c *gin.Context)
	History(c *gin.Context)
	ClearHistory(c *gin.Context)
	Stream(c *gin.Context)
}

type scanHandler struct {
	scanner *scanner.Service
	history *realtime.History
	logger  *zap.Logger
}

func NewScanHandler(scanner *scanner.Service, history *realtime.History, logger *zap.Logger) ScanHandler {
	return &scanHandler{scanner: scanner, history: history, logger: logger}
}

type LinkRequest struct {
	URL string `json:"url"`
}

type EmailRequest struct {
	Text         string `json:"text"`
	SenderDomain string `json:"senderDomain"`
}

func (h *scanHandler) ScanLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scan, err := h.scanner.ScanLink(c.Request.Context(), middleware.LocalFrom(c), middleware.IdentityFrom(c), req.URL)
	h.respond(c, scan, err)
}

func (h *scanHandler) ScanEmail(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scan, err := h.scanner.ScanEmail(c.Request.Context(), middleware.LocalFrom(c), middleware.IdentityFrom(c), req.Text, req.SenderDomain)
	h.respond(c, scan, err)
}

func (h *scanHandler) ScanDocument(c *gin.Context) {
	file, name, ok := upload(c)
	if !ok {
		return
	}
	defer file.Close()

	scan, err := h.scanner.ScanDocument(c.Request.Context(), middleware.LocalFrom(c), middleware.IdentityFrom(c), name, file)
	h.respond(c, scan, err)
}

func (h *scanHandler) ScanQR(c *gin.Context) {
	file, name, ok := upload(c)
	if !ok {
		return
	}
	defer file.Close()

	res, err := h.scanner.ScanQR(c.Request.Context(), name, file)
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrNoQRCode):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No QR code detected"})
		case errors.Is(err, scanner.ErrUnsupportedFile), errors.Is(err, scanner.ErrEmptyInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, inference.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "QR scanner is unavailable"})
		default:
			h.logger.Error("QR scan failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to scan QR code"})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *scanHandler) respond(c *gin.Context, scan scanner.Scan, err error) {
	if err != nil {
		if errors.Is(err, scanner.ErrEmptyInput) || errors.Is(err, scanner.ErrUnsupportedFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Scan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scan failed"})
		return
	}
	c.JSON(http.StatusOK, scan)
}

// upload opens the multipart "file" field.
func upload(c *gin.Context) (multipart.File, string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
			return nil, "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return nil, "", false
	}
	return file, header.Filename, true
}

func scanKind(c *gin.Context) (models.ScanKind, bool) {
	kind := models.ScanKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown scan kind"})
		return "", false
	}
	return kind, true
}

func (h *scanHandler) History(c *gin.Context) {
	kind, ok := scanKind(c)
	if !ok {
		return
	}
	records, err := h.history.List(c.Request.Context(), middleware.LocalFrom(c), middleware.IdentityFrom(c), kind)
	if err != nil {
		h.logger.Error("Failed to load history", zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}

func (h *scanHandler) ClearHistory(c *gin.Context) {
	kind, ok := scanKind(c)
	if !ok {
		return
	}
	res := h.history.Clear(c.Request.Context(), middleware.LocalFrom(c), middleware.IdentityFrom(c), kind)
	if res.Outcome == realtime.Lost {
		h.logger.Error("Failed to clear history", zap.String("kind", string(kind)), zap.Error(res.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear history"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Stream sends the live remote history of the signed-in caller.
func (h *scanHandler) Stream(c *gin.Context) {
	kind, ok := scanKind(c)
	if !ok {
		return
	}
	id := middleware.IdentityFrom(c)
	serveStream(c, h.logger, func(ctx context.Context, onChange func([]models.ScanRecord)) (*realtime.View[models.ScanRecord], error) {
		return h.history.Watch(ctx, id, kind, onChange)
	})
}
