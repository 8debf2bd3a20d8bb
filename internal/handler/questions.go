package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishguard/internal/docstore"
	"phishguard/internal/middleware"
	"phishguard/internal/models"
	"phishguard/internal/qa"
	"phishguard/internal/realtime"
)

type QuestionHandler interface {
	Ask(c *gin.Context)
	List(c *gin.Context)
	Threads(c *gin.Context)
	Get(c *gin.Context)
	Answer(c *gin.Context)
	Resolve(c *gin.Context)
	Like(c *gin.Context)
	View(c *gin.Context)
	Reply(c *gin.Context)
	LikeReply(c *gin.Context)
	Stream(c *gin.Context)
}

type questionHandler struct {
	service *qa.Service
	feed    *qa.Feed
	store   docstore.Store
	logger  *zap.Logger
}

func NewQuestionHandler(service *qa.Service, feed *qa.Feed, store docstore.Store, logger *zap.Logger) QuestionHandler {
	return &questionHandler{service: service, feed: feed, store: store, logger: logger}
}

type ContentRequest struct {
	Content string `json:"content"`
}

// fail maps board errors to responses.
func (h *questionHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, qa.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in required"})
	case errors.Is(err, qa.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the reviewer can do this"})
	case errors.Is(err, qa.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found"})
	case errors.Is(err, qa.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Reply not found"})
	case errors.Is(err, qa.ErrAlreadyAnswered), errors.Is(err, qa.ErrNotAnswered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, qa.ErrEmptyContent), errors.Is(err, qa.ErrInvalidPriority):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Question operation failed", zap.String("operation", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op + " question"})
	}
}

func (h *questionHandler) Ask(c *gin.Context) {
	var in qa.AskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.service.Ask(c.Request.Context(), middleware.IdentityFrom(c), in)
	if err != nil {
		h.fail(c, "ask", err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// List returns the questions matching q and status, with counts over all
// questions.
func (h *questionHandler) List(c *gin.Context) {
	if !awaitReady(c, h.feed.Ready()) {
		return
	}
	all := h.feed.Questions()
	c.JSON(http.StatusOK, gin.H{
		"questions":  qa.FilterQuestions(all, c.Query("q"), c.Query("status")),
		"stats":      qa.ComputeStats(all),
		"isReviewer": h.service.IsReviewer(middleware.IdentityFrom(c)),
	})
}

func (h *questionHandler) Threads(c *gin.Context) {
	if !awaitReady(c, h.feed.Ready()) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": h.feed.Threads(c.Query("category"), c.Query("q"))})
}

func (h *questionHandler) Get(c *gin.Context) {
	q, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "load", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *questionHandler) Answer(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.service.Answer(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"), req.Content)
	if err != nil {
		h.fail(c, "answer", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *questionHandler) Resolve(c *gin.Context) {
	q, err := h.service.Resolve(c.Request.Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "resolve", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *questionHandler) Like(c *gin.Context) {
	if err := h.service.Like(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "like", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *questionHandler) View(c *gin.Context) {
	if err := h.service.View(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "view", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reply adds a reply to a question, answer or reply. Replies live in the
// feed of this node only.
func (h *questionHandler) Reply(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.feed.Reply(c.Param("id"), middleware.IdentityFrom(c), req.Content)
	if err != nil {
		h.fail(c, "reply to", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// LikeReply likes an answer or a reply. Like replies, these likes live in the
// feed of this node only.
func (h *questionHandler) LikeReply(c *gin.Context) {
	likes, err := h.feed.LikeReply(c.Param("id"))
	if err != nil {
		h.fail(c, "like reply in", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "likes": likes})
}

func (h *questionHandler) Stream(c *gin.Context) {
	serveStream(c, h.logger, func(ctx context.Context, onChange func([]models.Question)) (*realtime.View[models.Question], error) {
		return realtime.Subscribe(ctx, h.store, qa.Query(), models.QuestionFromDocument, onChange)
	})
}
