package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishguard/internal/learning"
	"phishguard/internal/middleware"
)

type LearningHandler interface {
	Lessons(c *gin.Context)
	Lesson(c *gin.Context)
	AnswerQuiz(c *gin.Context)
	Progress(c *gin.Context)
	ResetProgress(c *gin.Context)
	CompleteLesson(c *gin.Context)
}

type learningHandler struct {
	logger *zap.Logger
}

func NewLearningHandler(logger *zap.Logger) LearningHandler {
	return &learningHandler{logger: logger}
}

// engine works on the progress of the requesting device.
func (h *learningHandler) engine(c *gin.Context) *learning.Engine {
	return learning.NewEngine(middleware.LocalFrom(c), h.logger)
}

func (h *learningHandler) Lessons(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lessons": learning.Lessons(c.Query("category"), c.Query("difficulty"))})
}

// Lesson returns one lesson with its pages.
func (h *learningHandler) Lesson(c *gin.Context) {
	detail, err := learning.Detail(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lesson not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

type QuizAnswerRequest struct {
	Answer *int `json:"answer" binding:"required"`
}

func (h *learningHandler) AnswerQuiz(c *gin.Context) {
	var req QuizAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := learning.CheckAnswer(c.Param("id"), *req.Answer)
	switch {
	case errors.Is(err, learning.ErrUnknownLesson), errors.Is(err, learning.ErrNoQuiz):
		c.JSON(http.StatusNotFound, gin.H{"error": "Quiz not found"})
	case errors.Is(err, learning.ErrInvalidAnswer):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Answer is not one of the options"})
	case err != nil:
		h.logger.Error("Failed to check quiz answer", zap.String("lesson", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check answer"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (h *learningHandler) Progress(c *gin.Context) {
	p, err := h.engine(c).Load()
	if err != nil {
		h.logger.Error("Failed to load progress", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load progress"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *learningHandler) ResetProgress(c *gin.Context) {
	p, err := h.engine(c).Reset()
	if err != nil {
		h.logger.Error("Failed to reset progress", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset progress"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *learningHandler) CompleteLesson(c *gin.Context) {
	done, err := h.engine(c).CompleteLesson(c.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrUnknownLesson) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lesson not found"})
			return
		}
		h.logger.Error("Failed to complete lesson", zap.String("lesson", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save progress"})
		return
	}
	c.JSON(http.StatusOK, done)
}
