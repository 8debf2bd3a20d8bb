package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"phishguard/internal/blocklist"
	"phishguard/internal/docstore"
	"phishguard/internal/handler"
	"phishguard/internal/localstore"
	"phishguard/internal/middleware"
	"phishguard/internal/qa"
	"phishguard/internal/realtime"
	"phishguard/internal/reports"
	"phishguard/internal/scanner"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services the routes are served from.
type Deps struct {
	Store     docstore.Store
	Local     localstore.Store
	Tokens    middleware.TokenParser
	Accounts  handler.Accounts
	Scanner   *scanner.Service
	History   *realtime.History
	Reports   *reports.Service
	Dashboard *reports.Dashboard
	Questions *qa.Service
	Feed      *qa.Feed
	Blocklist *blocklist.Cache
}

type Server struct {
	router *gin.Engine
	deps   Deps
	logger *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS())

	s := &Server{
		router: router,
		deps:   deps,
		logger: logger,
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.deps.Accounts, s.logger)
	scanHandler := handler.NewScanHandler(s.deps.Scanner, s.deps.History, s.logger)
	reportHandler := handler.NewReportHandler(s.deps.Reports, s.deps.Dashboard, s.deps.Store, s.logger)
	questionHandler := handler.NewQuestionHandler(s.deps.Questions, s.deps.Feed, s.deps.Store, s.logger)
	learningHandler := handler.NewLearningHandler(s.logger)
	blocklistHandler := handler.NewBlocklistHandler(s.deps.Blocklist)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.Use(middleware.Authenticate(s.deps.Tokens, s.logger), middleware.Device(s.deps.Local))

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/anonymous", authHandler.Anonymous)
	authGroup.GET("/me", authHandler.Me)

	scanGroup := api.Group("/scan")
	scanGroup.POST("/link", scanHandler.ScanLink)
	scanGroup.POST("/email", scanHandler.ScanEmail)
	scanGroup.POST("/doc", scanHandler.ScanDocument)
	scanGroup.POST("/qr", scanHandler.ScanQR)

	api.GET("/scans/:kind/history", scanHandler.History)
	api.DELETE("/scans/:kind/history", scanHandler.ClearHistory)
	api.GET("/scans/:kind/stream", middleware.RequireIdentity(), scanHandler.Stream)

	reportGroup := api.Group("/reports")
	reportGroup.POST("", reportHandler.Submit)
	reportGroup.GET("", reportHandler.List)
	reportGroup.GET("/categories", reportHandler.Categories)
	reportGroup.GET("/analytics", reportHandler.Analytics)
	reportGroup.GET("/export.csv", reportHandler.Export)
	reportGroup.GET("/stream", reportHandler.Stream)

	questionGroup := api.Group("/questions")
	questionGroup.POST("", questionHandler.Ask)
	questionGroup.GET("", questionHandler.List)
	questionGroup.GET("/threads", questionHandler.Threads)
	questionGroup.GET("/stream", questionHandler.Stream)
	questionGroup.GET("/:id", questionHandler.Get)
	questionGroup.POST("/:id/answer", questionHandler.Answer)
	questionGroup.POST("/:id/resolve", questionHandler.Resolve)
	questionGroup.POST("/:id/like", questionHandler.Like)
	questionGroup.POST("/:id/view", questionHandler.View)
	questionGroup.POST("/:id/replies", questionHandler.Reply)
	api.POST("/replies/:id/like", questionHandler.LikeReply)

	api.GET("/lessons", learningHandler.Lessons)
	api.GET("/lessons/:id", learningHandler.Lesson)
	api.POST("/lessons/:id/quiz", learningHandler.AnswerQuiz)
	api.GET("/progress", learningHandler.Progress)
	api.DELETE("/progress", learningHandler.ResetProgress)
	api.POST("/progress/lessons/:id/complete", learningHandler.CompleteLesson)

	api.GET("/blocklist/check", blocklistHandler.Check)
	api.GET("/blocklist/status", blocklistHandler.Status)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
