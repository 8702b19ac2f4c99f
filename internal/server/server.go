// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/metrics"
	"github.com/rovshanmuradov/solana-otc/internal/otc"
	"github.com/rovshanmuradov/solana-otc/internal/storage"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server is the thin HTTP layer over the swap engine. All swap logic
// lives in the engine; handlers only translate requests, responses and
// the error taxonomy.
type Server struct {
	engine  *otc.Engine
	metrics *metrics.Collector
	logger  *zap.Logger
	http    *http.Server
}

func New(engine *otc.Engine, collector *metrics.Collector, listenAddr string, logger *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		metrics: collector,
		logger:  logger.Named("http"),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	api := router.Group("/api/v1")
	api.GET("/config", s.handleConfig)
	api.GET("/history", s.handleHistory)
	api.POST("/swaps", s.handleCreateSwap)
	api.POST("/swaps/submit", s.handleSubmitSwap)

	if collector != nil {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	s.http = &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) handleConfig(c *gin.Context) {
	status, err := s.engine.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHistory(c *gin.Context) {
	buyer := c.Query("buyer")
	if buyer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing buyer query parameter"})
		return
	}

	swaps, err := s.engine.History(c.Request.Context(), buyer, 50)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swaps": swaps})
}

type createSwapRequest struct {
	BuyerAddress string `json:"buyerAddress" binding:"required"`
	TokenAmount  uint64 `json:"tokenAmount" binding:"required"`
}

func (s *Server) handleCreateSwap(c *gin.Context) {
	var req createSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	quote, err := s.engine.CreateSwap(c.Request.Context(), req.BuyerAddress, req.TokenAmount)
	if s.metrics != nil {
		s.metrics.RecordQuote(err == nil)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type submitSwapRequest struct {
	SwapID            string `json:"swapId" binding:"required"`
	SignedTransaction string `json:"signedTransaction" binding:"required"`
}

func (s *Server) handleSubmitSwap(c *gin.Context) {
	var req submitSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.engine.SubmitSwap(c.Request.Context(), req.SwapID, req.SignedTransaction)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
// Nothing is silently swallowed; unknown errors become opaque 500s.
func (s *Server) writeError(c *gin.Context, err error) {
	var supplyErr *otc.InsufficientSupplyError

	switch {
	case errors.Is(err, otc.ErrAmountOutOfRange),
		errors.Is(err, otc.ErrQuoteExpired),
		errors.Is(err, otc.ErrTransactionMismatch),
		errors.Is(err, otc.ErrSwapNotPending):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, otc.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.As(err, &supplyErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     supplyErr.Error(),
			"available": supplyErr.Available,
		})
	case errors.Is(err, storage.ErrSwapNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, otc.ErrTreasuryAccountMissing):
		s.logger.Error("Treasury misconfiguration surfaced to API", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "swaps are temporarily unavailable"})
	case errors.Is(err, otc.ErrExecutionFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Unhandled engine error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
