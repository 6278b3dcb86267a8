// Package server exposes the submission queue over HTTP: submit a test run,
// poll its status, cancel it, scrape metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"webqa/internal/queue"
	"webqa/internal/types"
)

// SubmitRequest is the body of POST /api/tasks.
type SubmitRequest struct {
	TaskID             string                     `json:"task_id"`
	TargetURL          string                     `json:"target_url" binding:"required"`
	LLMConfig          *types.LLMConfig           `json:"llm_config,omitempty"`
	BrowserConfig      *types.BrowserConfig       `json:"browser_config,omitempty"`
	TestConfigurations []*types.TestConfiguration `json:"test_configurations" binding:"required"`
	UserInfo           map[string]interface{}     `json:"user_info,omitempty"`
}

// Canceler cancels running tests; the executor implements it.
type Canceler interface {
	CancelTest(testID string) bool
}

// Server wires the queue, metrics, and HTTP surface together.
type Server struct {
	queue    *queue.Queue
	canceler Canceler
	metrics  *Metrics
	registry *prometheus.Registry
	logger   *zap.Logger

	engine *gin.Engine
	http   *http.Server

	// submissions keyed by task id, read by the worker.
	subMu       sync.Mutex
	submissions map[string]*SubmitRequest
}

// New builds the server. canceler may be nil when cancellation is not
// offered.
func New(q *queue.Queue, canceler Canceler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))

	s := &Server{
		queue:       q,
		canceler:    canceler,
		metrics:     NewMetrics(registry),
		registry:    registry,
		logger:      logger.Named("server"),
		engine:      engine,
		submissions: make(map[string]*SubmitRequest),
	}
	s.routes()
	return s
}

// Metrics returns the server's metric set for the worker to record into.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Submission returns the stored request for a task id.
func (s *Server) Submission(taskID string) (*SubmitRequest, bool) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	req, found := s.submissions[taskID]
	return req, found
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.POST("/tasks", s.submitTask)
	api.GET("/tasks/:id", s.taskStatus)
	api.POST("/tasks/:id/cancel", s.cancelTask)
}

func (s *Server) submitTask(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.TestConfigurations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "test_configurations is empty"})
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	s.subMu.Lock()
	s.submissions[req.TaskID] = &req
	s.subMu.Unlock()
	position := s.queue.AddTask(req.TaskID, req.UserInfo)
	s.metrics.TasksSubmitted.Inc()
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))

	s.logger.Info("task submitted",
		zap.String("task_id", req.TaskID),
		zap.String("target_url", req.TargetURL),
		zap.Int("position", position))
	c.JSON(http.StatusAccepted, gin.H{"task_id": req.TaskID, "position": position})
}

func (s *Server) taskStatus(c *gin.Context) {
	task := s.queue.GetTaskStatus(c.Param("id"))
	code := http.StatusOK
	if task.Status == queue.StatusNotFound {
		code = http.StatusNotFound
	}
	c.JSON(code, gin.H{
		"task_id":  task.ID,
		"status":   task.Status,
		"position": s.queue.Position(task.ID),
		"result":   task.Result,
		"error":    task.Error,
	})
}

func (s *Server) cancelTask(c *gin.Context) {
	id := c.Param("id")
	if s.canceler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "cancellation not available"})
		return
	}

	// A queued task is cancelled by failing it before it starts; a running
	// one by cancelling its tests.
	task := s.queue.GetTaskStatus(id)
	switch task.Status {
	case queue.StatusNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
	case queue.StatusQueued:
		s.queue.CompleteTask(id, nil, "cancelled before start")
		c.JSON(http.StatusOK, gin.H{"task_id": id, "status": queue.StatusFailed})
	case queue.StatusRunning:
		if req, found := s.Submission(id); found {
			for _, cfg := range req.TestConfigurations {
				s.canceler.CancelTest(cfg.TestID)
			}
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": "cancelling"})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("task already %s", task.Status)})
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until the context ends, then drains with a 10 s
// grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	s.logger.Info("api listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
