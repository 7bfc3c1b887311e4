// Package server is the HTTP ingress: the command endpoint the
// collaborator posts to, a per-operator websocket command stream,
// health, and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fileferry/internal/command"
	"fileferry/internal/config"
	"fileferry/internal/dispatch"
	"fileferry/internal/logging"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
	"fileferry/internal/transport"
)

// Server hosts the command API.
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	dispatcher *dispatch.Dispatcher
	sessions   *session.Store
	sender     transport.Sender
	log        *logging.Logger
	http       *http.Server

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateCfg   config.RateLimitConfig
}

// Options wires the server's collaborators.
type Options struct {
	Config     config.ServerConfig
	RateLimit  config.RateLimitConfig
	Dispatcher *dispatch.Dispatcher
	Sessions   *session.Store
	// Sender, when set, takes over file payload delivery; the HTTP
	// response then only carries the payload metadata.
	Sender   transport.Sender
	Gatherer prometheus.Gatherer
	Log      *logging.Logger
}

// New builds the router and all routes.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Accept", "Origin"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		cfg:        opts.Config,
		router:     router,
		dispatcher: opts.Dispatcher,
		sessions:   opts.Sessions,
		sender:     opts.Sender,
		log:        opts.Log,
		limiters:   make(map[string]*rate.Limiter),
		rateCfg:    opts.RateLimit,
	}

	router.GET("/health", s.handleHealth)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	v1.Use(s.rateLimit())
	v1.POST("/command", s.handleCommand)
	v1.GET("/ws", s.handleStream)

	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.log.Info("server listening", zap.String("addr", s.http.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

type commandRequest struct {
	Operator string   `json:"operator" binding:"required"`
	Command  string   `json:"command" binding:"required"`
	Args     []string `json:"args"`
}

type commandResponse struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	File   string `json:"file,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleCommand dispatches one command. Text and error replies come
// back as JSON; file replies stream the payload as an attachment.
func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, commandResponse{Status: "error", Error: "operator and command are required"})
		return
	}

	reply := s.dispatcher.Dispatch(c.Request.Context(), req.Operator, req.Command, req.Args)
	switch reply.Kind {
	case command.ReplyFile:
		if s.sender != nil {
			go s.push(req.Operator, reply)
			c.JSON(http.StatusAccepted, commandResponse{Status: "queued", File: reply.FileName, Size: reply.FileSize})
			return
		}
		c.FileAttachment(reply.FilePath, reply.FileName)
		if reply.Cleanup {
			s.removePayload(reply.FilePath)
		}
	case command.ReplyError:
		c.JSON(http.StatusOK, commandResponse{Status: "error", Error: errs.UserMessage(reply.Err)})
	default:
		c.JSON(http.StatusOK, commandResponse{Status: "ok", Text: reply.Text})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

// rateLimit applies a token bucket per client address.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateCfg.Enabled {
			c.Next()
			return
		}
		if !s.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, commandResponse{Status: "error", Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rateCfg.RequestsPerSecond), s.rateCfg.Burst)
		s.limiters[key] = l
	}
	return l
}

// push hands a file payload to the configured sender outside of the
// request lifecycle. The sender owns cleanup of temp payloads.
func (s *Server) push(operator string, reply *command.Reply) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.sender.SendFile(ctx, operator, reply); err != nil {
		s.log.Warn("payload push failed",
			zap.String("operator", operator),
			zap.String("file", reply.FileName),
			zap.Error(err))
	}
}

func (s *Server) removePayload(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("temp payload not removed", zap.String("path", path), zap.Error(err))
	}
}
