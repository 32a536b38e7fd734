// Package api serves the scheduler over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	rtsup "cronkeep/internal/runtime/supervisor"
	"cronkeep/internal/storage"
	"cronkeep/internal/task/scheduler"
	"cronkeep/internal/tools"
	logx "cronkeep/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8787"

type Config struct {
	Addr         string
	Token        string
	Pprof        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the components the routes read from. Driver may be nil.
type Deps struct {
	Store     storage.Store
	Tools     *tools.Registry
	Scheduler *scheduler.Scheduler
	Driver    *scheduler.Driver
	Started   time.Time
}

type Server struct {
	cfg    Config
	deps   Deps
	log    logx.Logger
	engine *gin.Engine

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
	sup *rtsup.Supervisor
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "api"))}
	s.engine = s.buildEngine()
	return s
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) buildEngine() *gin.Engine {
	e := gin.New()
	e.Use(s.recoverMiddleware(), s.logMiddleware())

	e.GET("/healthz", s.handleHealth)

	v1 := e.Group("/v1", s.authMiddleware())
	{
		v1.POST("/tasks", s.handleCreate)
		v1.GET("/tasks", s.handleList)
		v1.GET("/tasks/:id", s.handleGet)
		v1.DELETE("/tasks/:id", s.handleDelete)
		v1.POST("/run-due", s.handleRunDue)
		v1.GET("/history", s.handleHistory)
		v1.GET("/tools", s.handleTools)
		v1.POST("/tools/:name", s.handleCallTool)
	}
	if s.cfg.Pprof {
		mountPprof(e.Group("/debug/pprof", s.authMiddleware()))
	}
	return e
}

// Start binds the listener, so address errors surface here, then serves in
// the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	if s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		return errors.New("api: non-loopback addr requires api.token")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.ln, s.srv, s.sup = ln, srv, sup

	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	s.log.Info("api listening", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	return nil
}

// Addr is the bound address, or "" when not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down gracefully until ctx is done, then closes it.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.ln, s.sup = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("api stopped with error", logx.Err(err))
		return
	}
	s.log.Info("api stopped")
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
