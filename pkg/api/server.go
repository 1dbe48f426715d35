package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/logger"
)

// Engine API 需要的引擎能力
type Engine interface {
	Snapshot() *engine.Snapshot
	Submit(ctx context.Context, cmd engine.Command) (string, error)
}

// Options Server 选项
type Options struct {
	Port           int
	PushInterval   time.Duration // websocket 推送间隔，默认 1s
	CommandTimeout time.Duration // 命令等待引擎处理的超时，默认 3s
	MetricsPath    string
	Metrics        http.Handler // 为 nil 时不挂载
	HistorySize    int
}

// Server HTTP + WebSocket 服务
type Server struct {
	opts       Options
	eng        Engine
	hub        *WebSocketHub
	dashboard  atomic.Pointer[Dashboard]
	history    *OrderHistoryTracker
	httpServer *http.Server
	stopCh     chan struct{}
}

// NewServer 创建 API Server
func NewServer(eng Engine, opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 3 * time.Second
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 50
	}
	s := &Server{
		opts:    opts,
		eng:     eng,
		hub:     NewWebSocketHub(),
		history: NewOrderHistoryTracker(opts.HistorySize),
		stopCh:  make(chan struct{}),
	}
	s.hub.SetCommandHandler(func(cmd engine.Command) jsonResponse {
		_, resp := s.runCommand(context.Background(), cmd)
		return resp
	})
	return s
}

// History 订单历史，订阅 engine.TopicOrder 用
func (s *Server) History() *OrderHistoryTracker { return s.history }

// Handler 路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/spreads", s.handleSpreads)
	mux.HandleFunc("GET /api/v1/legs", s.handleLegs)
	mux.HandleFunc("GET /api/v1/orders", s.handleOrders)
	mux.HandleFunc("POST /api/v1/command", s.handleCommand)

	mux.Handle("/ws", websocket.Handler(s.hub.HandleWebSocket))

	if s.opts.Metrics != nil && s.opts.MetricsPath != "" {
		mux.Handle(s.opts.MetricsPath, s.opts.Metrics)
	}
	return mux
}

// Start 启动 HTTP server、WebSocket hub 和推送循环
func (s *Server) Start() {
	s.hub.Start()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("[API] Server starting on :%d", s.opts.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[API] Server error: %v", err)
		}
	}()
	go s.pushLoop()
}

// Stop 优雅关闭
func (s *Server) Stop() {
	close(s.stopCh)
	s.hub.Stop()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Warnf("[API] shutdown: %v", err)
		}
		logger.Infof("[API] Server stopped")
	}
}

func (s *Server) pushLoop() {
	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Refresh 采集一次快照并广播
func (s *Server) Refresh() *Dashboard {
	d := collectDashboard(s.eng.Snapshot(), s.history)
	s.dashboard.Store(d)
	s.hub.Broadcast(d)
	return d
}
