package api

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/quantlink/spreadgrid/pkg/logger"
)

// HealthService gRPC 健康检查服务名
const HealthService = "spreadgrid.Engine"

// HealthServer 对外暴露 grpc.health.v1，引擎 Ready 时置为 SERVING
type HealthServer struct {
	port   int
	eng    Engine
	srv    *grpc.Server
	health *health.Server
	stopCh chan struct{}
}

// NewHealthServer 创建 gRPC 健康检查服务
func NewHealthServer(port int, eng Engine) *HealthServer {
	h := &HealthServer{
		port:   port,
		eng:    eng,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		stopCh: make(chan struct{}),
	}
	healthpb.RegisterHealthServer(h.srv, h.health)
	reflection.Register(h.srv)
	h.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Sync 按引擎快照刷新服务状态
func (h *HealthServer) Sync() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if snap := h.eng.Snapshot(); snap != nil && snap.Ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(HealthService, st)
	h.health.SetServingStatus("", st)
	return st
}

// Start 监听端口并启动状态同步
func (h *HealthServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", h.port))
	if err != nil {
		return errors.Wrapf(err, "grpc listen :%d", h.port)
	}
	go func() {
		logger.Infof("[gRPC] health server listening on :%d", h.port)
		if err := h.srv.Serve(lis); err != nil {
			logger.Errorf("[gRPC] serve: %v", err)
		}
	}()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.Sync()
			}
		}
	}()
	return nil
}

// Stop 关闭服务
func (h *HealthServer) Stop() {
	close(h.stopCh)
	h.health.Shutdown()
	h.srv.GracefulStop()
}
