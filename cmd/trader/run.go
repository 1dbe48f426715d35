package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantlink/spreadgrid/pkg/api"
	"github.com/quantlink/spreadgrid/pkg/client"
	"github.com/quantlink/spreadgrid/pkg/config"
	"github.com/quantlink/spreadgrid/pkg/connector"
	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/logger"
	"github.com/quantlink/spreadgrid/pkg/metrics"
	"github.com/quantlink/spreadgrid/pkg/types"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "连接 NATS 实盘运行",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runLive(cfg)
		},
	}
}

func runLive(cfg *config.Config) error {
	symbols := cfg.Symbols()

	// Connector 的回调需要 Client，Client 的下单通道是 Connector
	var cli *client.Client
	conn, err := connector.New(cfg.NATS, cfg.NATS.ClientID, cfg.Strategy.Account,
		func(md types.MarketData) { cli.OnMDUpdate(md) },
		func(resp connector.Response) { cli.OnORSUpdate(resp) },
	)
	if err != nil {
		logger.Fatalf("[main] connector: %v", err)
	}
	cli = client.NewClient(conn, nil, symbols)

	eng, err := engine.New(cfg, engine.Options{Gateway: cli})
	if err != nil {
		logger.Fatalf("[main] engine: %v", err)
	}
	cli.SetTarget(eng)

	// ---- 观测 ----
	mtx := metrics.New()
	if err := mtx.Subscribe(eng.Bus()); err != nil {
		return err
	}
	srv := api.NewServer(eng, api.Options{
		Port:        cfg.System.APIPort,
		MetricsPath: cfg.System.MetricsPath,
		Metrics:     mtx.Handler(),
	})
	if err := eng.Bus().Subscribe(engine.TopicOrder, srv.History().OnOrder); err != nil {
		return err
	}
	if err := eng.Bus().Subscribe(engine.TopicSpreadTrade, func(t engine.SpreadTrade) {
		publishTrade(conn, cfg.Strategy.Name, t)
	}); err != nil {
		return err
	}
	srv.Start()
	defer srv.Stop()

	health := api.NewHealthServer(cfg.System.GRPCPort, eng)
	if err := health.Start(); err != nil {
		logger.Warnf("[main] grpc health disabled: %v", err)
	} else {
		defer health.Stop()
	}

	// ---- 引擎 ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	if err := conn.Start(symbols); err != nil {
		cancel()
		<-done
		return err
	}
	logger.Infof("[main] connector started, client=%d symbols=%v", conn.ClientID(), symbols)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGTSTP)

	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				logger.Infof("[main] SIGUSR1, enable trade")
				submit(eng, engine.Command{ID: engine.CmdEnableTrade, Int: 1})
			case syscall.SIGTSTP:
				logger.Infof("[main] SIGTSTP, force clear")
				submit(eng, engine.Command{ID: engine.CmdEnableTrade, Int: -2})
			default:
				logger.Infof("[main] received %v, shutting down", sig)
				return shutdown(cancel, done, conn)
			}

		case <-statusTicker.C:
			snap := eng.Snapshot()
			mtx.Sync(snap)
			publishStatus(conn, cfg.Strategy.Name, snap)

		case err := <-done:
			logger.Errorf("[main] engine exited: %v", err)
			conn.Stop()
			conn.Close()
			return err
		}
	}
}

func submit(eng *engine.Engine, cmd engine.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msg, err := eng.Submit(ctx, cmd)
	if err != nil {
		logger.Warnf("[main] command %d: %v", cmd.ID, err)
		return
	}
	logger.Infof("[main] command %d: %s", cmd.ID, msg)
}

// shutdown 先停行情回报，再让引擎撤单落盘，最后断开 NATS
func shutdown(cancel context.CancelFunc, done <-chan error, conn *connector.Connector) error {
	conn.Stop()
	cancel()
	err := <-done
	if cerr := conn.Close(); cerr != nil {
		logger.Warnf("[main] connector close: %v", cerr)
	}
	logger.Infof("[main] shutdown complete")
	return err
}

func publishStatus(conn *connector.Connector, name string, snap *engine.Snapshot) {
	if snap == nil {
		return
	}
	fields := map[string]interface{}{
		"type":         "status",
		"time":         snap.Time,
		"constrain":    snap.Constrain,
		"ready":        snap.Ready,
		"total_margin": snap.TotalMargin,
		"available":    snap.Available,
		"busy_workers": snap.BusyWorkers,
		"open_orders":  len(snap.Orders),
	}
	for _, sp := range snap.Spreads {
		fields["pos."+sp.Name] = sp.Pos
	}
	if err := conn.PublishStatus(name, fields); err != nil {
		logger.Debugf("[main] publish status: %v", err)
	}
}

func publishTrade(conn *connector.Connector, name string, t engine.SpreadTrade) {
	err := conn.PublishStatus(name, map[string]interface{}{
		"type":     "spread_trade",
		"spread":   t.Spread,
		"cycle_id": t.CycleID,
		"volume":   t.Volume,
		"price":    t.Price,
		"pos":      t.Pos,
		"balanced": t.Balanced,
	})
	if err != nil {
		logger.Debugf("[main] publish trade: %v", err)
	}
}
