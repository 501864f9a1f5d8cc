// Command orchestrator runs the distributed multi-agent simulation: it
// wires a Coordinator, spins up one Worker goroutine per partition,
// serves the dual-channel TCP transport, and exposes Prometheus
// metrics and a health endpoint.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldforge/orchestrator/internal/bus"
	"github.com/fieldforge/orchestrator/internal/coordinator"
	"github.com/fieldforge/orchestrator/internal/metrics"
	"github.com/fieldforge/orchestrator/internal/rf"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/transport"
	"github.com/fieldforge/orchestrator/internal/world"
	"github.com/fieldforge/orchestrator/internal/worker"
	"github.com/fieldforge/orchestrator/internal/xlifecycle"
	"github.com/fieldforge/orchestrator/internal/xlog"
)

func main() {
	logger := xlog.Default("orchestrator")

	sc := scenario.Default()
	sc.Channels = []scenario.ChannelSpec{
		{ID: 1, CenterFreqHz: 2.412e9, BandwidthHz: 20e6},
		{ID: 2, CenterFreqHz: 2.437e9, BandwidthHz: 20e6},
		{ID: 3, CenterFreqHz: 2.462e9, BandwidthHz: 20e6},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coord := coordinator.New(sc, logger.With("coordinator"))
	engine := rf.NewEngine(sc.PathLossModel, sc.Channels)

	coord.SetSpawnFunc(func(workerID uint32, wc *bus.WorkerChannels, wctx context.Context) {
		w := worker.New(workerID, coord.World(), coord.Partitioner(), engine, coord.Bus(), wc, logger.With(fmt.Sprintf("worker-%d", workerID)))
		go w.Run(wctx)
	})

	addr := fmt.Sprintf(":%d", sc.TransportPort)
	srv := transport.NewServer(addr, sc.RenderFrameConversion, resyncFn(coord), nil)
	coord.AttachTransport(srv)

	shutdown := xlifecycle.New(10*time.Second, logger.With("shutdown"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthzHandler())
	httpSrv := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", xlog.Err(err))
		}
	}()
	shutdown.Register(func() error {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Error("transport server failed", xlog.Err(err))
		}
	}()
	shutdown.Register(func() error {
		return coord.Shutdown()
	})

	coord.Start(ctx)
	for _, spawn := range sc.Agents {
		quat := world.Quaternion{X: spawn.Quaternion[0], Y: spawn.Quaternion[1], Z: spawn.Quaternion[2], W: spawn.Quaternion[3]}
		if quat.Norm() < 1e-9 {
			quat = world.IdentityQuaternion()
		}
		pose := world.Pose{Position: spawn.Position, Orientation: quat}
		if _, err := coord.SpawnAgent(spawn.Kind, pose); err != nil {
			logger.Error("scenario agent spawn failed", xlog.Err(err))
		}
	}

	tickInterval := time.Second / time.Duration(sc.TickHz)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	logger.Info("orchestrator running", xlog.String("addr", addr), xlog.Int("workers", int(sc.NumWorkers)))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			if err := shutdown.Shutdown(context.Background()); err != nil {
				logger.Error("shutdown error", xlog.Err(err))
			}
			return
		case <-ticker.C:
			coord.DrainCommands()
			if _, err := coord.Step(ctx, tickInterval.Seconds()); err != nil {
				logger.Error("step failed", xlog.Err(err))
			}
		}
	}
}

// resyncFn returns the SpawnBatch-first resync sequence a newly
// connected (or reconnected) subscriber receives before the live
// stream resumes.
func resyncFn(coord *coordinator.Coordinator) func() []transport.Frame {
	return func() []transport.Frame {
		front := coord.World().GetFront()
		records := make([]transport.SpawnRecord, 0, len(front.Agents))
		for _, a := range front.Agents {
			if !a.Live {
				continue
			}
			records = append(records, transport.BuildSpawnRecord(int32(a.ID), a.Kind, a.Pose, coord.FrameSpec()))
		}
		tick := front.Tick
		return []transport.Frame{{Tick: tick, Encode: func(w io.Writer) error {
			return transport.EncodeSpawnBatch(w, records)
		}}}
	}
}
