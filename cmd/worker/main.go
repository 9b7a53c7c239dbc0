// Command worker runs the collection engine: it wires the request
// broker, the fetcher facade, the job store, and the collection worker
// together against configuration, then drives the claim-process-report
// loop until signalled to stop, alongside the HTTP control surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/internal/broker"
	"github.com/thep200/ghcollector/internal/collector"
	"github.com/thep200/ghcollector/internal/controlapi"
	"github.com/thep200/ghcollector/internal/fetcher"
	"github.com/thep200/ghcollector/internal/jobstore"
	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/internal/repostore"
	"github.com/thep200/ghcollector/pkg/db"
	"github.com/thep200/ghcollector/pkg/kafka"
	"github.com/thep200/ghcollector/pkg/log"
	"github.com/thep200/ghcollector/pkg/metrics"
)

const serverShutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, _ := log.NewCslLogger()

	loader, _ := cfg.NewViperLoader()
	loader.SetLogger(logger)
	config, err := loader.Load()
	if err != nil {
		logger.Error(ctx, "failed to load config: %v", err)
		os.Exit(1)
	}

	logger.SetLevel(config.Log.Level)
	loader.RegisterConfigChangeCallback(func(updated *cfg.Config) {
		logger.SetLevel(updated.Log.Level)
	})

	pg, err := db.NewPostgres(config)
	if err != nil {
		logger.Error(ctx, "failed to construct postgres wrapper: %v", err)
		os.Exit(1)
	}
	if err := model.Migrate(pg); err != nil {
		logger.Error(ctx, "migration failed: %v", err)
		os.Exit(1)
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	b := broker.New(config, logger, reg)
	go b.Run(ctx)

	rawFetch := fetcher.New(config.Broker.FetchMode, brokerSubmitter{b}, "https://api.github.com", config.Broker.UserAgent)
	fetch := fetcher.NewInstrumented(rawFetch, reg, config.Broker.FetchMode)

	jobs := jobstore.New(pg, config.Worker.MaxFailures)
	repos := repostore.New(pg)

	w := collector.NewWorker(config, jobs, repos, fetch, logger, reg)
	if len(config.Kafka.Brokers) > 0 && config.Kafka.EventsTopic != "" {
		events := kafka.NewProducer(config, logger, config.Kafka.EventsTopic)
		w.SetEventPublisher(events)
		defer events.Close()
	}

	handler := controlapi.NewHandler(logger, jobs)
	server := controlapi.NewServer(logger, handler, config.ControlSurface.Addr)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error(ctx, "control surface stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	workerDone := make(chan error, 1)
	go func() { workerDone <- w.Run(ctx) }()

	select {
	case <-sigCh:
		logger.Info(ctx, "received shutdown signal, draining in-flight work")
	case err := <-workerDone:
		if err != nil {
			logger.Error(ctx, "worker exited with error: %v", err)
		}
	}

	cancel()
	b.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer shutdownCancel()
	_ = server.Stop(shutdownCtx)
}

// brokerSubmitter narrows *broker.Broker to fetcher.BrokerSubmitter.
type brokerSubmitter struct{ b *broker.Broker }

func (s brokerSubmitter) Submit(ctx context.Context, req *broker.Request) (<-chan broker.Result, error) {
	return s.b.Submit(ctx, req)
}
