// Command intakeconsumer is the alternate job-intake channel: it
// consumes RepoDiscovered messages off a configured Kafka topic and
// turns each into the same jobstore.Enqueue call the HTTP control
// surface performs, letting an upstream discovery process hand off
// candidate repositories asynchronously.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/internal/jobstore"
	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/pkg/db"
	"github.com/thep200/ghcollector/pkg/kafka"
	"github.com/thep200/ghcollector/pkg/log"
)

// RepoDiscovered is the intake payload published by an upstream
// discovery process (e.g. a search crawl feeding candidate
// repositories); its fields mirror jobstore.Enqueue's arguments
// one-to-one.
type RepoDiscovered struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, _ := log.NewCslLogger()

	loader, _ := cfg.NewViperLoader()
	loader.SetLogger(logger)
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(config.Log.Level)

	pg, err := db.NewPostgres(config)
	if err != nil {
		logger.Error(ctx, "failed to construct postgres wrapper: %v", err)
		os.Exit(1)
	}
	jobs := jobstore.New(pg, config.Worker.MaxFailures)

	consumer := kafka.NewConsumer(config, logger, config.Kafka.IntakeTopic, config.Kafka.ConsumerGroup)
	consumer.RegisterHandler("repo_discovered", func(data []byte) error {
		var msg RepoDiscovered
		if err := json.Unmarshal(data, &msg); err != nil {
			return &kafka.ErrUnmarshal{Topic: config.Kafka.IntakeTopic, Key: "repo_discovered", Cause: err}
		}
		if err := model.ValidateFullNameParts(msg.Owner, msg.Name); err != nil {
			return err
		}
		if _, err := jobs.Enqueue(ctx, msg.Owner, msg.Name, msg.Priority); err != nil {
			return fmt.Errorf("failed to enqueue %s/%s: %w", msg.Owner, msg.Name, err)
		}
		logger.Info(ctx, "enqueued %s/%s from intake topic", msg.Owner, msg.Name)
		return nil
	})

	// Following the control surface's own topic/broker list if the
	// config file changes underneath a long-running consumer, rather
	// than requiring a restart to pick up an environment promotion.
	loader.RegisterConfigChangeCallback(func(updated *cfg.Config) {
		logger.SetLevel(updated.Log.Level)
		if err := consumer.Reload(updated, updated.Kafka.IntakeTopic, updated.Kafka.ConsumerGroup); err != nil {
			logger.Error(ctx, "failed to reload intake consumer after config change: %v", err)
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "intake consumer stopped: %v", err)
		}
	}()

	<-sigCh
	logger.Info(ctx, "received shutdown signal, closing intake consumer")
	cancel()
	_ = consumer.Close()
}
