package main

import (
	"context"
	"time"

	"github.com/lendstack/underwriting/internal/config"
	"github.com/lendstack/underwriting/internal/observability"
	"github.com/lendstack/underwriting/internal/outbox"
	"github.com/lendstack/underwriting/internal/outbox/publisher"
	"github.com/lendstack/underwriting/internal/outbox/sink"
	"github.com/lendstack/underwriting/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		outbox.Module,

		fx.Provide(providePublisherConfig),
		fx.Provide(provideSink),
		fx.Provide(publisher.NewWorker),
		fx.Invoke(runWorker),
	)
	app.Run()
}

func providePublisherConfig(cfg config.PublisherConfig) publisher.Config {
	return publisher.Config{
		BatchSize:    cfg.BatchSize,
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		MaxAttempts:  cfg.MaxAttempts,
	}
}

func provideSink(lc fx.Lifecycle, cfg config.PublisherConfig, log *zap.Logger) (publisher.PublishFunc, error) {
	if cfg.Sink == "pubsub" {
		ps, err := sink.NewPubSubSink(context.Background(), cfg.PubSubProject, cfg.PubSubTopic)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return ps.Close()
			},
		})
		return ps.Publish, nil
	}
	return sink.NewLogPublisher(log), nil
}

func runWorker(lc fx.Lifecycle, w *publisher.Worker) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
