package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/pkg/adapters/file"
	httpAdapter "github.com/aretw0/mobility/pkg/adapters/http"
	"github.com/aretw0/mobility/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/mobility/pkg/adapters/redis"
	"github.com/aretw0/mobility/pkg/adapters/simulate"
	"github.com/aretw0/mobility/pkg/adapters/sqlite"
	"github.com/aretw0/mobility/pkg/config"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/observability"
	"github.com/aretw0/mobility/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
)

// node is one configured agent with its adapters.
type node struct {
	agent   *mobility.Agent
	streams *httpAdapter.StreamManager
	metrics http.Handler
	closers []func() error
}

func (n *node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = append(errs, n.closers[i]())
	}
	return errors.Join(errs...)
}

func redisClient(r config.Redis) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})
}

// buildNode wires the agent described by cfg.
func buildNode(cfg config.Config, logger *slog.Logger) (*node, error) {
	n := &node{}
	id := domain.AgentID(cfg.Agent)

	var repo ports.FactRepository
	var storeClient *backend.Client
	switch cfg.Store.Backend {
	case "file":
		repo = file.New(cfg.Store.Path)
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		n.closers = append(n.closers, db.Close)
		repo = db
	case "redis":
		storeClient = redisClient(cfg.Store.Redis)
		n.closers = append(n.closers, storeClient.Close)
		repo = redisAdapter.NewFromClient(storeClient, redisAdapter.WithPrefix(cfg.Store.Redis.Prefix))
	}

	boardOpts := []memory.Option{memory.WithLogger(logger)}
	if repo != nil {
		boardOpts = append(boardOpts, memory.WithRepository(repo))
	}
	board := memory.NewBlackboard(boardOpts...)

	opts := []mobility.Option{
		mobility.WithBoard(board),
		mobility.WithLogger(logger),
		mobility.WithTickInterval(cfg.Executor.Tick),
	}

	var lockClient *backend.Client
	switch cfg.Transport.Backend {
	case "redis":
		client := redisClient(cfg.Transport.Redis)
		n.closers = append(n.closers, client.Close)
		opts = append(opts, mobility.WithMessenger(redisAdapter.NewMessenger(client, cfg.Transport.Redis.Prefix,
			redisAdapter.WithMessengerLogger(logger),
			redisAdapter.WithBlockTimeout(time.Second),
		)))
		lockClient = client
	default:
		opts = append(opts, mobility.WithMessenger(memory.NewBus()))
	}

	if cfg.Locker {
		prefix := cfg.Transport.Redis.Prefix
		if lockClient == nil {
			lockClient, prefix = storeClient, cfg.Store.Redis.Prefix
		}
		opts = append(opts, mobility.WithLocker(redisAdapter.NewLocker(lockClient, prefix)))
	}

	failures := make([]domain.AgentID, 0, len(cfg.Executor.Failures))
	for _, f := range cfg.Executor.Failures {
		failures = append(failures, domain.AgentID(f))
	}
	opts = append(opts, mobility.WithObserver(simulate.NewExecutor(id, board,
		simulate.WithMoveDuration(cfg.Executor.MoveDuration),
		simulate.WithFailures(failures...),
		simulate.WithLogger(logger),
	)))

	n.streams = httpAdapter.NewStreamManager(logger)
	opts = append(opts, mobility.WithObserver(n.streams))

	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		metrics := observability.NewMetrics(id, reg)
		opts = append(opts, mobility.WithLifecycleHooks(metrics.Hooks()))
		n.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	n.agent = mobility.New(id, opts...)
	return n, nil
}

// handler returns the admin HTTP handler of the node.
func (n *node) handler(logger *slog.Logger) http.Handler {
	opts := []httpAdapter.Option{
		httpAdapter.WithStreams(n.streams),
		httpAdapter.WithLogger(logger),
	}
	if n.metrics != nil {
		opts = append(opts, httpAdapter.WithMetrics(n.metrics))
	}
	return httpAdapter.NewHandler(n.agent, opts...)
}
