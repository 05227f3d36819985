package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/sift/internal/cachemanager"
	"github.com/zjrosen/sift/internal/client"
	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/infrastructure/sqlite"
	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/pubsub"
	"github.com/zjrosen/sift/internal/research"
	"github.com/zjrosen/sift/internal/tracing"
)

// services are the long-lived pieces one command invocation needs.
type services struct {
	client  *client.Client
	runner  *research.Runner
	broker  *pubsub.Broker[research.Update]
	db      *sqlite.DB
	tracing *tracing.Provider
}

func newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:        cfg.Server.BaseURL,
		Timeout:        cfg.Server.Timeout,
		UserAgent:      cfg.Server.UserAgent,
		ConnectRetries: cfg.Server.ConnectRetries,
		MaxFrameBytes:  cfg.Stream.MaxFrameBytes,
	})
}

// openHistory opens the run database. It returns nil when history is off.
func openHistory() (*sqlite.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	if cfg.History.Path == "" {
		return nil, errors.New("history.path is not set and no home directory was found")
	}
	db, err := sqlite.NewDB(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return db, nil
}

func newServices() (*services, error) {
	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  tracing.DefaultServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	s := &services{
		client:  newClient(),
		broker:  pubsub.NewBroker[research.Update](),
		tracing: provider,
	}

	s.db, err = openHistory()
	if err != nil {
		// A broken history database should not stop the question.
		log.ErrorErr(log.CatStore, "History disabled", err)
		s.db = nil
	}

	var runs history.RunRepository
	if s.db != nil {
		runs = s.db.RunRepository()
	}

	var answers cachemanager.CacheManager[research.AnswerKey, json.RawMessage]
	if cfg.Cache.Enabled {
		answers = cachemanager.NewInMemoryCacheManager[research.AnswerKey, json.RawMessage](
			"answers", cfg.Cache.TTL, cachemanager.DefaultCleanupInterval)
		// The process is short-lived; recent answers come from history.
		if _, err := research.WarmCache(context.Background(), runs, answers, cfg.Cache.TTL); err != nil {
			log.ErrorErr(log.CatCache, "Failed to warm answer cache", err)
		}
	}

	s.runner = research.NewRunner(research.Config{
		Client:   s.client,
		Runs:     runs,
		Cache:    answers,
		CacheTTL: cfg.Cache.TTL,
		Broker:   s.broker,
		Tracer:   provider.Tracer(),
	})
	return s, nil
}

func (s *services) Close() {
	s.broker.Close()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.ErrorErr(log.CatStore, "Failed to close history", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tracing.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to flush traces", err)
	}
}
