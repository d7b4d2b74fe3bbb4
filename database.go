// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/ai/openai"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/pipeline"
	"github.com/poiesic/docingest/report"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
	"github.com/poiesic/docingest/storage/badger"
	"github.com/poiesic/docingest/storage/sqlite"
)

// StoreKind selects the job store backend.
type StoreKind string

const (
	// StoreBadger keeps jobs in a BadgerDB directory. This is the default.
	StoreBadger StoreKind = "badger"
	// StoreSQLite keeps jobs in a single SQLite file with the jobs table.
	StoreSQLite StoreKind = "sqlite"
)

type Database struct {
	store    storage.JobStore
	provider ai.AIProvider
	kind     StoreKind
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	store       StoreKind
	storePolicy *retry.Policy
	logger      *slog.Logger
}

// WithAIConfig sets the embedding backend configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses provider instead of building one from the AI configuration.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithStore selects the job store backend.
func WithStore(kind StoreKind) DatabaseOption {
	return func(o *databaseOptions) {
		o.store = kind
	}
}

// WithStoreRetryPolicy sets how the job store retries under write contention.
func WithStoreRetryPolicy(policy retry.Policy) DatabaseOption {
	return func(o *databaseOptions) {
		o.storePolicy = &policy
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open opens the job store at path and the embedding provider.
// For StoreBadger path is a directory; for StoreSQLite it is a file.
func Open(path string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		store:    StoreBadger,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	store, err := openStore(path, options)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &Database{
		store:    store,
		provider: provider,
		kind:     options.store,
		logger:   options.logger,
	}, nil
}

func openStore(path string, options *databaseOptions) (storage.JobStore, error) {
	policy := retry.StorePolicy()
	if options.storePolicy != nil {
		policy = *options.storePolicy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	switch options.store {
	case StoreBadger:
		return badger.NewJobStore(path, badger.WithRetryPolicy(policy), badger.WithLogger(options.logger))
	case StoreSQLite:
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		return sqlite.NewJobStore(path, sqlite.WithRetryPolicy(policy), sqlite.WithLogger(options.logger))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, options.store)
	}
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing job store", "err", err)
		return err
	}
	return nil
}

// Store returns the job store.
func (db *Database) Store() storage.JobStore {
	return db.store
}

// Kind returns the job store backend in use.
func (db *Database) Kind() StoreKind {
	return db.kind
}

// Hydrate loads the priority list into an empty store.
// It returns storage.ErrAlreadyHydrated when the store already holds jobs.
func (db *Database) Hydrate(ctx context.Context, sources []core.Source) (int, error) {
	return db.store.Hydrate(ctx, sources)
}

// ResetOrphans returns every PROCESSING job to PENDING.
func (db *Database) ResetOrphans(ctx context.Context) (int, error) {
	return db.store.ResetOrphans(ctx)
}

func (db *Database) NewPipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	return pipeline.NewPipeline(db.store, db.provider, append([]pipeline.Option{pipeline.WithLogger(db.logger)}, opts...)...)
}

// Status reports job counts and the batch files in outputDir.
func (db *Database) Status(ctx context.Context, outputDir string) (report.Status, error) {
	return report.Collect(ctx, db.store, outputDir)
}
