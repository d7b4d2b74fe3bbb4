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


package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/docingest"
	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/metrics"
	"github.com/poiesic/docingest/pipeline"
	"github.com/poiesic/docingest/report"
	"github.com/poiesic/docingest/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := pipeline.DefaultConfig()

	return &cli.App{
		Name:  "docingest",
		Usage: "Download, extract and embed a backlog of PDF documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the job store (directory for badger, file for sqlite)",
				Value:   "pipeline_state",
				EnvVars: []string{"DOCINGEST_DB"},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Job store backend (badger, sqlite)",
				Value:   string(docingest.StoreBadger),
				EnvVars: []string{"DOCINGEST_STORE"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address (e.g. :9090)",
				EnvVars: []string{"DOCINGEST_METRICS_ADDR"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "hydrate",
				Usage:  "Load the priority list into an empty job store",
				Action: hydrateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "csv",
						Usage:    "CSV file with url and code columns (PDF_URL and Stock_Code are accepted)",
						Required: true,
					},
				},
			},
			{
				Name:   "run",
				Usage:  "Process every pending job",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "embedding-host",
						Usage:   "Embedding service host URL; repeat to spread batches across endpoints",
						Value:   cli.NewStringSlice(ai.DefaultConfig().EmbeddingHosts...),
						EnvVars: []string{"DOCINGEST_EMBEDDING_HOSTS"},
					},
					&cli.StringFlag{
						Name:    "embedding-model",
						Usage:   "Embedding model name",
						Value:   ai.DefaultConfig().EmbeddingModel,
						EnvVars: []string{"DOCINGEST_EMBEDDING_MODEL"},
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "API key for the embedding service",
						Value:   ai.DefaultConfig().APIKey,
						EnvVars: []string{"DOCINGEST_API_KEY"},
					},
					&cli.StringFlag{
						Name:  "instruction",
						Usage: "Prefix applied to every embedded text, for instruct-style models",
					},
					&cli.DurationFlag{
						Name:  "embedding-timeout",
						Usage: "Timeout of one embedding request",
						Value: ai.DefaultConfig().Timeout,
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory receiving batch files",
						Value: defaults.OutputDir,
					},
					&cli.IntFlag{
						Name:  "downloaders",
						Usage: "Number of concurrent downloads",
						Value: defaults.Downloaders,
					},
					&cli.IntFlag{
						Name:  "extractors",
						Usage: "Number of text extraction workers",
						Value: defaults.ExtractorPoolSize,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents embedded per request",
						Value: defaults.BatchSize,
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Maximum jobs claimed at once",
						Value: defaults.PageSize,
					},
					&cli.IntFlag{
						Name:  "queue-size",
						Usage: "Capacity of the download queue",
						Value: defaults.WorkQueueSize,
					},
					&cli.IntFlag{
						Name:  "result-queue-size",
						Usage: "Capacity of the extracted document queue",
						Value: defaults.ResultQueueSize,
					},
					&cli.DurationFlag{
						Name:  "download-timeout",
						Usage: "Timeout of one download attempt",
						Value: defaults.DownloadTimeout,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Download attempts per job",
						Value: defaults.DownloadPolicy.MaxAttempts,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Wait after a failed download",
						Value: defaults.DownloadPolicy.BaseDelay,
					},
					&cli.DurationFlag{
						Name:  "cool-down",
						Usage: "Wait after a 403 or 429 response",
						Value: defaults.DownloadPolicy.CoolDown,
					},
					&cli.Float64Flag{
						Name:  "rate-limit",
						Usage: "Maximum download attempts per second across workers (0 = unlimited)",
					},
					&cli.IntFlag{
						Name:  "min-text",
						Usage: "Documents with fewer characters are skipped as empty",
						Value: extract.MinTextLen,
					},
					&cli.IntFlag{
						Name:  "max-text",
						Usage: "Extracted text is truncated to this many characters",
						Value: extract.MaxTextLen,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N jobs",
						Value: defaults.ReportInterval,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show job counts and batch files",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory holding batch files",
						Value: defaults.OutputDir,
					},
					&cli.StringFlag{
						Name:  "xlsx",
						Usage: "Also write the report to this spreadsheet",
					},
				},
			},
			{
				Name:   "reset-orphans",
				Usage:  "Return jobs left PROCESSING by a crashed run to PENDING",
				Action: resetOrphansCommand,
			},
		},
	}
}

func openDatabase(c *cli.Context, opts ...docingest.DatabaseOption) (*docingest.Database, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	opts = append([]docingest.DatabaseOption{docingest.WithStore(docingest.StoreKind(c.String("store")))}, opts...)
	db, err := docingest.Open(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func hydrateCommand(c *cli.Context) error {
	ctx := context.Background()

	f, err := os.Open(c.String("csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	sources, err := readSources(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.String("csv"), err)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Hydrate(ctx, sources)
	if errors.Is(err, storage.ErrAlreadyHydrated) {
		slog.Info("job store already hydrated, skipping", "db", c.String("db"))
		return nil
	}
	if err != nil {
		return fmt.Errorf("hydration failed: %w", err)
	}
	slog.Info("job store hydrated", "jobs", n)
	return nil
}

// readSources parses the priority list. Header names are matched without
// regard to case; rows without a URL are skipped.
func readSources(r io.Reader) ([]core.Source, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	urlCol, codeCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "url", "pdf_url":
			urlCol = i
		case "code", "stock_code":
			codeCol = i
		}
	}
	if urlCol < 0 {
		return nil, errors.New("no url column (expected url or PDF_URL)")
	}

	var sources []core.Source
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if urlCol >= len(record) || strings.TrimSpace(record[urlCol]) == "" {
			continue
		}
		src := core.Source{URL: strings.TrimSpace(record[urlCol])}
		if codeCol >= 0 && codeCol < len(record) {
			src.Code = strings.TrimSpace(record[codeCol])
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchSize := c.Int("batch-size")
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHosts(c.StringSlice("embedding-host")...),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithInstruction(c.String("instruction")),
		ai.WithTimeout(c.Duration("embedding-timeout")),
		ai.WithBatchSize(batchSize),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	cfg := pipeline.DefaultConfig()
	cfg.OutputDir = c.String("output-dir")
	cfg.Downloaders = c.Int("downloaders")
	cfg.ExtractorPoolSize = c.Int("extractors")
	cfg.BatchSize = batchSize
	cfg.PageSize = c.Int("page-size")
	cfg.WorkQueueSize = c.Int("queue-size")
	cfg.ResultQueueSize = c.Int("result-queue-size")
	cfg.DownloadTimeout = c.Duration("download-timeout")
	cfg.DownloadPolicy.MaxAttempts = c.Int("max-retries")
	cfg.DownloadPolicy.BaseDelay = c.Duration("retry-delay")
	cfg.DownloadPolicy.CoolDown = c.Duration("cool-down")
	cfg.RateLimit = c.Float64("rate-limit")
	cfg.Limits.MinTextLen = c.Int("min-text")
	cfg.Limits.MaxTextLen = c.Int("max-text")
	cfg.ReportInterval = c.Int("report-interval")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		srv, err := metrics.NewServer(addr)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		go func() {
			if err := srv.Run(ctx); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	db, err := openDatabase(c, docingest.WithAIConfig(aiConfig))
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.NewPipeline(pipeline.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Release()

	fmt.Fprintf(os.Stderr, "Database: %s (%s)\n", c.String("db"), c.String("store"))
	fmt.Fprintf(os.Stderr, "Embedding hosts: %s\n", strings.Join(aiConfig.EmbeddingHosts, ", "))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", aiConfig.EmbeddingModel)
	fmt.Fprintf(os.Stderr, "Output: %s\n", cfg.OutputDir)
	fmt.Fprintln(os.Stderr)

	start := time.Now()
	summary, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Completed %d, failed %d, skipped %d, requeued %d in %s\n",
		summary.Resolved[core.StatusCompleted],
		summary.Resolved[core.StatusFailed],
		summary.Resolved[core.StatusSkippedEmpty],
		summary.Resolved[core.StatusPending],
		time.Since(start).Round(time.Second))
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.Status(ctx, c.String("output-dir"))
	if err != nil {
		return err
	}
	if err := report.WriteText(c.App.Writer, status); err != nil {
		return err
	}

	if path := c.String("xlsx"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.WriteXLSX(f, status); err != nil {
			return err
		}
		slog.Info("status workbook written", "path", path)
	}
	return nil
}

func resetOrphansCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.ResetOrphans(context.Background())
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	slog.Info("orphaned jobs returned to pending", "count", n)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
