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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/corpus"
	"github.com/poiesic/corpus/config"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/gateway"
	"github.com/poiesic/corpus/ingest"
	"github.com/poiesic/corpus/scheduler"
)

func main() {
	// Load .env if present; real environment wins over file values.
	godotenv.Load()

	app := &cli.App{
		Name:  "corpusd",
		Usage: "Document staging, embedding and hybrid search service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion scheduler and search HTTP server",
				Action: serveCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Stage a document from a file or stdin",
				Action:    ingestCommand,
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection to stage the document into",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "audience",
						Usage: "Audience tags (human, agent); default is both",
					},
					&cli.StringSliceFlag{
						Name:  "capability",
						Usage: "Capability tags carried through to search results",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Drain the staging store before exiting",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run one hybrid search and print results as JSON",
				Action:    searchCommand,
				ArgsUsage: "query",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "collection",
						Usage: "Restrict the search to these collections",
					},
					&cli.StringFlag{
						Name:  "audience",
						Usage: "Requesting audience (human or agent)",
						Value: "human",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Print per-collection document counts by embedding status",
				Action: statusCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed all completed documents, e.g. after a model change",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Restrict the reindex to one collection",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to embed per batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newService(c *cli.Context) (*corpus.Service, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return corpus.New(cfg)
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	svc, err := corpus.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/search", svc.Gateway.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		counts, err := svc.StatusCounts(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"collections": counts,
			"scheduler":   svc.Scheduler.Stats(),
		})
	})

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.Server.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ingestCommand(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	var content []byte
	if c.Args().Len() > 0 {
		content, err = os.ReadFile(c.Args().First())
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
	} else {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	var audience []core.Audience
	for _, tag := range c.StringSlice("audience") {
		audience = append(audience, core.Audience(tag))
	}

	res, err := svc.Ingestor.Ingest(c.Context, ingest.Document{
		Collection:   c.String("collection"),
		Content:      string(content),
		Audience:     audience,
		Capabilities: c.StringSlice("capability"),
	})
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if res.Deduplicated {
		fmt.Fprintf(os.Stderr, "Already staged as document %d\n", res.DocumentID)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Staged document %d (%d chunks)\n", res.DocumentID, len(res.IDs))

	if c.Bool("wait") {
		for {
			n, err := svc.Scheduler.RunOnce(c.Context)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}
		fmt.Fprintln(os.Stderr, "Staging store drained")
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("query argument is required")
	}

	svc, err := newService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.Gateway.Search(c.Context, gateway.Request{
		Query:       strings.Join(c.Args().Slice(), " "),
		Collections: c.StringSlice("collection"),
		Audience:    core.Audience(c.String("audience")),
		Limit:       c.Int("limit"),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func statusCommand(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	counts, err := svc.StatusCounts(c.Context)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(counts)
}

func reindexCommand(c *cli.Context) error {
	svc, err := newService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	reindexCfg := &scheduler.ReindexConfig{
		Collection:     c.String("collection"),
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reindexCfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexCfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reindexer := svc.NewReindexer(reindexCfg, os.Stderr)
	if err := reindexer.Run(c.Context); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
