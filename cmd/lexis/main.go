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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/poiesic/lexis"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/reembed"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lexis",
		Usage: "Turn documents into a searchable, entity-annotated knowledge base",
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
				Usage:   "Path to a TOML configuration file",
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the config file)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "enqueue",
				Usage:     "Add a document to the processing queue",
				ArgsUsage: "<file|->",
				Action:    enqueueCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Content type (pdf, text/plain, text/html); detected when empty",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Source type (upload, paste, web_search, knowledge_base)",
						Value: string(core.SourceUpload),
					},
				},
			},
			{
				Name:   "process",
				Usage:  "Process one batch of queued documents",
				Action: processCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of documents to process (defaults to worker.batch_size)",
					},
				},
			},
			{
				Name:   "retry",
				Usage:  "Reset failed documents so the next batch picks them up",
				Action: retryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of documents to reset",
						Value: 100,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show document and chunk counts",
				Action: statsCommand,
			},
			{
				Name:      "expand",
				Usage:     "Expand a query into search variants",
				ArgsUsage: "<query>",
				Action:    expandCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of variants to request (defaults to expansion.count)",
					},
				},
			},
			{
				Name:      "retrieve",
				Usage:     "Retrieve the chunks most relevant to a query",
				ArgsUsage: "<query>",
				Action:    retrieveCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of variants to request (defaults to expansion.count)",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of chunks to return (defaults to retrieval.top_k)",
					},
				},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve raw extracted entities from a JSON file and store them",
				ArgsUsage: "<file|->",
				Action:    resolveCommand,
			},
			{
				Name:   "worker",
				Usage:  "Process queued documents on a schedule until interrupted",
				Action: workerCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Worker name used for its checkpoint",
						Value: "ingest",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate the vectors of all indexed chunks with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to load in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document, its raw content and its chunks",
				ArgsUsage: "<document-id>",
				Action:    deleteCommand,
			},
		},
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (*lexis.Config, error) {
	cfg := lexis.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := lexis.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if path := c.String("path"); path != "" {
		cfg.Path = path
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	} else if cfg.LogLevel != "" {
		level, err := parseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		setDefaultLogger(level)
	}
	return cfg, nil
}

func openDatabase(c *cli.Context) (*lexis.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := lexis.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func enqueueCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}
	name := c.Args().First()
	raw, err := readInput(c, name)
	if err != nil {
		return err
	}

	title := c.String("title")
	if title == "" && name != "-" {
		title = name
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := db.Pipeline().Enqueue(c.Context, raw, c.String("type"), title, core.SourceType(c.String("source")))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", name, err)
	}
	return printJSON(c.App.Writer, doc)
}

func processCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := c.Int("limit")
	if limit == 0 {
		limit = db.Config().Worker.BatchSize
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := db.Pipeline().ProcessBatch(ctx, limit)
	if report != nil {
		if printErr := printJSON(c.App.Writer, report); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	return nil
}

func retryCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	reset, err := db.Pipeline().RetryFailed(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "reset %d documents\n", reset)
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Pipeline().Stats(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	return printJSON(c.App.Writer, stats)
}

func expandCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	count := c.Int("count")
	if count == 0 {
		count = db.Config().Expansion.Count
	}
	result, err := db.Expander().Expand(c.Context, query, count)
	if err != nil {
		return fmt.Errorf("expansion failed: %w", err)
	}
	return printJSON(c.App.Writer, result)
}

func retrieveCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	count, topK := c.Int("count"), c.Int("top-k")
	if count == 0 {
		count = db.Config().Expansion.Count
	}
	if topK == 0 {
		topK = db.Config().Retrieval.TopK
	}
	result, err := db.Aggregator().RetrieveQuery(c.Context, query, count, topK)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	return printJSON(c.App.Writer, result)
}

func resolveCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}
	raw, err := readInput(c, c.Args().First())
	if err != nil {
		return err
	}
	var extracted []core.ExtractedEntity
	if err := sonic.Unmarshal(raw, &extracted); err != nil {
		return fmt.Errorf("failed to parse entities: %w", err)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	entities, err := db.ResolveEntities(c.Context, extracted)
	if err != nil {
		return fmt.Errorf("failed to resolve entities: %w", err)
	}
	return printJSON(c.App.Writer, entities)
}

func workerCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	worker, err := db.NewWorker(c.String("name"))
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	worker.Stop()
	return nil
}

func reembedCommand(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", db.Config().Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", db.Config().AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", db.Config().AI.EmbeddingModel)

	report, err := db.Reembed(ctx, config, c.App.ErrWriter)
	if report != nil {
		if printErr := printJSON(c.App.Writer, report); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one document id")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", c.Args().First(), err)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Pipeline().Delete(c.Context, core.ID(id)); err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "deleted document %d\n", id)
	return nil
}

func readInput(c *cli.Context, name string) ([]byte, error) {
	if name == "-" {
		reader := c.App.Reader
		if reader == nil {
			reader = os.Stdin
		}
		return io.ReadAll(reader)
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return raw, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	setDefaultLogger(level)
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	levelStr := strings.ToLower(s)
	switch levelStr {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}
}

func setDefaultLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
