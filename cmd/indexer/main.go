package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "indexer",
		Usage: "Build and inspect the web document index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "configs/development.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the configured logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Index a corpus and merge it into the final index",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Corpus source (dir or postgres)",
					},
					&cli.StringFlag{
						Name:  "corpus",
						Usage: "Corpus directory for the dir source",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output directory for the final index",
					},
					&cli.Int64Flag{
						Name:  "shard-max-size",
						Usage: "Offload threshold of the in-memory index in bytes",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of document processing workers",
					},
					&cli.BoolFlag{
						Name:  "keep-shards",
						Usage: "Leave shard files in place after the merge",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Run a query against a built index",
				ArgsUsage: "<query>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "index",
						Usage: "Index directory",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of URLs to print",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print the manifest of a built index",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "index",
						Usage: "Index directory",
					},
					&cli.BoolFlag{
						Name:  "terms",
						Usage: "Also list every term with its byte offset",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("indexer failed", "error", err, "code", apperrors.Code(err))
		os.Exit(apperrors.ExitCode(err))
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
		if _, err := logger.ParseLevel(level); err != nil {
			return nil, err
		}
	}
	logger.Setup(level, cfg.Logging.Format)
	return cfg, nil
}

func buildCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("source") {
		cfg.Indexer.CorpusSource = c.String("source")
	}
	if c.IsSet("corpus") {
		cfg.Indexer.CorpusDir = c.String("corpus")
	}
	if c.IsSet("out") {
		cfg.Indexer.OutputDir = c.String("out")
	}
	if c.IsSet("shard-max-size") {
		cfg.Indexer.ShardMaxSize = c.Int64("shard-max-size")
	}
	if c.IsSet("workers") {
		cfg.Indexer.Workers = c.Int("workers")
	}
	if c.IsSet("keep-shards") {
		cfg.Indexer.KeepShards = c.Bool("keep-shards")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Port)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	engine, err := indexer.NewEngine(cfg.Indexer, indexer.WithMetrics(m))
	if err != nil {
		return err
	}
	summary, err := engine.Build(ctx, source)
	if err != nil {
		return err
	}
	slog.Info("index built",
		"run_id", summary.RunID,
		"dir", summary.OutputDir,
		"documents", summary.Documents,
		"accepted", summary.AcceptedDocuments,
		"terms", summary.Terms,
		"index_bytes", summary.IndexSize,
		"duration", summary.Duration,
	)

	if len(cfg.Kafka.Brokers) > 0 {
		if err := announce(ctx, cfg.Kafka, summary); err != nil {
			slog.Warn("index built but not announced", "error", err)
		}
	}
	return printJSON(summary)
}

func openSource(ctx context.Context, cfg *config.Config) (corpus.Source, func(), error) {
	if cfg.Indexer.CorpusSource == "postgres" {
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if n, err := client.CountPages(ctx); err == nil {
			slog.Info("corpus discovered", "table", client.PagesTable(), "pages", n)
		}
		source, err := corpus.NewPostgresSource(ctx, client.DB, client.PagesTable())
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return source, func() {
			source.Close()
			client.Close()
		}, nil
	}
	source, err := corpus.NewDirSource(cfg.Indexer.CorpusDir)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("corpus discovered", "dir", cfg.Indexer.CorpusDir, "files", source.Len())
	return source, func() { source.Close() }, nil
}

// announce publishes index.complete so running searchers reload.
func announce(ctx context.Context, cfg config.KafkaConfig, summary *merge.Summary) error {
	producer := kafka.NewProducer(cfg, cfg.Topics.IndexComplete, kafka.ProducerOptions{Durable: true})
	defer producer.Close()

	event := analytics.IndexCompleteEvent{
		Type:              analytics.EventIndexComplete,
		RunID:             summary.RunID,
		IndexDir:          summary.OutputDir,
		Documents:         summary.Documents,
		AcceptedDocuments: summary.AcceptedDocuments,
		Terms:             summary.Terms,
		IndexSize:         summary.IndexSize,
		DurationMs:        summary.Duration.Milliseconds(),
		Timestamp:         time.Now().UTC(),
	}
	return resilience.Retry(ctx, "publish index.complete", resilience.RetryConfig{}, func(ctx context.Context) error {
		return producer.Publish(ctx, kafka.Event{
			Key:   summary.RunID,
			Type:  string(analytics.EventIndexComplete),
			Value: event,
		})
	})
}

func queryCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.NArg() == 0 {
		return fmt.Errorf("query text is required")
	}
	if c.IsSet("index") {
		cfg.Search.IndexDir = c.String("index")
	}
	norm := tokenizer.New(tokenizer.WithStopwords(cfg.Search.Stopwords))
	engine, err := executor.Open(cfg.Search, parser.New(norm, true))
	if err != nil {
		return err
	}
	defer engine.Close()

	query := strings.Join(c.Args().Slice(), " ")
	result, err := engine.Search(c.Context, query, c.Int("limit"))
	if err != nil {
		return err
	}
	for i, url := range result.URLs {
		fmt.Printf("%2d. %s\n", i+1, url)
	}
	fmt.Printf("%d matching documents\n", result.Matches)
	return nil
}

func statsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir := cfg.Search.IndexDir
	if c.IsSet("index") {
		dir = c.String("index")
	}
	if !c.Bool("terms") {
		manifest, err := store.ReadManifest(dir)
		if err != nil {
			return err
		}
		return printJSON(manifest)
	}

	ix, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer ix.Close()
	if err := printJSON(ix.Manifest()); err != nil {
		return err
	}
	return ix.Offsets(func(term string, offset int64) error {
		_, err := fmt.Printf("%s\t%d\n", term, offset)
		return err
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
