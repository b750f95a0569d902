// Package main provides the semlink binary entry point.
// Semlink resolves free-text entity mentions to canonical knowledge-base
// identifiers using a text generation service and SPARQL-backed lookup.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	// Register generation providers via init()
	_ "github.com/c360studio/semlink/llm/providers"

	"github.com/c360studio/semlink/batch"
	"github.com/c360studio/semlink/config"
	"github.com/c360studio/semlink/graph"
	"github.com/c360studio/semlink/kb"
	"github.com/c360studio/semlink/linking"
	"github.com/c360studio/semlink/llm"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semlink"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		natsURL    string
	)

	cmd := &cobra.Command{
		Use:   "semlink",
		Short: "Entity linking engine",
		Long: `Semlink resolves free-text entity mentions to canonical
knowledge-base identifiers.

It provides:
- Single-mention linking with context-aware candidate ranking
- Chunked batch processing of mention tables (CSV/JSON)
- Drop-directory watching for continuous batch ingestion

Candidates come from SPARQL knowledge bases (DBpedia, Wikidata);
normalization and context analysis use a text generation service.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS URL for result publication (overrides config)")

	cmd.AddCommand(linkCmd(&configPath, &logLevel, &natsURL))
	cmd.AddCommand(batchCmd(&configPath, &logLevel, &natsURL))
	cmd.AddCommand(watchCmd(&configPath, &logLevel, &natsURL))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func linkCmd(configPath, logLevel, natsURL *string) *cobra.Command {
	var (
		generator string
		kbNames   []string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "link <mention> [context]",
		Short: "Resolve a single mention to knowledge-base candidates",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}

			contextText := ""
			if len(args) > 1 {
				contextText = args[1]
			}

			engine, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			opts := linking.LinkOptions{
				Generator:      generator,
				KnowledgeBases: kbNames,
				Limit:          limit,
			}
			if opts.Limit <= 0 {
				opts.Limit = cfg.Linking.Limit
			}

			result, err := engine.Link(cmd.Context(), args[0], contextText, opts)
			if err != nil {
				return fmt.Errorf("link %q: %w", args[0], err)
			}

			if *natsURL != "" {
				cfg.NATS.URL = *natsURL
			}
			nc, err := connectNATS(cfg, logger)
			if err != nil {
				return err
			}
			if nc != nil {
				defer nc.Close()
				if err := graph.PublishResult(cmd.Context(), nc, result); err != nil {
					logger.Warn("Graph publish failed", "mention", result.Mention, "error", err)
				}
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&generator, "generator", "", "Text generator to use (default: first registered)")
	cmd.Flags().StringSliceVar(&kbNames, "kb", nil, "Knowledge bases to search (default: all registered)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max candidates to return")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full result as JSON")

	return cmd
}

func batchCmd(configPath, logLevel, natsURL *string) *cobra.Command {
	var (
		inPath     string
		outPath    string
		errorsPath string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process a mention table through the batch pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}

			if *natsURL != "" {
				cfg.NATS.URL = *natsURL
			}

			pipeline, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			nc, err := connectNATS(cfg, logger)
			if err != nil {
				return err
			}
			if nc != nil {
				defer nc.Close()
			}

			return runBatch(cmd.Context(), pipeline, nc, logger, inPath, outPath, errorsPath)
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "Input table path (.csv or .json)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output table path (.csv or .json)")
	cmd.Flags().StringVar(&errorsPath, "errors-out", "", "Optional path for rows with missing fields")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func watchCmd(configPath, logLevel, natsURL *string) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a drop directory and process input tables as they land",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}

			if dir != "" {
				cfg.Watch.Dir = dir
			}
			if *natsURL != "" {
				cfg.NATS.URL = *natsURL
			}
			if cfg.Watch.Dir == "" {
				return fmt.Errorf("watch directory is required (--dir or watch.dir in config)")
			}

			pipeline, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			nc, err := connectNATS(cfg, logger)
			if err != nil {
				return err
			}
			if nc != nil {
				defer nc.Close()
			}

			watcher, err := batch.NewWatcher(cfg.Watch, logger)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err = watcher.Run(ctx, func(path string) {
				// Our own output lands in the watched directory; don't
				// re-process it.
				if strings.Contains(filepath.Base(path), ".linked.") {
					return
				}
				outPath := linkedOutputPath(path)
				if err := runBatch(ctx, pipeline, nc, logger, path, outPath, ""); err != nil {
					logger.Error("Input table failed", "path", path, "error", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				logger.Info("Watcher stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to watch (overrides config)")

	return cmd
}

// setup configures logging and loads configuration.
func setup(configPath, logLevel string) (*slog.Logger, *config.Config, error) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return logger, cfg, nil
}

func buildGenerator(cfg *config.Config, logger *slog.Logger) (llm.Generator, error) {
	client, err := llm.NewClient(llm.Config{
		Provider: cfg.Generation.Provider,
		Endpoint: cfg.Generation.Endpoint,
		Model:    cfg.Generation.Model,
		APIKey:   cfg.Generation.APIKey,
		Timeout:  cfg.Generation.GetTimeout(),
	}, llm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}
	return client, nil
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*linking.Engine, error) {
	gen, err := buildGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := linking.NewEngine(linking.WithLogger(logger))
	engine.RegisterGenerator(gen)

	for _, name := range cfg.KnowledgeBases.Enabled {
		switch name {
		case "dbpedia":
			engine.RegisterSource(kb.NewDBpedia(
				cfg.KnowledgeBases.DBpediaEndpoint,
				kb.WithDBpediaLogger(logger)))
		case "wikidata":
			engine.RegisterSource(kb.NewWikidata(
				cfg.KnowledgeBases.WikidataEndpoint,
				kb.WithWikidataLogger(logger)))
		default:
			return nil, fmt.Errorf("unknown knowledge base: %s", name)
		}
	}

	return engine, nil
}

func buildPipeline(cfg *config.Config, logger *slog.Logger) (*batch.Pipeline, error) {
	gen, err := buildGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}

	// URI lookup goes against DBpedia regardless of which sources the
	// linking engine searches; it is the only batch-capable source.
	dbpedia := kb.NewDBpedia(
		cfg.KnowledgeBases.DBpediaEndpoint,
		kb.WithDBpediaLogger(logger))

	coord, err := batch.NewCoordinator(gen, dbpedia, cfg.Batch,
		batch.WithCoordinatorLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	return batch.NewPipeline(coord, logger), nil
}

// connectNATS connects if a URL is configured. A nil connection is a
// valid result and disables publication downstream.
func connectNATS(cfg *config.Config, logger *slog.Logger) (*nats.Conn, error) {
	url := cfg.NATS.URL
	if envURL := os.Getenv("SEMLINK_NATS_URL"); envURL != "" {
		url = envURL
	}
	if url == "" {
		return nil, nil
	}

	logger.Info("Connecting to NATS", "url", url)
	nc, err := nats.Connect(url, nats.Name(appName))
	if err != nil {
		return nil, fmt.Errorf("NATS connection failed: %w", err)
	}
	return nc, nil
}

func runBatch(ctx context.Context, pipeline *batch.Pipeline, nc *nats.Conn, logger *slog.Logger, inPath, outPath, errorsPath string) error {
	pairs, err := batch.LoadMentions(inPath)
	if err != nil {
		return fmt.Errorf("load input table: %w", err)
	}

	result := pipeline.Run(ctx, pairs)

	if err := batch.SaveRows(outPath, result.Rows); err != nil {
		return fmt.Errorf("save output table: %w", err)
	}
	if errorsPath != "" && len(result.Errors) > 0 {
		if err := batch.SaveRows(errorsPath, result.Errors); err != nil {
			return fmt.Errorf("save error table: %w", err)
		}
	}

	if err := graph.PublishRows(ctx, nc, result.Rows); err != nil {
		logger.Warn("Graph publish failed", "run_id", result.RunID, "error", err)
	}

	logger.Info("Batch run written",
		"run_id", result.RunID,
		"in", inPath,
		"out", outPath,
		"rows", len(result.Rows),
		"errors", len(result.Errors))
	return nil
}

// linkedOutputPath derives an output path next to a watched input file,
// e.g. mentions.csv -> mentions.linked.csv.
func linkedOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	return strings.TrimSuffix(inPath, ext) + ".linked" + ext
}

func printResult(r *linking.Result) {
	fmt.Printf("Mention:        %s\n", r.Mention)
	fmt.Printf("Canonical name: %s\n", r.CanonicalName)
	if r.Signal != nil {
		fmt.Printf("Entity type:    %s (confidence %.2f)\n", r.Signal.EntityType, r.Signal.Confidence)
		if len(r.Signal.Keywords) > 0 {
			fmt.Printf("Keywords:       %s\n", strings.Join(r.Signal.Keywords, ", "))
		}
	}
	fmt.Printf("Confidence:     %.2f\n", r.Confidence)

	if len(r.Candidates) == 0 {
		fmt.Println("No candidates found.")
		return
	}
	fmt.Println("Candidates:")
	for i, c := range r.Candidates {
		fmt.Printf("  %d. %s (%.2f)\n", i+1, c.URI, c.Score)
		if c.Description != "" {
			fmt.Printf("     %s\n", c.Description)
		}
	}
}
