package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/xhad/reanchor/pkg/chunker"
	cfgPkg "github.com/xhad/reanchor/pkg/config"
	"github.com/xhad/reanchor/pkg/match"
	"github.com/xhad/reanchor/pkg/pipeline"
	"github.com/xhad/reanchor/pkg/recovery"
	"github.com/xhad/reanchor/pkg/remap"
	"github.com/xhad/reanchor/pkg/store"
)

type Config struct {
	DBUrl     string
	BodyDir   string
	DocID     string
	Accept    string
	Discard   string
	ChunkSize int
	VectorDim int
	Workers   int
	Verbose   bool
}

func main() {
	godotenv.Load()

	config := parseFlags()

	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&config.DBUrl, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&config.BodyDir, "body-dir", os.Getenv("BODY_DIR"), "Directory holding extracted document bodies")
	flag.StringVar(&config.DocID, "doc", "", "Document UUID to reprocess")
	flag.StringVar(&config.Accept, "accept", "", "Comma-separated annotation UUIDs to accept from review")
	flag.StringVar(&config.Discard, "discard", "", "Comma-separated annotation UUIDs to discard from review")
	flag.IntVar(&config.ChunkSize, "chunk-size", 1000, "Size of text chunks")
	flag.IntVar(&config.VectorDim, "vector-dim", 768, "Vector dimension")
	flag.IntVar(&config.Workers, "workers", 0, "Recovery worker count (0 = NumCPU)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	// Load config file if specified
	if cfg, err := cfgPkg.LoadConfig(configPath); err == nil {
		if errs := cfg.Validate(); len(errs) > 0 {
			for _, e := range errs {
				color.Red("config: %v", e)
			}
			os.Exit(1)
		}

		// Command line flags win over the file
		if config.DBUrl == "" {
			config.DBUrl = cfg.Database.URL
		}
		if config.BodyDir == "" {
			config.BodyDir = cfg.Bodies.Dir
		}
		if flag.Lookup("chunk-size").Value.String() == "1000" {
			config.ChunkSize = cfg.Chunker.ChunkSize
		}
		if config.VectorDim == 768 {
			config.VectorDim = cfg.Database.VectorDim
		}
		if config.Workers == 0 {
			config.Workers = cfg.Recovery.Workers
		}
	}

	return config
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("annotations"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// watchProgress mirrors an atomic counter onto the bar until the count
// reaches total or stop closes. The stop channel is what shuts the watcher
// down when a run fails before recovery ever started counting.
func watchProgress(bar *progressbar.ProgressBar, counter *int32, total int, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				bar.Set(int(atomic.LoadInt32(counter)))
				return
			case <-ticker.C:
				count := int(atomic.LoadInt32(counter))
				bar.Set(count)
				if count >= total {
					return
				}
			}
		}
	}()
	return done
}

func run(config Config) error {
	ctx := context.Background()

	logger := zap.NewNop()
	if config.Verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}
	}
	defer logger.Sync()

	if config.DBUrl == "" {
		return fmt.Errorf("no database URL configured (set -db-url or DATABASE_URL)")
	}

	pgStore, err := store.NewWithConfig(ctx, store.Config{
		ConnString: config.DBUrl,
		VectorDim:  config.VectorDim,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %v", err)
	}
	defer pgStore.Close()

	switch {
	case config.Accept != "":
		return reviewBatch(ctx, pgStore, config.Accept, true)
	case config.Discard != "":
		return reviewBatch(ctx, pgStore, config.Discard, false)
	case config.DocID != "":
		return reprocess(ctx, pgStore, config, logger)
	}

	flag.Usage()
	return fmt.Errorf("nothing to do: pass -doc, -accept or -discard")
}

func reprocess(ctx context.Context, pgStore *store.PostgresStore, config Config, logger *zap.Logger) error {
	docID, err := uuid.Parse(config.DocID)
	if err != nil {
		return fmt.Errorf("invalid document ID %q: %v", config.DocID, err)
	}

	// Size the progress bar before the pipeline takes over
	annotations, err := pgStore.GetAnnotations(ctx, docID)
	if err != nil {
		return err
	}

	color.Blue("\nReprocessing document %s (%d annotations)\n", docID, len(annotations))

	var recovered int32
	bar := getProgressBar(len(annotations), "Re-anchoring annotations...")

	stop := make(chan struct{})
	done := watchProgress(bar, &recovered, len(annotations), stop)

	engine := match.New()
	recoverer := recovery.NewWithConfig(recovery.Config{
		Workers: config.Workers,
		OnProgress: func(uuid.UUID) {
			atomic.AddInt32(&recovered, 1)
		},
	}, engine, logger)

	textChunker, err := chunker.NewWithConfig(chunker.Config{ChunkSize: config.ChunkSize})
	if err != nil {
		return fmt.Errorf("failed to initialize chunker: %v", err)
	}

	pipe := pipeline.NewWithConfig(pipeline.Config{},
		pgStore,
		store.NewBodyDir(config.BodyDir),
		textChunker,
		recoverer,
		remap.NewWithConfig(remap.Config{}, logger),
		logger,
	)

	results, err := pipe.Reprocess(ctx, docID)
	close(stop)
	<-done
	bar.Finish()

	if results != nil {
		fmt.Println()
		color.Green("✓ %d re-anchored", len(results.Success))
		color.Yellow("? %d need review", len(results.NeedsReview))
		color.Red("✗ %d lost", len(results.Lost))
		fmt.Printf("connections: %d remapped, %d invalidated\n",
			results.ConnectionsRemapped, results.ConnectionsInvalidated)
	}
	if err != nil {
		return fmt.Errorf("reprocess failed: %v", err)
	}

	color.Green("\n✓ New version committed\n")
	return nil
}

func reviewBatch(ctx context.Context, pgStore *store.PostgresStore, rawIDs string, accept bool) error {
	var ids []uuid.UUID
	for _, raw := range strings.Split(rawIDs, ",") {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid annotation ID %q: %v", raw, err)
		}
		ids = append(ids, id)
	}

	pipe := pipeline.NewWithConfig(pipeline.Config{}, pgStore, nil, nil, nil, nil, zap.NewNop())

	if accept {
		if err := pipe.BatchAccept(ctx, ids); err != nil {
			return err
		}
		color.Green("✓ Accepted %d annotations\n", len(ids))
		return nil
	}

	if err := pipe.BatchDiscard(ctx, ids); err != nil {
		return err
	}
	color.Green("✓ Discarded %d annotations\n", len(ids))
	return nil
}
