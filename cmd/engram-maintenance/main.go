// Command engram-maintenance runs the periodic batch passes over a tenant's
// memories: importance rescoring, cluster summarization, chain discovery,
// and expired-context purging. It is meant to be invoked by an external
// scheduler (cron or similar); the engine itself has no background workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/engine"
	"github.com/recallstack/engram/internal/index"
	"github.com/recallstack/engram/internal/llm"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/internal/storage/postgres"
	"github.com/recallstack/engram/internal/storage/sqlite"
)

func main() {
	var (
		tenantID = flag.String("tenant", "", "tenant to run maintenance for (required)")
		passes   = flag.String("passes", "importance,summarize,purge", "comma-separated passes: importance, summarize, chains, purge")
		query    = flag.String("query", "", "query for the chains pass")
		timeout  = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	)
	flag.Parse()

	if *tenantID == "" {
		fmt.Fprintln(os.Stderr, "engram-maintenance: -tenant is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*tenantID, *passes, *query, *timeout); err != nil {
		log.Fatalf("engram-maintenance: %v", err)
	}
}

func run(tenantID, passes, query string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	generator, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		return err
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		return err
	}
	idx, err := index.New(cfg.Index.Backend)
	if err != nil {
		return err
	}

	eng, err := engine.New(store, generator, embedder, idx, cfg)
	if err != nil {
		return err
	}

	for _, pass := range strings.Split(passes, ",") {
		switch strings.TrimSpace(pass) {
		case "importance":
			n, err := eng.RecomputeImportance(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("importance pass: %w", err)
			}
			log.Printf("maintenance: rescored %d memories", n)
		case "summarize":
			n, err := eng.SummarizeMemories(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("summarize pass: %w", err)
			}
			log.Printf("maintenance: created %d summaries", n)
		case "chains":
			if query == "" {
				return fmt.Errorf("chains pass: -query is required")
			}
			chains, err := eng.DiscoverChains(ctx, tenantID, query)
			if err != nil {
				return fmt.Errorf("chains pass: %w", err)
			}
			log.Printf("maintenance: discovered %d chains", len(chains))
		case "purge":
			n, err := eng.PurgeExpiredContexts(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("purge pass: %w", err)
			}
			log.Printf("maintenance: purged %d expired contexts", n)
		case "":
		default:
			return fmt.Errorf("unknown pass %q", pass)
		}
	}
	return nil
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	case "sqlite", "":
		return sqlite.NewStore(cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
