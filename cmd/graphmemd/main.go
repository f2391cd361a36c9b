package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/archive"
	"github.com/bowerhall/graphmem/internal/config"
	"github.com/bowerhall/graphmem/internal/embedder"
	"github.com/bowerhall/graphmem/internal/extract"
	"github.com/bowerhall/graphmem/internal/fuse"
	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/llm"
	"github.com/bowerhall/graphmem/internal/logger"
	"github.com/bowerhall/graphmem/internal/memory"
	"github.com/bowerhall/graphmem/internal/resolve"
	"github.com/bowerhall/graphmem/internal/scheduler"
	"github.com/bowerhall/graphmem/internal/search"
)

func init() {
	godotenv.Load()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "graphmemd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Env); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	log := logger.Get()

	store, err := graph.Open(cfg.Store.Path, graph.Options{Dimensions: cfg.Store.Dimensions})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	log.Info("store open", zap.String("path", cfg.Store.Path), zap.Int("dimensions", store.Dimensions()))

	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Embedder.Provider,
		BaseURL:  cfg.Embedder.BaseURL,
		Model:    cfg.Embedder.Model,
		APIKey:   cfg.Embedder.APIKey,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	if emb != nil {
		store.SetEmbedder(emb)
	} else {
		log.Warn("no embedder configured, vector features disabled")
	}

	judgeLLM, err := llm.New(llm.Config{
		Provider: cfg.Judge.Provider,
		APIKey:   cfg.Judge.APIKey,
		Model:    cfg.Judge.Model,
		BaseURL:  cfg.Judge.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("init judge provider: %w", err)
	}

	extractLLM, err := llm.New(llm.Config{
		Provider: cfg.Extractor.LLM.Provider,
		APIKey:   cfg.Extractor.LLM.APIKey,
		Model:    cfg.Extractor.LLM.Model,
		BaseURL:  cfg.Extractor.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("init extraction provider: %w", err)
	}

	resolver := resolve.New(store, emb, resolve.NewLLMJudge(judgeLLM), resolve.Config{
		BlockingThreshold: cfg.Resolver.BlockingThreshold,
		BlockingTopK:      cfg.Resolver.BlockingTopK,
	})

	engine := fuse.New(store, resolver, emb, fuse.Config{
		NonExclusiveRelations: cfg.Fusion.NonExclusiveRelations,
		InferCoMentions:       cfg.Fusion.InferCoMentions,
	})

	extractor := extract.New(extractLLM, cfg.Extractor.MaxGleanings, cfg.Extractor.Inference)

	retriever := search.NewRetriever(store, search.Config{
		RRFK:           cfg.Search.RRFK,
		IDFFloor:       cfg.Search.IDFFloor,
		MinSimilarity:  cfg.Search.MinSimilarity,
		MinHybridScore: cfg.Search.MinHybridScore,
		DefaultTopK:    cfg.Search.DefaultTopK,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var archiver memory.Archiver
	if cfg.Archive.Enabled {
		client, err := archive.NewClient(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		if err := client.Init(ctx); err != nil {
			return fmt.Errorf("init archive bucket: %w", err)
		}
		archiver = client
	}

	manager := memory.NewManager(store, extractor, engine, retriever, archiver, memory.Config{
		Retention:           cfg.Consolidate.Retention,
		MaxConcurrentOwners: cfg.Consolidate.MaxConcurrentOwners,
	})

	sched := scheduler.New(manager, scheduler.Config{
		Schedule:      cfg.Consolidate.Schedule,
		MaxCPUPercent: cfg.Consolidate.MaxCPUPercent,
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	log.Info("graphmemd running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	return nil
}
