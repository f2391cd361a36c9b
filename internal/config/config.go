package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the runtime config. An optional YAML file (GRAPHMEM_CONFIG)
// provides the base; environment variables override it. Secrets are only
// read from the environment, never from the file.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("GRAPHMEM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	loadStoreConfig(&cfg.Store)
	loadEmbedderConfig(&cfg.Embedder)
	loadJudgeConfig(&cfg.Judge)
	loadExtractorConfig(&cfg.Extractor)
	loadConsolidateConfig(&cfg.Consolidate)
	loadArchiveConfig(&cfg.Archive)

	if env := os.Getenv("GRAPHMEM_ENV"); env != "" {
		cfg.Env = env
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Env: "development",
		Store: StoreConfig{
			Path:       "graphmem.db",
			Dimensions: 768,
		},
		Search: SearchConfig{
			RRFK:           60,
			IDFFloor:       0.5,
			MinSimilarity:  0.3,
			MinHybridScore: 0.01,
			DefaultTopK:    10,
		},
		Resolver: ResolverConfig{
			BlockingThreshold: 0.85,
			BlockingTopK:      10,
		},
		Fusion: FusionConfig{
			NonExclusiveRelations: []string{"KNOWS", "WORKS_WITH", "RELATED_TO", "MENTIONED_WITH"},
			InferCoMentions:       true,
		},
		Extractor: ExtractorConfig{
			MaxGleanings: 2,
			Inference:    true,
		},
		Consolidate: ConsolidateConfig{
			Schedule:            "17 3 * * *",
			MaxConcurrentOwners: 4,
			MaxCPUPercent:       60,
			Retention:           90 * 24 * time.Hour,
		},
	}
}

func loadStoreConfig(cfg *StoreConfig) {
	if path := os.Getenv("GRAPHMEM_DB"); path != "" {
		cfg.Path = path
	}
	if dims := os.Getenv("GRAPHMEM_DIMENSIONS"); dims != "" {
		if n, err := strconv.Atoi(dims); err == nil && n > 0 {
			cfg.Dimensions = n
		}
	}
}

func loadEmbedderConfig(cfg *EmbedderConfig) {
	if provider := os.Getenv("EMBEDDER_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}
	if cfg.Provider == "" {
		return
	}

	if baseURL := os.Getenv("EMBEDDER_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model := os.Getenv("EMBEDDER_MODEL"); model != "" {
		cfg.Model = model
	}
	cfg.APIKey = os.Getenv("EMBEDDER_API_KEY")
	if cfg.APIKey == "" && cfg.Provider == "openai" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func loadJudgeConfig(cfg *LLMConfig) {
	loadLLM(cfg, "JUDGE")
}

func loadExtractorConfig(cfg *ExtractorConfig) {
	loadLLM(&cfg.LLM, "EXTRACTOR")

	if passes := os.Getenv("EXTRACTOR_MAX_GLEANINGS"); passes != "" {
		if n, err := strconv.Atoi(passes); err == nil && n >= 0 {
			cfg.MaxGleanings = n
		}
	}
	if os.Getenv("EXTRACTOR_INFERENCE") == "false" {
		cfg.Inference = false
	}
}

func loadLLM(cfg *LLMConfig, prefix string) {
	if provider := os.Getenv(prefix + "_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}
	if model := os.Getenv(prefix + "_MODEL"); model != "" {
		cfg.Model = model
	}
	if baseURL := os.Getenv(prefix + "_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	cfg.APIKey = os.Getenv(prefix + "_API_KEY")
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "claude":
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func loadConsolidateConfig(cfg *ConsolidateConfig) {
	if schedule := os.Getenv("CONSOLIDATE_SCHEDULE"); schedule != "" {
		cfg.Schedule = schedule
	}
	if owners := os.Getenv("CONSOLIDATE_MAX_OWNERS"); owners != "" {
		if n, err := strconv.Atoi(owners); err == nil && n > 0 {
			cfg.MaxConcurrentOwners = n
		}
	}
	if pct := os.Getenv("CONSOLIDATE_MAX_CPU"); pct != "" {
		if f, err := strconv.ParseFloat(pct, 64); err == nil && f > 0 {
			cfg.MaxCPUPercent = f
		}
	}
	if retention := os.Getenv("CONSOLIDATE_RETENTION"); retention != "" {
		if d, err := time.ParseDuration(retention); err == nil && d > 0 {
			cfg.Retention = d
		}
	}
}

func loadArchiveConfig(cfg *ArchiveConfig) {
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		cfg.Bucket = bucket
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "graphmem-exports"
	}

	cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.UseSSL = os.Getenv("MINIO_USE_SSL") == "true"
	cfg.Enabled = cfg.AccessKey != "" && cfg.SecretKey != ""
}
