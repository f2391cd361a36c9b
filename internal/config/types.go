package config

import "time"

type Config struct {
	Env         string            `yaml:"env"`
	Store       StoreConfig       `yaml:"store"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Judge       LLMConfig         `yaml:"judge"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Search      SearchConfig      `yaml:"search"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Fusion      FusionConfig      `yaml:"fusion"`
	Consolidate ConsolidateConfig `yaml:"consolidate"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

type StoreConfig struct {
	Path       string `yaml:"path"`
	Dimensions int    `yaml:"dimensions"`
}

type EmbedderConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"-"`
}

type ExtractorConfig struct {
	LLM          LLMConfig `yaml:"llm"`
	MaxGleanings int       `yaml:"max_gleanings"`
	Inference    bool      `yaml:"inference"`
}

type SearchConfig struct {
	RRFK           int     `yaml:"rrf_k"`
	IDFFloor       float64 `yaml:"idf_floor"`
	MinSimilarity  float64 `yaml:"min_similarity"`
	MinHybridScore float64 `yaml:"min_hybrid_score"`
	DefaultTopK    int     `yaml:"default_top_k"`
}

type ResolverConfig struct {
	BlockingThreshold float64 `yaml:"blocking_threshold"`
	BlockingTopK      int     `yaml:"blocking_top_k"`
}

type FusionConfig struct {
	NonExclusiveRelations []string `yaml:"non_exclusive_relations"`
	InferCoMentions       bool     `yaml:"infer_co_mentions"`
}

type ConsolidateConfig struct {
	Schedule            string        `yaml:"schedule"`
	MaxConcurrentOwners int           `yaml:"max_concurrent_owners"`
	MaxCPUPercent       float64       `yaml:"max_cpu_percent"`
	Retention           time.Duration `yaml:"retention"`
}

type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}
