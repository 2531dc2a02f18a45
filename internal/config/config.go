package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          LogConfig         `yaml:"log"`
	RAG          RAGConfig         `yaml:"rag"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	Database     DatabaseConfig    `yaml:"database"`
	Indexer      IndexerConfig     `yaml:"indexer"`
	Session      SessionConfig     `yaml:"session"`
	Retrieval    RetrievalConfig   `yaml:"retrieval"`
	Intent       IntentConfig      `yaml:"intent"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RAGConfig struct {
	ChunkSize     int           `yaml:"chunk_size"` // tokens
	TopK          int           `yaml:"top_k"`
	MaxSources    int           `yaml:"max_sources"`
	RankSources   *bool         `yaml:"rank_sources"`
	ReuseMessages int           `yaml:"reuse_messages"`
	QueryTimeout  time.Duration `yaml:"query_timeout"`
	// KeywordWeight blends keyword matches into the vector score on stores
	// that support it. Zero keeps pure vector search.
	KeywordWeight float64 `yaml:"keyword_weight"`
}

// LLMConfig is shared by the embedding and the generative service.
type LLMConfig struct {
	Provider          string        `yaml:"provider"` // ollama, openai, gemini, hash
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Key               string        `yaml:"key"`
	Dimension         int           `yaml:"dimension"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

type VectorStoreConfig struct {
	Backend       string       `yaml:"backend"` // chromem, postgres, qdrant
	Path          string       `yaml:"path"`
	Collection    string       `yaml:"collection"`
	InMemory      bool         `yaml:"in_memory"`
	EncryptionKey string       `yaml:"encryption_key"`
	Qdrant        QdrantConfig `yaml:"qdrant"`
}

type QdrantConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"` // pgdriver or pq
	Debug  bool   `yaml:"debug"`
}

type IndexerConfig struct {
	DocsDir        string        `yaml:"docs_dir"`
	CheckpointPath string        `yaml:"checkpoint_path"`
	Interval       time.Duration `yaml:"interval"`
	Workers        int           `yaml:"workers"`
	Watch          bool          `yaml:"watch"`
	Extensions     []string      `yaml:"extensions"`
}

type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
	MaxMessages int           `yaml:"max_messages"`
}

type RetrievalConfig struct {
	Strategy string `yaml:"strategy"` // model or heuristic
}

type IntentConfig struct {
	TaxonomyPath string `yaml:"taxonomy_path"`
}

const (
	DefaultChunkSize      = 512
	DefaultTopK           = 5
	DefaultMaxSources     = 2
	DefaultReuseMessages  = 4
	DefaultDimension      = 768
	DefaultCollection     = "personal_rag_documents"
	DefaultScanInterval   = 30 * time.Second
	DefaultMaxMessages    = 10
	DefaultMaxSessions    = 1024
	DefaultSessionTTL     = 24 * time.Hour
	DefaultServiceTimeout = 60 * time.Second
)

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if c.InferenceLLM.Key == "" {
		switch c.InferenceLLM.Provider {
		case "gemini":
			c.InferenceLLM.Key = os.Getenv("GEMINI_API_KEY")
		case "openai":
			c.InferenceLLM.Key = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.EmbedLLM.Key == "" && c.EmbedLLM.Provider == "openai" {
		c.EmbedLLM.Key = os.Getenv("OPENAI_API_KEY")
	}
	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv("DATABASE_URL")
	}
}

// ApplyDefaults fills every zero field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = DefaultChunkSize
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = DefaultTopK
	}
	if c.RAG.MaxSources <= 0 {
		c.RAG.MaxSources = DefaultMaxSources
	}
	if c.RAG.RankSources == nil {
		rank := true
		c.RAG.RankSources = &rank
	}
	if c.RAG.ReuseMessages <= 0 {
		c.RAG.ReuseMessages = DefaultReuseMessages
	}
	if c.RAG.QueryTimeout <= 0 {
		c.RAG.QueryTimeout = 2 * DefaultServiceTimeout
	}

	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "hash"
	}
	if c.EmbedLLM.Dimension <= 0 {
		c.EmbedLLM.Dimension = DefaultDimension
	}
	if c.EmbedLLM.Timeout <= 0 {
		c.EmbedLLM.Timeout = DefaultServiceTimeout
	}
	if c.EmbedLLM.CacheSize <= 0 {
		c.EmbedLLM.CacheSize = 256
	}
	if c.EmbedLLM.CacheTTL <= 0 {
		c.EmbedLLM.CacheTTL = 10 * time.Minute
	}
	if c.EmbedLLM.BreakerFailures == 0 {
		c.EmbedLLM.BreakerFailures = 3
	}
	if c.EmbedLLM.BreakerCooldown <= 0 {
		c.EmbedLLM.BreakerCooldown = 30 * time.Second
	}

	if c.InferenceLLM.Provider == "" {
		c.InferenceLLM.Provider = "gemini"
	}
	if c.InferenceLLM.Model == "" && c.InferenceLLM.Provider == "gemini" {
		c.InferenceLLM.Model = "gemini-2.5-flash"
	}
	if c.InferenceLLM.Timeout <= 0 {
		c.InferenceLLM.Timeout = DefaultServiceTimeout
	}

	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "chromem"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "./chromemdb"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = DefaultCollection
	}
	if c.VectorStore.Qdrant.URL == "" {
		c.VectorStore.Qdrant.URL = "http://localhost:6333"
	}
	if c.VectorStore.Qdrant.Timeout <= 0 {
		c.VectorStore.Qdrant.Timeout = 15 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "pgdriver"
	}

	if c.Indexer.DocsDir == "" {
		c.Indexer.DocsDir = "./data/documents"
	}
	if c.Indexer.CheckpointPath == "" {
		c.Indexer.CheckpointPath = "./data/processed_files.json"
	}
	if c.Indexer.Interval <= 0 {
		c.Indexer.Interval = DefaultScanInterval
	}
	if c.Indexer.Workers <= 0 {
		c.Indexer.Workers = 1
	}

	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = DefaultMaxSessions
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Session.MaxMessages <= 0 {
		c.Session.MaxMessages = DefaultMaxMessages
	}

	if c.Retrieval.Strategy == "" {
		c.Retrieval.Strategy = "model"
	}
}
