package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the geoquery configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Output    OutputConfig    `yaml:"output"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig holds Valkey settings for the embedding and geocode caches.
// An empty Addrs list disables caching.
type CacheConfig struct {
	Addrs             []string `yaml:"addrs"`
	Password          string   `yaml:"password"`
	ReadinessTimeout  int      `yaml:"readiness_timeout_sec"`
	EmbeddingTTLHours int      `yaml:"embedding_ttl_hours"`
	GeocodeTTLHours   int      `yaml:"geocode_ttl_hours"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding endpoint settings.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"` // metrics label only
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	DailyTokenBudget int64  `yaml:"daily_token_budget"` // 0 = unlimited
	BudgetAction     string `yaml:"budget_action"`      // warn, reject
}

// LLMConfig holds interpreter model settings.
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // ollama, openai
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	TimeoutSec  int      `yaml:"timeout_sec"`
	Temperature *float64 `yaml:"temperature"`
}

// EvidenceConfig holds evidence store settings.
type EvidenceConfig struct {
	Dir    string `yaml:"dir"`
	TopK   int    `yaml:"top_k"`
	Format string `yaml:"format"` // jsonl, parquet (used when writing)
}

// IndexingConfig holds offline scrape and index settings.
type IndexingConfig struct {
	SeedURLs     []string `yaml:"seed_urls"`
	RawPath      string   `yaml:"raw_path"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	MinChunk     int      `yaml:"min_chunk"`
	BatchSize    int      `yaml:"batch_size"`
	DelayMs      int      `yaml:"delay_ms"`
}

// GeocoderConfig holds Nominatim settings.
type GeocoderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	UserAgent         string  `yaml:"user_agent"`
	Email             string  `yaml:"email"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	Retries           *int    `yaml:"retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	FallbackDeltaDeg  float64 `yaml:"fallback_delta_deg"`
}

// ExtractorConfig holds spatial extraction tool settings.
type ExtractorConfig struct {
	Binary     string `yaml:"binary"`
	Source     string `yaml:"source"`
	WorkDir    string `yaml:"work_dir"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// OutputConfig holds per-request GeoJSON output settings.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	URLPrefix   string `yaml:"url_prefix"`
	MaxAgeHours int    `yaml:"max_age_hours"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	MaxConcurrentExtractions int       `yaml:"max_concurrent_extractions"`
	DefaultPlace             string    `yaml:"default_place"`
	DefaultBBox              []float64 `yaml:"default_bbox"` // min_lon, min_lat, max_lon, max_lat
	EvidenceChars            int       `yaml:"evidence_chars"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// extraction over a large region can take minutes
		c.HTTP.WriteTimeoutSec = 660
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Cache.EmbeddingTTLHours <= 0 {
		c.Cache.EmbeddingTTLHours = 24 * 7
	}
	if c.Cache.GeocodeTTLHours <= 0 {
		c.Cache.GeocodeTTLHours = 24 * 30
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BudgetAction == "" {
		c.Embedding.BudgetAction = "reject"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == "ollama" {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.LLM.Temperature == nil {
		t := 0.1
		c.LLM.Temperature = &t
	}
	if c.Evidence.Dir == "" {
		c.Evidence.Dir = "data/evidence"
	}
	if c.Evidence.TopK <= 0 {
		c.Evidence.TopK = 5
	}
	if c.Evidence.Format == "" {
		c.Evidence.Format = "jsonl"
	}
	if c.Indexing.RawPath == "" {
		c.Indexing.RawPath = "data/raw/osm_wiki.jsonl"
	}
	if c.Indexing.ChunkSize <= 0 {
		c.Indexing.ChunkSize = 1200
	}
	if c.Indexing.ChunkOverlap <= 0 {
		c.Indexing.ChunkOverlap = 150
	}
	if c.Indexing.MinChunk <= 0 {
		c.Indexing.MinChunk = 200
	}
	if c.Indexing.BatchSize <= 0 {
		c.Indexing.BatchSize = 32
	}
	if c.Indexing.DelayMs <= 0 {
		c.Indexing.DelayMs = 1000
	}
	if c.Geocoder.BaseURL == "" {
		c.Geocoder.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = "geoquery/1.0"
	}
	if c.Geocoder.TimeoutSec <= 0 {
		c.Geocoder.TimeoutSec = 30
	}
	if c.Geocoder.Retries == nil {
		r := 1
		c.Geocoder.Retries = &r
	}
	if c.Geocoder.RequestsPerSecond <= 0 {
		c.Geocoder.RequestsPerSecond = 1
	}
	if c.Geocoder.FallbackDeltaDeg <= 0 {
		c.Geocoder.FallbackDeltaDeg = 0.05
	}
	if c.Extractor.Binary == "" {
		c.Extractor.Binary = "osmium"
	}
	if c.Extractor.WorkDir == "" {
		c.Extractor.WorkDir = filepath.Join(os.TempDir(), "geoquery")
	}
	if c.Extractor.TimeoutSec <= 0 {
		c.Extractor.TimeoutSec = 600
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Output.URLPrefix == "" {
		c.Output.URLPrefix = "/output"
	}
	if c.Output.MaxAgeHours <= 0 {
		c.Output.MaxAgeHours = 24
	}
	if c.Pipeline.MaxConcurrentExtractions <= 0 {
		c.Pipeline.MaxConcurrentExtractions = 1
	}
	if c.Pipeline.EvidenceChars <= 0 {
		c.Pipeline.EvidenceChars = 220
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	switch c.Embedding.BudgetAction {
	case "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget_action must be \"warn\" or \"reject\", got %q", c.Embedding.BudgetAction)
	}
	if c.Embedding.DailyTokenBudget < 0 {
		return fmt.Errorf("embedding.daily_token_budget must be >= 0, got %d", c.Embedding.DailyTokenBudget)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("llm.provider must be \"ollama\" or \"openai\", got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Evidence.Format {
	case "jsonl", "parquet":
	default:
		return fmt.Errorf("evidence.format must be \"jsonl\" or \"parquet\", got %q", c.Evidence.Format)
	}
	if *c.Geocoder.Retries < 0 {
		return fmt.Errorf("geocoder.retries must be >= 0, got %d", *c.Geocoder.Retries)
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap (%d) must be less than chunk_size (%d)",
			c.Indexing.ChunkOverlap, c.Indexing.ChunkSize)
	}
	if n := len(c.Pipeline.DefaultBBox); n != 0 {
		if n != 4 {
			return fmt.Errorf("pipeline.default_bbox must have 4 values, got %d", n)
		}
		b := c.Pipeline.DefaultBBox
		if b[0] > b[2] || b[1] > b[3] {
			return fmt.Errorf("pipeline.default_bbox min exceeds max: %v", b)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
