package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Analysis AnalysisConfig
	Enhance  EnhanceConfig
	Query    QueryConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           int
	MCPPort        int
	AuthToken      string
	MaxUploadBytes int
}

type EngineConfig struct {
	// Backend selects the completion backend: "ollama" or "openrouter".
	Backend        string
	OllamaBaseURL  string
	Model          string
	OpenRouterKey  string
	RequestTimeout string
}

type AnalysisConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	DedupThreshold    float64
	MaxConcurrentJobs int
	// CategoryWeights overrides individual entries of the built-in
	// category weight table, as "category=weight" pairs separated by
	// commas, e.g. "liability=1.8,other=0.4". Empty keeps the defaults.
	CategoryWeights string
}

type EnhanceConfig struct {
	Enabled            bool
	TaskTimeout        string
	MaxConcurrentTasks int
}

type QueryConfig struct {
	TopK int
}

type StorageConfig struct {
	DataDir string
	Durable bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4800,
			MCPPort:        4801,
			MaxUploadBytes: 10 << 20,
		},
		Engine: EngineConfig{
			Backend:        "ollama",
			OllamaBaseURL:  "http://localhost:11434",
			Model:          "mistral-nemo",
			RequestTimeout: "45s",
		},
		Analysis: AnalysisConfig{
			ChunkSize:         2000,
			ChunkOverlap:      200,
			DedupThreshold:    0.7,
			MaxConcurrentJobs: 2,
		},
		Enhance: EnhanceConfig{
			Enabled:            true,
			TaskTimeout:        "60s",
			MaxConcurrentTasks: 5,
		},
		Query: QueryConfig{
			TopK: 5,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Durable: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "clauselens-data"
		}
	}
	return filepath.Join(dir, "clauselens")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/clauselens/config.json, then applies CLAUSELENS_*
// environment overrides on top of the built-in defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Engine.Backend {
	case "ollama":
	case "openrouter":
		if cfg.Engine.OpenRouterKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. " +
				"Set it via environment variable CLAUSELENS_OPENROUTER_API_KEY")
		}
	default:
		return fmt.Errorf("unknown engine backend %q (expected ollama or openrouter)", cfg.Engine.Backend)
	}

	if _, err := time.ParseDuration(cfg.Engine.RequestTimeout); err != nil {
		return fmt.Errorf("invalid engine.request_timeout %q: %w", cfg.Engine.RequestTimeout, err)
	}
	if _, err := time.ParseDuration(cfg.Enhance.TaskTimeout); err != nil {
		return fmt.Errorf("invalid enhance.task_timeout %q: %w", cfg.Enhance.TaskTimeout, err)
	}

	if cfg.Analysis.ChunkOverlap >= cfg.Analysis.ChunkSize {
		return fmt.Errorf("analysis.chunk_overlap (%d) must be smaller than analysis.chunk_size (%d)",
			cfg.Analysis.ChunkOverlap, cfg.Analysis.ChunkSize)
	}
	if cfg.Analysis.DedupThreshold < 0 || cfg.Analysis.DedupThreshold > 1 {
		return fmt.Errorf("analysis.dedup_threshold must be in [0,1], got %v", cfg.Analysis.DedupThreshold)
	}
	if _, err := parseCategoryWeights(cfg.Analysis.CategoryWeights); err != nil {
		return fmt.Errorf("invalid analysis.category_weights: %w", err)
	}

	return nil
}

// CategoryWeightOverrides returns the parsed analysis.category_weights
// entries, nil when unset. Load guarantees the value parses.
func (c Config) CategoryWeightOverrides() map[string]float64 {
	m, _ := parseCategoryWeights(c.Analysis.CategoryWeights)
	return m
}

func parseCategoryWeights(s string) (map[string]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("expected category=weight, got %q", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("weight for %q: %w", strings.TrimSpace(name), err)
		}
		out[strings.TrimSpace(name)] = w
	}
	return out, nil
}

// EngineTimeout returns the parsed per-request engine timeout.
// Load guarantees the value parses; the fallback covers zero-value configs in tests.
func (c Config) EngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.RequestTimeout)
	if err != nil {
		return 45 * time.Second
	}
	return d
}

// EnhanceTaskTimeout returns the parsed per-task enhancement timeout.
func (c Config) EnhanceTaskTimeout() time.Duration {
	d, err := time.ParseDuration(c.Enhance.TaskTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
