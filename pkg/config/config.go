package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// SchemaConfig controls semantic-type inference.
type SchemaConfig struct {
	// SampleRows bounds how many rows per table are fetched for inference.
	SampleRows int `json:"sample_rows" env:"RELGRAPH_SCHEMA_SAMPLE_ROWS"`
	// CategoricalRatio: a column is categorical when distinct/rows <= ratio.
	CategoricalRatio float64 `json:"categorical_ratio" env:"RELGRAPH_SCHEMA_CATEGORICAL_RATIO"`
	// CategoricalMaxDistinct: or when the distinct count is at most this.
	CategoricalMaxDistinct int `json:"categorical_max_distinct" env:"RELGRAPH_SCHEMA_CATEGORICAL_MAX_DISTINCT"`
}

// EncoderConfig holds per-semantic-type encoder hyperparameters.
type EncoderConfig struct {
	TextBuckets  int `json:"text_buckets" env:"RELGRAPH_ENCODER_TEXT_BUCKETS"`
	VocabMinFreq int `json:"vocab_min_freq" env:"RELGRAPH_ENCODER_VOCAB_MIN_FREQ"`
}

// BuildConfig controls hypergraph construction.
type BuildConfig struct {
	// Hops is the neighborhood traversal depth from the seed rows.
	Hops int `json:"hops" env:"RELGRAPH_BUILD_HOPS"`
	// NodeBudget caps how many rows one seed may pull into the graph.
	NodeBudget int `json:"node_budget" env:"RELGRAPH_BUILD_NODE_BUDGET"`
	// StrictIntegrity turns the first dangling foreign key into a fatal error.
	StrictIntegrity bool `json:"strict_integrity" env:"RELGRAPH_BUILD_STRICT_INTEGRITY"`
	// MaxViolations is the fatal threshold for accumulated integrity violations.
	MaxViolations int `json:"max_violations" env:"RELGRAPH_BUILD_MAX_VIOLATIONS"`
}

// ModelConfig controls the network shape.
type ModelConfig struct {
	EmbedDim int    `json:"embed_dim" env:"RELGRAPH_MODEL_EMBED_DIM"`
	Layers   int    `json:"layers" env:"RELGRAPH_MODEL_LAYERS"`
	Pool     string `json:"pool" env:"RELGRAPH_MODEL_POOL"` // sum, mean, max, attention
	Seed     int64  `json:"seed" env:"RELGRAPH_MODEL_SEED"`
}

type Config struct {
	Schema  SchemaConfig  `json:"schema"`
	Encoder EncoderConfig `json:"encoder"`
	Build   BuildConfig   `json:"build"`
	Model   ModelConfig   `json:"model"`
}

func DefaultConfig() *Config {
	return &Config{
		Schema: SchemaConfig{
			SampleRows:             10000,
			CategoricalRatio:       0.05,
			CategoricalMaxDistinct: 64,
		},
		Encoder: EncoderConfig{
			TextBuckets:  1024,
			VocabMinFreq: 1,
		},
		Build: BuildConfig{
			Hops:            2,
			NodeBudget:      512,
			StrictIntegrity: false,
			MaxViolations:   1000,
		},
		Model: ModelConfig{
			EmbedDim: 64,
			Layers:   2,
			Pool:     "mean",
			Seed:     1,
		},
	}
}

// LoadConfig reads a JSON config file (a missing file falls back to defaults),
// then applies RELGRAPH_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validPools = map[string]bool{
	"sum":       true,
	"mean":      true,
	"max":       true,
	"attention": true,
}

func (c *Config) Validate() error {
	if c.Schema.SampleRows <= 0 {
		return fmt.Errorf("config: sample_rows must be positive, got %d", c.Schema.SampleRows)
	}
	if c.Schema.CategoricalRatio <= 0 || c.Schema.CategoricalRatio > 1 {
		return fmt.Errorf("config: categorical_ratio must be in (0, 1], got %g", c.Schema.CategoricalRatio)
	}
	if c.Encoder.TextBuckets <= 0 {
		return fmt.Errorf("config: text_buckets must be positive, got %d", c.Encoder.TextBuckets)
	}
	if c.Build.Hops < 0 {
		return fmt.Errorf("config: hops must be non-negative, got %d", c.Build.Hops)
	}
	if c.Build.NodeBudget <= 0 {
		return fmt.Errorf("config: node_budget must be positive, got %d", c.Build.NodeBudget)
	}
	if c.Model.EmbedDim <= 0 {
		return fmt.Errorf("config: embed_dim must be positive, got %d", c.Model.EmbedDim)
	}
	if c.Model.Layers <= 0 {
		return fmt.Errorf("config: layers must be positive, got %d", c.Model.Layers)
	}
	if !validPools[c.Model.Pool] {
		return fmt.Errorf("config: unknown pool %q (want sum, mean, max or attention)", c.Model.Pool)
	}
	return nil
}
