// Package config provides configuration loading and management for
// semlink.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semlink/batch"
	"gopkg.in/yaml.v3"
)

// Config represents the complete semlink configuration.
type Config struct {
	Generation     GenerationConfig  `yaml:"generation"`
	KnowledgeBases KBConfig          `yaml:"knowledge_bases"`
	Linking        LinkingConfig     `yaml:"linking"`
	Batch          batch.Config      `yaml:"batch"`
	Watch          batch.WatchConfig `yaml:"watch"`
	NATS           NATSConfig        `yaml:"nats"`
}

// GenerationConfig configures the text generation endpoint.
type GenerationConfig struct {
	// Provider selects the wire adapter (gemini, openai, anthropic).
	Provider string `yaml:"provider"`
	// Endpoint is the API base URL (empty = provider default).
	Endpoint string `yaml:"endpoint"`
	// Model is the model identifier.
	Model string `yaml:"model"`
	// APIKey is the credential (empty = provider environment variable).
	APIKey string `yaml:"api_key"`
	// Timeout is the maximum time to wait for a generation response.
	// Parsed with time.ParseDuration.
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the generation timeout as a duration.
func (c *GenerationConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// KBConfig configures the knowledge-base sources.
type KBConfig struct {
	// DBpediaEndpoint is the SPARQL endpoint (empty = public DBpedia).
	DBpediaEndpoint string `yaml:"dbpedia_endpoint"`
	// WikidataEndpoint is the action API endpoint (empty = public Wikidata).
	WikidataEndpoint string `yaml:"wikidata_endpoint"`
	// Enabled lists the sources to register (default: dbpedia only).
	Enabled []string `yaml:"enabled"`
}

// LinkingConfig configures the linking engine.
type LinkingConfig struct {
	// Limit caps the ranked candidate list per mention.
	Limit int `yaml:"limit"`
}

// NATSConfig configures optional result publication.
type NATSConfig struct {
	// URL is the NATS server URL (empty = publication disabled).
	URL string `yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "30s",
		},
		KnowledgeBases: KBConfig{
			Enabled: []string{"dbpedia"},
		},
		Linking: LinkingConfig{
			Limit: 5,
		},
		Batch: batch.DefaultConfig(),
		Watch: batch.DefaultWatchConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Generation.Provider == "" {
		return fmt.Errorf("generation.provider is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Linking.Limit <= 0 {
		return fmt.Errorf("linking.limit must be positive")
	}
	if len(c.KnowledgeBases.Enabled) == 0 {
		return fmt.Errorf("knowledge_bases.enabled must name at least one source")
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, layered over
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Generation.Provider != "" {
		c.Generation.Provider = other.Generation.Provider
	}
	if other.Generation.Endpoint != "" {
		c.Generation.Endpoint = other.Generation.Endpoint
	}
	if other.Generation.Model != "" {
		c.Generation.Model = other.Generation.Model
	}
	if other.Generation.APIKey != "" {
		c.Generation.APIKey = other.Generation.APIKey
	}
	if other.Generation.Timeout != "" {
		c.Generation.Timeout = other.Generation.Timeout
	}

	if other.KnowledgeBases.DBpediaEndpoint != "" {
		c.KnowledgeBases.DBpediaEndpoint = other.KnowledgeBases.DBpediaEndpoint
	}
	if other.KnowledgeBases.WikidataEndpoint != "" {
		c.KnowledgeBases.WikidataEndpoint = other.KnowledgeBases.WikidataEndpoint
	}
	if len(other.KnowledgeBases.Enabled) > 0 {
		c.KnowledgeBases.Enabled = other.KnowledgeBases.Enabled
	}

	if other.Linking.Limit > 0 {
		c.Linking.Limit = other.Linking.Limit
	}

	if other.Batch.CanonicalChunkSize > 0 {
		c.Batch.CanonicalChunkSize = other.Batch.CanonicalChunkSize
	}
	if other.Batch.ContextChunkSize > 0 {
		c.Batch.ContextChunkSize = other.Batch.ContextChunkSize
	}
	if other.Batch.URIChunkSize > 0 {
		c.Batch.URIChunkSize = other.Batch.URIChunkSize
	}

	if other.Watch.Dir != "" {
		c.Watch.Dir = other.Watch.Dir
	}
	if other.Watch.DebounceDelay != "" {
		c.Watch.DebounceDelay = other.Watch.DebounceDelay
	}
	if len(other.Watch.FileExtensions) > 0 {
		c.Watch.FileExtensions = other.Watch.FileExtensions
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
}
