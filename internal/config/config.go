// Package config loads and manages parley configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, PARLEY_PROVIDER, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/parley/config.yaml
// 4. Embedded defaults (defaults.yaml)
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Model is one entry of the model catalog.
type Model struct {
	Name             string  `yaml:"name"`
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Persona is one entry of the persona catalog.
type Persona struct {
	Role     string `yaml:"role"`
	Prompt   string `yaml:"prompt"`
	Greeting string `yaml:"greeting"`
}

// ThresholdConfig holds the token budgets of a session.
type ThresholdConfig struct {
	// Throttle: window usage above which the context is compacted.
	Throttle int `yaml:"throttle"`
	// Termination: cumulative usage above which the session ends.
	Termination int `yaml:"termination"`
}

// CompactionConfig controls the summarization request.
type CompactionConfig struct {
	ShrinkMinPercent int `yaml:"shrink_min_percent"`
	ShrinkMaxPercent int `yaml:"shrink_max_percent"`
	// Instruction overrides the summarization prompt; {min} and {max}
	// are replaced with the shrink range.
	Instruction string `yaml:"instruction"`
}

// ExportConfig controls where transcripts go.
type ExportConfig struct {
	Dir       string `yaml:"dir"`
	Overwrite bool   `yaml:"overwrite"`
}

// LogConfig controls the structured event log.
type LogConfig struct {
	Dir   string `yaml:"dir"` // empty = PARLEY_LOG_DIR, ~/.local/share/parley/logs, $TMPDIR/parley/logs
	Level string `yaml:"level"`
}

// Config is the complete configuration structure for parley.
type Config struct {
	// Provider is the active provider name (e.g. "openai", "anthropic", "deepseek").
	Provider string `yaml:"provider"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	Models     []Model          `yaml:"models"`
	Personas   []Persona        `yaml:"personas"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	Compaction CompactionConfig `yaml:"compaction"`
	Export     ExportConfig     `yaml:"export"`
	Log        LogConfig        `yaml:"log"`

	// QuitToken ends the session when typed on its own.
	QuitToken string `yaml:"quit_token"`
}

// KnownProviderBaseURLs maps well-known provider names to their base URLs.
var KnownProviderBaseURLs map[string]string

func init() {
	var defs struct {
		KnownProviders map[string]string `yaml:"known_providers"`
	}
	if err := yaml.Unmarshal(defaultsYAML, &defs); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	KnownProviderBaseURLs = defs.KnownProviders
}

// DefaultConfig returns the embedded default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	cfg.Providers = make(map[string]*ProviderConfig)
	return cfg
}

// DefaultPath returns ~/.config/parley/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "parley", "config.yaml"), nil
}

// Load reads the config file over the defaults and applies environment
// variable overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if p, err := DefaultPath(); err == nil {
			configPath = p
		}
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// BaseURL returns the configured base URL of the named provider, falling
// back to the well-known URL for it.
func (c *Config) BaseURL(name string) string {
	if u := c.GetProviderConfig(name).BaseURL; u != "" {
		return u
	}
	return KnownProviderBaseURLs[name]
}

// Model looks a model up in the catalog by name.
func (c *Config) Model(name string) (Model, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Validate reports every problem that would prevent a session from running.
func (c *Config) Validate() error {
	var errs []error
	if c.Provider == "" {
		errs = append(errs, errors.New("provider is empty"))
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("models: catalog is empty"))
	}
	for i, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("models[%d]: name is empty", i))
		}
		if m.InputPerMillion < 0 || m.OutputPerMillion < 0 {
			errs = append(errs, fmt.Errorf("models[%d]: negative price", i))
		}
	}
	if len(c.Personas) == 0 {
		errs = append(errs, errors.New("personas: catalog is empty"))
	}
	for i, p := range c.Personas {
		if p.Role == "" {
			errs = append(errs, fmt.Errorf("personas[%d]: role is empty", i))
		}
	}
	if c.Thresholds.Throttle <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.throttle must be positive, got %d", c.Thresholds.Throttle))
	}
	if c.Thresholds.Termination <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.termination must be positive, got %d", c.Thresholds.Termination))
	}
	lo, hi := c.Compaction.ShrinkMinPercent, c.Compaction.ShrinkMaxPercent
	if lo <= 0 || hi >= 100 || lo > hi {
		errs = append(errs, fmt.Errorf("compaction: shrink range %d-%d%% must satisfy 0 < min <= max < 100", lo, hi))
	}
	return errors.Join(errs...)
}

// SaveProviderToFile persists a single provider's config and the active
// provider name into path, preserving all other user settings.
func SaveProviderToFile(path, providerName string, pc ProviderConfig) error {
	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &raw) // start fresh if corrupt
	}

	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}
	entry := map[string]any{"api_key": pc.APIKey}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	providers[providerName] = entry
	raw["providers"] = providers
	raw["provider"] = providerName

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	// Provider selection first so the generic overrides land on it.
	if v := os.Getenv("PARLEY_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	provider := func(name string) *ProviderConfig {
		if cfg.Providers[name] == nil {
			cfg.Providers[name] = &ProviderConfig{}
		}
		return cfg.Providers[name]
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		provider("openai").APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		provider("anthropic").APIKey = v
	}
	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		provider(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		provider(cfg.Provider).BaseURL = v
	}

	for env, dst := range map[string]*int{
		"PARLEY_THROTTLE":    &cfg.Thresholds.Throttle,
		"PARLEY_TERMINATION": &cfg.Thresholds.Termination,
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = n
	}

	if v := os.Getenv("PARLEY_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	return nil
}
