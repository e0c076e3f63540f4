// Package config loads and validates the application configuration from a
// YAML file, environment variables (PEREVIR_ prefix) and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/perevir/internal/gate"
	"github.com/valpere/perevir/internal/observability"
)

// Config is the full application configuration tree.
type Config struct {
	Thresholds gate.Thresholds `mapstructure:"thresholds"`

	// MaxRegenerations is the regeneration budget per run. Total attempts
	// is MaxRegenerations + 1.
	MaxRegenerations int           `mapstructure:"max_regenerations"`
	CallRetries      int           `mapstructure:"call_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`

	TaskTimeout  time.Duration `mapstructure:"task_timeout"`
	JoinDeadline time.Duration `mapstructure:"join_deadline"`

	// Assessors lists the enabled assessors in priority order. The first
	// entry wins tie-breaks when several assessors share the lowest score.
	Assessors []AssessorConfig `mapstructure:"assessors"`

	Translator TranslatorConfig `mapstructure:"translator"`
	Verifier   VerifierConfig   `mapstructure:"verifier"`

	DBPath string               `mapstructure:"db_path"`
	Logger observability.Config `mapstructure:"logger"`
}

// AssessorConfig describes one assessor. Kind selects the implementation:
// "llm" roles run on Ollama, "language" is the deterministic detector check.
type AssessorConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	Role    string `mapstructure:"role"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type TranslatorConfig struct {
	Backend       string `mapstructure:"backend"`
	Model         string `mapstructure:"model"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	NumAlternates int    `mapstructure:"num_alternates"`
}

type VerifierConfig struct {
	Backend     string `mapstructure:"backend"`
	Model       string `mapstructure:"model"`
	BaseURL     string `mapstructure:"base_url"`
	Credentials string `mapstructure:"credentials"`
}

const defaultOllamaURL = "http://localhost:11434"

func setDefaults(v *viper.Viper) {
	defaults := gate.DefaultThresholds()
	v.SetDefault("thresholds.pass", defaults.Pass)
	v.SetDefault("thresholds.fail", defaults.Fail)
	v.SetDefault("thresholds.disagreement", defaults.Disagreement)

	v.SetDefault("max_regenerations", 1)
	v.SetDefault("call_retries", 2)
	v.SetDefault("retry_delay", "500ms")
	v.SetDefault("run_timeout", "10m")
	v.SetDefault("task_timeout", "60s")
	v.SetDefault("join_deadline", "90s")

	v.SetDefault("translator.backend", "ollama")
	v.SetDefault("translator.model", "gemma2:27b")
	v.SetDefault("translator.base_url", defaultOllamaURL)
	v.SetDefault("translator.num_alternates", 2)

	v.SetDefault("verifier.backend", "ollama")
	v.SetDefault("verifier.model", "llama3.1:8b")
	v.SetDefault("verifier.base_url", defaultOllamaURL)

	v.SetDefault("db_path", "./data/perevir.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 14)
}

// defaultAssessors is the assessor set used when the config file names none.
// Compliance comes first so safety findings win tie-breaks.
func defaultAssessors() []AssessorConfig {
	return []AssessorConfig{
		{Name: "compliance", Kind: "llm", Role: "compliance", Model: "qwen3:14b", BaseURL: defaultOllamaURL},
		{Name: "accuracy", Kind: "llm", Role: "accuracy", Model: "gemma2:27b", BaseURL: defaultOllamaURL},
		{Name: "quality", Kind: "llm", Role: "quality", Model: "mixtral:8x7b", BaseURL: defaultOllamaURL},
		{Name: "language", Kind: "language"},
	}
}

// Load reads the configuration from path (optional, "" skips the file) and
// the environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PEREVIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Assessors) == 0 {
		cfg.Assessors = defaultAssessors()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	t := c.Thresholds
	if t.Fail >= t.Pass {
		return fmt.Errorf("fail threshold %d must be below pass threshold %d", t.Fail, t.Pass)
	}
	if t.Disagreement <= 0 {
		return fmt.Errorf("disagreement threshold must be positive, got %d", t.Disagreement)
	}
	if c.MaxRegenerations < 0 {
		return fmt.Errorf("max_regenerations cannot be negative, got %d", c.MaxRegenerations)
	}

	seen := make(map[string]bool, len(c.Assessors))
	for _, a := range c.Assessors {
		if a.Name == "" {
			return fmt.Errorf("assessor with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate assessor name %q", a.Name)
		}
		seen[a.Name] = true

		switch a.Kind {
		case "llm":
			if a.Role == "" || a.Model == "" {
				return fmt.Errorf("llm assessor %q needs role and model", a.Name)
			}
		case "language":
		default:
			return fmt.Errorf("unknown assessor kind %q for %q", a.Kind, a.Name)
		}
	}

	switch c.Translator.Backend {
	case "ollama":
	case "openai":
		if c.Translator.APIKey == "" {
			return fmt.Errorf("openai translator needs an api_key")
		}
	default:
		return fmt.Errorf("unknown translator backend %q", c.Translator.Backend)
	}

	switch c.Verifier.Backend {
	case "ollama", "google":
	default:
		return fmt.Errorf("unknown verifier backend %q", c.Verifier.Backend)
	}

	return nil
}
