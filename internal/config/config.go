// Package config loads element-memory settings from a YAML file, a .env file
// and the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ExtractConfig bounds element selection.
type ExtractConfig struct {
	MinWidth    float64 `yaml:"min_width"`
	MinHeight   float64 `yaml:"min_height"`
	MaxElements int     `yaml:"max_elements"`
}

// BrowserConfig configures the Chrome page source.
type BrowserConfig struct {
	RemoteURL      string        `yaml:"remote_url,omitempty"`
	Headless       bool          `yaml:"headless"`
	Stealth        bool          `yaml:"stealth"`
	Timeout        time.Duration `yaml:"timeout"`
	BlockResources []string      `yaml:"block_resources,omitempty"`
}

// ClassifierConfig selects and tunes the classifier.
type ClassifierConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// AnalysisConfig controls page analysis runs.
type AnalysisConfig struct {
	Concurrency int    `yaml:"concurrency"`
	SiteToken   string `yaml:"site_token,omitempty"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the in-memory representation of config.yaml.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Store      string           `yaml:"store"`
	Extract    ExtractConfig    `yaml:"extract"`
	Browser    BrowserConfig    `yaml:"browser"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Log        LogConfig        `yaml:"log"`
}

// Dir returns the absolute path to ~/.element-memory/.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".element-memory"), nil
}

// DefaultPath returns the absolute path to ~/.element-memory/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "~/.element-memory",
		Store:   "file",
		Extract: ExtractConfig{
			MinWidth:    50,
			MinHeight:   50,
			MaxElements: 30,
		},
		Browser: BrowserConfig{
			Headless: true,
			Stealth:  true,
			Timeout:  30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Provider:    "heuristic",
			MaxTokens:   400,
			Temperature: 0.3,
		},
		// An empty site token selects the site's default knowledge map.
		Analysis: AnalysisConfig{
			Concurrency: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	cfg.DataDir, err = ExpandPath(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save marshals cfg and writes it to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot load dotenv file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.DataDir, "ELEMENT_MEMORY_DATA_DIR")
	setString(&c.Store, "ELEMENT_MEMORY_STORE")
	setString(&c.Classifier.Provider, "LLM_PROVIDER")
	setString(&c.Classifier.Model, "LLM_MODEL")
	setString(&c.Classifier.BaseURL, "LLM_BASE_URL")
	setString(&c.Browser.RemoteURL, "BROWSER_REMOTE_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}

	if c.Classifier.APIKey == "" {
		switch c.Classifier.Provider {
		case "openai":
			c.Classifier.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			c.Classifier.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}

	if p, err := ExpandPath(c.DataDir); err == nil {
		c.DataDir = p
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown store %q (want file or sqlite)", c.Store)
	}
	switch c.Classifier.Provider {
	case "heuristic", "ollama":
	case "openai", "groq":
		if c.Classifier.APIKey == "" {
			return fmt.Errorf("%s provider requires an API key", c.Classifier.Provider)
		}
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}
	if c.Extract.MinWidth <= 0 || c.Extract.MinHeight <= 0 || c.Extract.MaxElements <= 0 {
		return errors.New("extract limits must be positive")
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("analysis concurrency must be at least 1, got %d", c.Analysis.Concurrency)
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	return nil
}
