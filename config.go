package distill

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/distill/extract"
	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/logging"
	"github.com/brunobiangulo/distill/parser"
	"github.com/brunobiangulo/distill/rewrite"
)

// Config holds all configuration for the engine.
type Config struct {
	// DBPath is the full path to the run history database. If empty it
	// is <DBName>.db in the storage directory.
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName defaults to "distill".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir is "home" (default, ~/.distill/) or "local" (working
	// directory).
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	History HistoryConfig  `json:"history" yaml:"history"`
	Extract extract.Config `json:"extract" yaml:"extract"`
	Rewrite rewrite.Config `json:"rewrite" yaml:"rewrite"`
	Acquire parser.Config  `json:"acquire" yaml:"acquire"`

	// Vision is an optional model that transcribes PDFs nothing else
	// could read. An empty provider disables it.
	Vision llm.Config `json:"vision" yaml:"vision"`

	// Default summary bounds in words.
	MaxLength int `json:"max_length" yaml:"max_length"`
	MinLength int `json:"min_length" yaml:"min_length"`

	Log     logging.Config `json:"log" yaml:"log"`
	Metrics bool           `json:"metrics" yaml:"metrics"` // Prometheus recorder
}

// HistoryConfig controls the run audit log.
type HistoryConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Retention time.Duration `json:"retention" yaml:"retention"` // 0 keeps everything
}

// DefaultConfig returns a Config for a local Ollama model with OCR enabled
// and history stored in ~/.distill/distill.db.
func DefaultConfig() Config {
	return Config{
		DBName:     "distill",
		StorageDir: "home",
		History:    HistoryConfig{Enabled: true, Retention: 30 * 24 * time.Hour},
		Extract:    extract.DefaultConfig(),
		Rewrite:    rewrite.DefaultConfig(),
		Acquire:    parser.DefaultConfig(),
		MaxLength:  DefaultMaxLength,
		MinLength:  DefaultMinLength,
		Log:        logging.Config{Format: "json", Level: "info"},
		Metrics:    true,
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from DISTILL_* variables, then fills missing
// API keys from the providers' usual variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"DISTILL_DB_PATH":         &c.DBPath,
		"DISTILL_STORAGE_DIR":     &c.StorageDir,
		"DISTILL_LLM_PROVIDER":    &c.Rewrite.LLM.Provider,
		"DISTILL_LLM_MODEL":       &c.Rewrite.LLM.Model,
		"DISTILL_LLM_BASE_URL":    &c.Rewrite.LLM.BaseURL,
		"DISTILL_LLM_API_KEY":     &c.Rewrite.LLM.APIKey,
		"DISTILL_VISION_PROVIDER": &c.Vision.Provider,
		"DISTILL_VISION_MODEL":    &c.Vision.Model,
		"DISTILL_VISION_BASE_URL": &c.Vision.BaseURL,
		"DISTILL_VISION_API_KEY":  &c.Vision.APIKey,
		"DISTILL_OCR_LANG":        &c.Acquire.OCR.Lang,
		"DISTILL_REMOTE_API_KEY":  &c.Acquire.Remote.APIKey,
		"DISTILL_LOG_FORMAT":      &c.Log.Format,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DISTILL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	ints := map[string]*int{
		"DISTILL_SENTENCES":  &c.Extract.SentenceCount,
		"DISTILL_MAX_LENGTH": &c.MaxLength,
		"DISTILL_MIN_LENGTH": &c.MinLength,
		"DISTILL_OCR_PAGES":  &c.Acquire.OCR.MaxPages,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"DISTILL_HISTORY":     &c.History.Enabled,
		"DISTILL_OCR_ENABLED": &c.Acquire.OCR.Enabled,
		"DISTILL_METRICS":     &c.Metrics,
	}
	for name, dst := range bools {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, name, v)
			}
			*dst = b
		}
	}

	if c.Rewrite.LLM.APIKey == "" {
		c.Rewrite.LLM.APIKey = providerKey(c.Rewrite.LLM.Provider)
	}
	if c.Vision.Provider != "" && c.Vision.APIKey == "" {
		c.Vision.APIKey = providerKey(c.Vision.Provider)
	}
	return nil
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "xai":
		return os.Getenv("XAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// Validate checks value ranges. A zero sentence count, tolerance or
// iteration cap takes its default; the similarity threshold and damping
// factor are used as given.
func (c *Config) Validate() error {
	e := c.Extract
	switch {
	case e.SentenceCount < 0:
		return fmt.Errorf("%w: extract.sentence_count must not be negative", ErrInvalidConfig)
	case e.SimilarityThreshold < 0 || e.SimilarityThreshold > 1:
		return fmt.Errorf("%w: extract.similarity_threshold must be in [0, 1]", ErrInvalidConfig)
	case e.DampingFactor <= 0 || e.DampingFactor >= 1:
		return fmt.Errorf("%w: extract.damping_factor must be in (0, 1)", ErrInvalidConfig)
	case e.ConvergenceTol < 0:
		return fmt.Errorf("%w: extract.convergence_threshold must not be negative", ErrInvalidConfig)
	case e.MaxIterations < 0:
		return fmt.Errorf("%w: extract.max_iterations must not be negative", ErrInvalidConfig)
	case e.Concurrency < 0:
		return fmt.Errorf("%w: extract.concurrency must not be negative", ErrInvalidConfig)
	case c.Rewrite.LLM.Provider == "":
		return fmt.Errorf("%w: rewrite.llm.provider is required", ErrInvalidConfig)
	case c.Rewrite.RequestsPerMinute < 0:
		return fmt.Errorf("%w: rewrite.requests_per_minute must not be negative", ErrInvalidConfig)
	case c.Acquire.OCR.MaxPages < 0:
		return fmt.Errorf("%w: acquire.ocr.max_pages must not be negative", ErrInvalidConfig)
	}
	if err := checkLength(c.MaxLength, c.MinLength); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// resolveDBPath computes the history database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "distill"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".distill", name+".db")
	}
}
