// Package config loads policyqa settings from defaults, an optional YAML file,
// a .env file and POLICYQA_* environment variables.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/loader"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
)

// EnvPrefix is prepended to every environment override, e.g.
// POLICYQA_REPORTER_OUTPUT_DIR.
const EnvPrefix = "POLICYQA"

// Config is the full application configuration.
type Config struct {
	Files        FilesConfig      `mapstructure:"files" yaml:"files"`
	PrimaryKeys  []string         `mapstructure:"primary_keys" yaml:"primary_keys"`
	Loader       LoaderConfig     `mapstructure:"loader" yaml:"loader"`
	Outlier      OutlierConfig    `mapstructure:"outlier" yaml:"outlier"`
	Comparison   ComparisonConfig `mapstructure:"comparison" yaml:"comparison"`
	Validator    rules.Config     `mapstructure:"validator" yaml:"validator"`
	Reporter     ReporterConfig   `mapstructure:"reporter" yaml:"reporter"`
	LLMValidator LLMConfig        `mapstructure:"llm_validator" yaml:"llm_validator"`
	Log          LogConfig        `mapstructure:"log" yaml:"log"`

	// Source is the config file that was read, if any.
	Source string `mapstructure:"-" yaml:"-"`
}

// FilesConfig names the two extracts to reconcile.
type FilesConfig struct {
	CurrentYear  string `mapstructure:"current_year" yaml:"current_year"`
	PreviousYear string `mapstructure:"previous_year" yaml:"previous_year"`
}

// LoaderConfig mirrors loader.Options.
type LoaderConfig struct {
	Delimiter   string   `mapstructure:"delimiter" yaml:"delimiter"`
	Encoding    string   `mapstructure:"encoding" yaml:"encoding"`
	SheetName   string   `mapstructure:"sheet_name" yaml:"sheet_name"`
	SheetIndex  int      `mapstructure:"sheet_index" yaml:"sheet_index"`
	MaxRows     int      `mapstructure:"max_rows" yaml:"max_rows"`
	DateLayouts []string `mapstructure:"date_layouts" yaml:"date_layouts"`
	NullValues  []string `mapstructure:"null_values" yaml:"null_values"`
}

// OutlierConfig mirrors analysis.Config.
type OutlierConfig struct {
	PercentileThreshold   float64           `mapstructure:"percentile_threshold" yaml:"percentile_threshold"`
	RareCategoryThreshold float64           `mapstructure:"rare_category_threshold" yaml:"rare_category_threshold"`
	Interpolation         string            `mapstructure:"interpolation" yaml:"interpolation"`
	ColumnTypes           map[string]string `mapstructure:"column_types" yaml:"column_types,omitempty"`
}

type ComparisonConfig struct {
	Suffix string `mapstructure:"suffix" yaml:"suffix"`
}

// ReporterConfig controls report output.
type ReporterConfig struct {
	OutputDir     string   `mapstructure:"output_dir" yaml:"output_dir"`
	CompanyName   string   `mapstructure:"company_name" yaml:"company_name"`
	ReportFormats []string `mapstructure:"report_formats" yaml:"report_formats"`
}

// LLMConfig controls the optional model-based row check.
type LLMConfig struct {
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
	Provider        string  `mapstructure:"provider" yaml:"provider"`
	OllamaURL       string  `mapstructure:"ollama_url" yaml:"ollama_url"`
	ModelName       string  `mapstructure:"model_name" yaml:"model_name"`
	BatchSize       int     `mapstructure:"batch_size" yaml:"batch_size"`
	DelayMs         int     `mapstructure:"delay_ms" yaml:"delay_ms"`
	TimeoutSec      int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	OutputPath      string  `mapstructure:"output_path" yaml:"output_path"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxPromptTokens int     `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("files.current_year", "")
	v.SetDefault("files.previous_year", "")
	v.SetDefault("primary_keys", []string{})
	v.SetDefault("loader.delimiter", "")
	v.SetDefault("loader.encoding", "utf-8")
	v.SetDefault("loader.sheet_name", "")
	v.SetDefault("loader.sheet_index", 0)
	v.SetDefault("loader.max_rows", 0)
	v.SetDefault("loader.date_layouts", loader.DefaultDateLayouts)
	v.SetDefault("loader.null_values", []string{})
	v.SetDefault("outlier.percentile_threshold", 10.0)
	v.SetDefault("outlier.rare_category_threshold", 1.0)
	v.SetDefault("outlier.interpolation", "nearest")
	v.SetDefault("outlier.column_types", map[string]string{})
	v.SetDefault("comparison.suffix", "_prev")
	v.SetDefault("validator.min_premium", 0.0)
	v.SetDefault("validator.gender_values", []string{})
	v.SetDefault("validator.custom_rules", []rules.RuleConfig{})
	v.SetDefault("reporter.output_dir", "reports")
	v.SetDefault("reporter.company_name", "company")
	v.SetDefault("reporter.report_formats", []string{"csv", "json"})
	v.SetDefault("llm_validator.enabled", false)
	v.SetDefault("llm_validator.provider", "ollama")
	v.SetDefault("llm_validator.ollama_url", "http://localhost:11434")
	v.SetDefault("llm_validator.model_name", "llama3.1")
	v.SetDefault("llm_validator.batch_size", 100)
	v.SetDefault("llm_validator.delay_ms", 100)
	v.SetDefault("llm_validator.timeout_sec", 30)
	v.SetDefault("llm_validator.output_path", filepath.Join("reports", "llm_validation_results.csv"))
	v.SetDefault("llm_validator.temperature", 0.0)
	v.SetDefault("llm_validator.max_prompt_tokens", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration. Precedence: env > config file > defaults.
// When cfgFile is empty, policyqa.yaml is looked up in the working directory
// and then in ~/.policyqa. A .env file in the working directory is loaded
// into the environment first; variables already set win.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := newViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("policyqa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".policyqa"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Source = v.ConfigFileUsed()
	return &cfg, nil
}

// DefaultPath is where Save writes when no file is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "config: resolve home dir")
	}
	return filepath.Join(home, ".policyqa", "policyqa.yaml"), nil
}

// Save writes c as YAML to path, or to DefaultPath when path is empty.
func Save(c *Config, path string) (string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrap(err, "config: mkdir config dir")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", eris.Wrap(err, "config: marshal yaml")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", eris.Wrap(err, "config: write config")
	}
	return path, nil
}

// Set returns a copy of c with the dotted key set to value. Values are
// decoded with the same weak typing as file and env values, so "a,b" fills
// a list and "true" a bool.
func Set(c *Config, key, value string) (*Config, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal yaml")
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
		return nil, eris.Wrap(err, "config: merge current values")
	}
	if !v.IsSet(key) && !strings.HasPrefix(key, "outlier.column_types.") {
		return nil, eris.Errorf("config: unknown key %q", key)
	}
	if key == "validator.custom_rules" {
		return nil, eris.New("config: custom_rules must be edited in the config file")
	}
	v.Set(key, value)
	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return nil, eris.Wrapf(err, "config: invalid value for %s", key)
	}
	out.Source = c.Source
	return &out, nil
}

// Validate checks the settings a mode needs. Modes: run, compare, outliers,
// validate, llm.
func (c *Config) Validate(mode string) error {
	var problems []string
	needKeys := mode == "run" || mode == "compare" || mode == "llm"
	if needKeys && len(c.PrimaryKeys) == 0 {
		problems = append(problems, "primary_keys is required")
	}
	if mode == "run" {
		if c.Files.CurrentYear == "" {
			problems = append(problems, "files.current_year is required")
		}
		if c.Files.PreviousYear == "" {
			problems = append(problems, "files.previous_year is required")
		}
	}
	if c.Outlier.PercentileThreshold < 0 || c.Outlier.PercentileThreshold >= 50 {
		problems = append(problems, "outlier.percentile_threshold must be in [0, 50)")
	}
	if c.Outlier.RareCategoryThreshold < 0 || c.Outlier.RareCategoryThreshold > 100 {
		problems = append(problems, "outlier.rare_category_threshold must be in [0, 100]")
	}
	for _, f := range c.Reporter.ReportFormats {
		switch strings.ToLower(f) {
		case "csv", "json", "sqlite":
		default:
			problems = append(problems, "reporter.report_formats: unsupported format "+f)
		}
	}
	if mode == "llm" || (mode == "run" && c.LLMValidator.Enabled) {
		if c.LLMValidator.ModelName == "" {
			problems = append(problems, "llm_validator.model_name is required")
		}
		if c.LLMValidator.BatchSize < 0 {
			problems = append(problems, "llm_validator.batch_size must not be negative")
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LoaderOptions converts the loader section.
func (c *Config) LoaderOptions() loader.Options {
	opt := loader.DefaultOptions()
	switch d := c.Loader.Delimiter; strings.ToLower(d) {
	case "":
	case `\t`, "tab":
		opt.Delimiter = '\t'
	default:
		opt.Delimiter = []rune(d)[0]
	}
	if c.Loader.Encoding != "" {
		opt.Encoding = c.Loader.Encoding
	}
	if len(c.Loader.DateLayouts) > 0 {
		opt.DateLayouts = c.Loader.DateLayouts
	}
	opt.SheetName = c.Loader.SheetName
	opt.SheetIndex = c.Loader.SheetIndex
	opt.MaxRows = c.Loader.MaxRows
	opt.NullValues = c.Loader.NullValues
	return opt
}

// OutlierEngineConfig converts the outlier section.
func (c *Config) OutlierEngineConfig() analysis.Config {
	return analysis.Config{
		PercentileThreshold:   c.Outlier.PercentileThreshold,
		RareCategoryThreshold: c.Outlier.RareCategoryThreshold,
		Interpolation:         c.Outlier.Interpolation,
		ColumnTypes:           c.Outlier.ColumnTypes,
	}
}

func (l LLMConfig) Delay() time.Duration { return time.Duration(l.DelayMs) * time.Millisecond }

func (l LLMConfig) Timeout() time.Duration { return time.Duration(l.TimeoutSec) * time.Second }

// InitLogger initializes the global zap logger. Format "console" selects the
// development encoder; anything else logs JSON.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
