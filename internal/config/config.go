// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Evidence  EvidenceConfig  `yaml:"evidence" mapstructure:"evidence"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Semantic  SemanticConfig  `yaml:"semantic" mapstructure:"semantic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegistryConfig configures the synonym registry source. When NotionToken and
// NotionDB are set, the registry loads from Notion; otherwise from YAMLPath,
// falling back to the bundled fixture.
type RegistryConfig struct {
	YAMLPath    string `yaml:"yaml_path" mapstructure:"yaml_path"`
	NotionToken string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionDB    string `yaml:"notion_db" mapstructure:"notion_db"`
}

// EvidenceConfig configures evidence ingestion.
type EvidenceConfig struct {
	HTTPTimeoutSecs int     `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
	HTTPMaxRetries  int     `yaml:"http_max_retries" mapstructure:"http_max_retries"`
	HTTPRateLimit   float64 `yaml:"http_rate_limit" mapstructure:"http_rate_limit"`
	FTPTimeoutSecs  int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// MatchConfig configures candidate scoring and assignment.
type MatchConfig struct {
	FuzzyThreshold    float64  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	TieEpsilon        float64  `yaml:"tie_epsilon" mapstructure:"tie_epsilon"`
	TieBreakOrder     []string `yaml:"tie_break_order" mapstructure:"tie_break_order"`
	SemanticWeight    float64  `yaml:"semantic_weight" mapstructure:"semantic_weight"`
	AllowAggregation  bool     `yaml:"allow_aggregation" mapstructure:"allow_aggregation"`
	AutoDetectPeriods bool     `yaml:"auto_detect_periods" mapstructure:"auto_detect_periods"`
	StatementType     string   `yaml:"statement_type" mapstructure:"statement_type"`
}

// ReconcileConfig configures identity checks.
type ReconcileConfig struct {
	MaterialityAbsolute float64 `yaml:"materiality_absolute" mapstructure:"materiality_absolute"`
	MaterialityRelative float64 `yaml:"materiality_relative" mapstructure:"materiality_relative"`
	GapSearchMaxFacts   int     `yaml:"gap_search_max_facts" mapstructure:"gap_search_max_facts"`
	GapSearchMaxSubset  int     `yaml:"gap_search_max_subset" mapstructure:"gap_search_max_subset"`
}

// SemanticConfig configures the optional external compatibility scorer.
// Disabled unless Key is set and Match.SemanticWeight > 0.
type SemanticConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxPairs  int    `yaml:"max_pairs" mapstructure:"max_pairs"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the audit API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// knownTieBreaks are the recognized tie-break rule names, applied in the
// configured order.
var knownTieBreaks = map[string]bool{
	"restated":   true,
	"unit_scale": true,
	"confidence": true,
	"doc_date":   true,
	"source_ref": true,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "statement-mapper.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("evidence.http_timeout_secs", 30)
	v.SetDefault("evidence.http_max_retries", 3)
	v.SetDefault("evidence.http_rate_limit", 5.0)
	v.SetDefault("evidence.ftp_timeout_secs", 30)
	v.SetDefault("match.fuzzy_threshold", 0.72)
	v.SetDefault("match.tie_epsilon", 0.02)
	v.SetDefault("match.tie_break_order", []string{"restated", "unit_scale", "confidence", "doc_date", "source_ref"})
	v.SetDefault("match.semantic_weight", 0.0)
	v.SetDefault("match.allow_aggregation", false)
	v.SetDefault("match.auto_detect_periods", true)
	v.SetDefault("match.statement_type", "")
	v.SetDefault("reconcile.materiality_absolute", 1000.0)
	v.SetDefault("reconcile.materiality_relative", 0.01)
	v.SetDefault("reconcile.gap_search_max_facts", 20)
	v.SetDefault("reconcile.gap_search_max_subset", 3)
	v.SetDefault("semantic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("semantic.max_pairs", 200)
	v.SetDefault("semantic.rate_limit", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the deterministic core cannot honor.
func (c *Config) Validate() error {
	for _, tb := range c.Match.TieBreakOrder {
		if !knownTieBreaks[tb] {
			return eris.Errorf("config: unknown tie-break rule %q", tb)
		}
	}
	if c.Match.FuzzyThreshold < 0 || c.Match.FuzzyThreshold >= 1 {
		return eris.Errorf("config: fuzzy_threshold %v out of [0,1)", c.Match.FuzzyThreshold)
	}
	if c.Match.SemanticWeight < 0 || c.Match.SemanticWeight > 1 {
		return eris.Errorf("config: semantic_weight %v out of [0,1]", c.Match.SemanticWeight)
	}
	if c.Reconcile.MaterialityAbsolute < 0 || c.Reconcile.MaterialityRelative < 0 {
		return eris.New("config: materiality thresholds must be non-negative")
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
