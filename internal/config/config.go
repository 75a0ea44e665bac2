// Package config loads mechbank settings.
//
// Settings come from an optional YAML file (mechbank.yaml in the working
// directory, or the --config path) overlaid by MECHBANK_* environment
// variables, e.g. MECHBANK_DATABASE_PATH for database.path. Process-wide
// feature flags are parsed separately by ParseFlags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "MECHBANK"

// Config is the full settings tree.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Versioning VersioningConfig `mapstructure:"versioning"`
	Schema     SchemaConfig     `mapstructure:"schema"`
	Query      QueryConfig      `mapstructure:"query"`
	Import     ImportConfig     `mapstructure:"import"`
	Log        LogConfig        `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// VersioningConfig tunes the MAJOR/MINOR classifier.
type VersioningConfig struct {
	MajorThreshold float64 `mapstructure:"major_threshold"`
	ZeroEpsilon    float64 `mapstructure:"zero_epsilon"`
}

type SchemaConfig struct {
	ExtraCategories []string `mapstructure:"extra_categories"`
}

type QueryConfig struct {
	DefaultLimit int                `mapstructure:"default_limit"`
	MaxLimit     int                `mapstructure:"max_limit"`
	GradeWeights map[string]float64 `mapstructure:"grade_weights"`
}

type ImportConfig struct {
	Workers int `mapstructure:"workers"`
}

type LogConfig struct {
	Format string `mapstructure:"format"` // text or json
	Level  string `mapstructure:"level"`  // debug, info, warn, error
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:   DatabaseConfig{Path: "mechbank.db"},
		Versioning: VersioningConfig{MajorThreshold: 0.20, ZeroEpsilon: 1e-9},
		Schema:     SchemaConfig{ExtraCategories: []string{}},
		Query: QueryConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
			GradeWeights: map[string]float64{"A": 1.0, "B": 0.6, "C": 0.3},
		},
		Import: ImportConfig{Workers: 4},
		Log:    LogConfig{Format: "text", Level: "info"},
	}
}

// Load reads settings. An empty path looks for an optional mechbank.yaml in
// the working directory; a non-empty path must exist.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("mechbank")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// Viper folds map keys to lower case.
	weights := make(map[string]float64, len(cfg.Query.GradeWeights))
	for g, w := range cfg.Query.GradeWeights {
		weights[strings.ToUpper(g)] = w
	}
	cfg.Query.GradeWeights = weights
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("versioning.major_threshold", d.Versioning.MajorThreshold)
	v.SetDefault("versioning.zero_epsilon", d.Versioning.ZeroEpsilon)
	v.SetDefault("schema.extra_categories", d.Schema.ExtraCategories)
	v.SetDefault("query.default_limit", d.Query.DefaultLimit)
	v.SetDefault("query.max_limit", d.Query.MaxLimit)
	v.SetDefault("query.grade_weights", d.Query.GradeWeights)
	v.SetDefault("import.workers", d.Import.Workers)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level)
}

// Validate rejects settings the bank cannot run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path is empty")
	}
	if c.Versioning.MajorThreshold <= 0 {
		problems = append(problems, "versioning.major_threshold must be > 0")
	}
	if c.Versioning.ZeroEpsilon <= 0 {
		problems = append(problems, "versioning.zero_epsilon must be > 0")
	}
	if c.Query.DefaultLimit <= 0 || c.Query.MaxLimit <= 0 {
		problems = append(problems, "query limits must be > 0")
	} else if c.Query.DefaultLimit > c.Query.MaxLimit {
		problems = append(problems, "query.default_limit exceeds query.max_limit")
	}
	for g, w := range c.Query.GradeWeights {
		switch strings.ToUpper(g) {
		case "A", "B", "C":
		default:
			problems = append(problems, fmt.Sprintf("query.grade_weights: unknown grade %q", g))
		}
		if w < 0 {
			problems = append(problems, fmt.Sprintf("query.grade_weights.%s must be >= 0", g))
		}
	}
	if c.Import.Workers <= 0 {
		problems = append(problems, "import.workers must be > 0")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not text or json", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q is not debug, info, warn or error", s)
	}
	return level, nil
}
