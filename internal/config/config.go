package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Fit      FitConfig      `yaml:"fit" mapstructure:"fit"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig binds the fix table's columns and declares its format.
type InputConfig struct {
	Format     string `yaml:"format" mapstructure:"format"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	TimeColumn string `yaml:"time_column" mapstructure:"time_column"`
	XColumn    string `yaml:"x_column" mapstructure:"x_column"`
	YColumn    string `yaml:"y_column" mapstructure:"y_column"`
	TimeFormat string `yaml:"time_format" mapstructure:"time_format"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding"`
	CRS        string `yaml:"crs" mapstructure:"crs"`
}

// AnalysisConfig tunes the home-range accumulation and the fit grid.
type AnalysisConfig struct {
	GridPoints int `yaml:"grid_points" mapstructure:"grid_points"`
	Workers    int `yaml:"workers" mapstructure:"workers"`
}

// FitConfig tunes the logistic fitter.
type FitConfig struct {
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
}

// OutputConfig configures report artifacts.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the results server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// outputFormats are the artifact kinds the report package can produce.
var outputFormats = map[string]bool{
	"html": true,
	"png":  true,
	"csv":  true,
	"xlsx": true,
	"shp":  true,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.format", "")
	v.SetDefault("input.id_column", "id")
	v.SetDefault("input.time_column", "timestamp")
	v.SetDefault("input.x_column", "x")
	v.SetDefault("input.y_column", "y")
	v.SetDefault("input.time_format", time.RFC3339)
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.crs", "")
	v.SetDefault("analysis.grid_points", 100)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("fit.max_iterations", 200)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.formats", []string{"html", "csv"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "settle.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the fields a command mode depends on and reports every
// problem at once. Modes: "analysis" (run, disperse), "store" (runs,
// migrate), "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "analysis":
		if c.Input.IDColumn == "" {
			problems = append(problems, "input.id_column is required")
		}
		if c.Input.TimeColumn == "" {
			problems = append(problems, "input.time_column is required")
		}
		if c.Input.XColumn == "" {
			problems = append(problems, "input.x_column is required")
		}
		if c.Input.YColumn == "" {
			problems = append(problems, "input.y_column is required")
		}
		if c.Analysis.GridPoints < 2 {
			problems = append(problems, "analysis.grid_points must be >= 2")
		}
		if c.Analysis.Workers < 1 || c.Analysis.Workers > 64 {
			problems = append(problems, "analysis.workers must be between 1 and 64")
		}
		if c.Fit.MaxIterations < 1 {
			problems = append(problems, "fit.max_iterations must be >= 1")
		}
		for _, f := range c.Output.Formats {
			if !outputFormats[strings.ToLower(f)] {
				problems = append(problems, "output.formats: unsupported format "+f)
			}
		}
	case "store":
		// Only the shared store checks apply.
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration:\n  %s", strings.Join(problems, "\n  "))
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
