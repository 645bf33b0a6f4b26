package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "id", cfg.Input.IDColumn)
	assert.Equal(t, "timestamp", cfg.Input.TimeColumn)
	assert.Equal(t, "x", cfg.Input.XColumn)
	assert.Equal(t, "y", cfg.Input.YColumn)
	assert.Equal(t, time.RFC3339, cfg.Input.TimeFormat)
	assert.Equal(t, "utf-8", cfg.Input.Encoding)
	assert.Empty(t, cfg.Input.Format)
	assert.Empty(t, cfg.Input.CRS)
	assert.Equal(t, 100, cfg.Analysis.GridPoints)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 200, cfg.Fit.MaxIterations)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, []string{"html", "csv"}, cfg.Output.Formats)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "settle.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
input:
  id_column: animal_id
  time_column: acq_time
  crs: EPSG:32633
analysis:
  grid_points: 150
store:
  driver: postgres
  database_url: postgres://localhost/settle
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "animal_id", cfg.Input.IDColumn)
	assert.Equal(t, "acq_time", cfg.Input.TimeColumn)
	assert.Equal(t, "EPSG:32633", cfg.Input.CRS)
	assert.Equal(t, 150, cfg.Analysis.GridPoints)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/settle", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "x", cfg.Input.XColumn)
	assert.Equal(t, 4, cfg.Analysis.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SETTLE_STORE_DRIVER", "sqlite")
	t.Setenv("SETTLE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SETTLE_SERVER_PORT", "3000")
	t.Setenv("SETTLE_INPUT_CRS", "EPSG:3857")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "EPSG:3857", cfg.Input.CRS)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Input: InputConfig{
			IDColumn:   "id",
			TimeColumn: "timestamp",
			XColumn:    "x",
			YColumn:    "y",
		},
		Analysis: AnalysisConfig{GridPoints: 100, Workers: 4},
		Fit:      FitConfig{MaxIterations: 200},
		Output:   OutputConfig{Dir: "out", Formats: []string{"html", "csv"}},
		Store:    StoreConfig{Driver: "sqlite", Path: "settle.db"},
		Server:   ServerConfig{Port: 8080},
	}
}

func TestValidateAnalysis_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("analysis"))
}

func TestValidateAnalysis_MissingColumns(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.IDColumn = ""
	cfg.Input.TimeColumn = ""
	cfg.Input.XColumn = ""
	cfg.Input.YColumn = ""

	err := cfg.Validate("analysis")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input.id_column is required")
	assert.Contains(t, err.Error(), "input.time_column is required")
	assert.Contains(t, err.Error(), "input.x_column is required")
	assert.Contains(t, err.Error(), "input.y_column is required")
}

func TestValidateAnalysis_GridPointsBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Analysis.GridPoints = 1
	err := cfg.Validate("analysis")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.grid_points must be >= 2")

	cfg.Analysis.GridPoints = 2
	assert.NoError(t, cfg.Validate("analysis"))
}

func TestValidateAnalysis_WorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Analysis.Workers = 0
	err := cfg.Validate("analysis")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.workers must be between 1 and 64")

	cfg.Analysis.Workers = 65
	err = cfg.Validate("analysis")
	assert.Error(t, err)

	cfg.Analysis.Workers = 64
	assert.NoError(t, cfg.Validate("analysis"))
}

func TestValidateAnalysis_MaxIterations(t *testing.T) {
	cfg := validDefaults()
	cfg.Fit.MaxIterations = 0

	err := cfg.Validate("analysis")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fit.max_iterations must be >= 1")
}

func TestValidateAnalysis_UnsupportedFormat(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Formats = []string{"html", "pdf"}

	err := cfg.Validate("analysis")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format pdf")
}

func TestValidateSQLite_RequiresPath(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidatePostgres_RequiresDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/settle"
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateStore_IgnoresAnalysisFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Input.IDColumn = ""
	cfg.Analysis.GridPoints = 0

	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
