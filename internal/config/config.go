package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Import    ImportConfig    `mapstructure:"import"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Model     ModelConfig     `mapstructure:"model"`
	Backup    BackupConfig    `mapstructure:"backup"`
	ML        MLConfig        `mapstructure:"ml"`
	Log       LogConfig       `mapstructure:"log"`
}

// DataConfig is the root every unset path derives from.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// ImportConfig locates bank exports and the normalized table.
type ImportConfig struct {
	Dir   string `mapstructure:"dir"`
	Table string `mapstructure:"table"`
}

// DocumentsConfig locates the categories and rules documents.
type DocumentsConfig struct {
	Categories string `mapstructure:"categories"`
	Rules      string `mapstructure:"rules"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ModelConfig struct {
	Path string `mapstructure:"path"`
}

type BackupConfig struct {
	Dir string `mapstructure:"dir"`
}

// MLConfig tunes training and the composer.
type MLConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	TestSize            float64 `mapstructure:"test_size"`
	RandomState         int64   `mapstructure:"random_state"`
	// IncludeAutomated trains on rule and ML labels as well as manual ones.
	IncludeAutomated bool `mapstructure:"include_automated"`
	AmountFeatures   bool `mapstructure:"amount_features"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Path returns the config file location: BANKCAT_CONFIG when set, else
// ~/.config/bankcat/config.toml.
func Path() string {
	if p := os.Getenv("BANKCAT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "bankcat", "config.toml")
}

func defaults(v *viper.Viper) {
	v.SetDefault("data.dir", filepath.Join(os.Getenv("HOME"), ".local", "share", "bankcat"))
	v.SetDefault("import.dir", "")
	v.SetDefault("import.table", "")
	v.SetDefault("documents.categories", "")
	v.SetDefault("documents.rules", "")
	v.SetDefault("database.path", "")
	v.SetDefault("model.path", "")
	v.SetDefault("backup.dir", "")
	v.SetDefault("ml.confidence_threshold", 0.7)
	v.SetDefault("ml.test_size", 0.2)
	v.SetDefault("ml.random_state", 42)
	v.SetDefault("ml.include_automated", false)
	v.SetDefault("ml.amount_features", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads configuration from file and env. Env var overrides use prefix
// BANKCAT_, e.g. BANKCAT_ML_CONFIDENCE_THRESHOLD. A missing file is not an
// error; a malformed one is.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigType("toml")
	v.SetConfigFile(Path())

	v.SetEnvPrefix("BANKCAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c.Resolve(), nil
}

// Resolve fills every empty path from Data.Dir.
func (c Config) Resolve() Config {
	under := func(target *string, parts ...string) {
		if *target == "" {
			*target = filepath.Join(append([]string{c.Data.Dir}, parts...)...)
		}
	}
	under(&c.Import.Dir, "exports")
	under(&c.Import.Table, "combined_transactions.csv")
	under(&c.Documents.Categories, "categories", "categories.json")
	under(&c.Documents.Rules, "categories", "categorization_rules.json")
	under(&c.Database.Path, "bankcat.db")
	under(&c.Model.Path, "models", "categorizer.gob")
	under(&c.Backup.Dir, "backups")
	if c.ML.ConfidenceThreshold <= 0 {
		c.ML.ConfidenceThreshold = 0.7
	}
	return c
}

// Save writes the provided config to Path(), creating the config directory
// if needed.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("data.dir", cfg.Data.Dir)
	v.Set("import.dir", cfg.Import.Dir)
	v.Set("import.table", cfg.Import.Table)
	v.Set("documents.categories", cfg.Documents.Categories)
	v.Set("documents.rules", cfg.Documents.Rules)
	v.Set("database.path", cfg.Database.Path)
	v.Set("model.path", cfg.Model.Path)
	v.Set("backup.dir", cfg.Backup.Dir)
	v.Set("ml.confidence_threshold", cfg.ML.ConfidenceThreshold)
	v.Set("ml.test_size", cfg.ML.TestSize)
	v.Set("ml.random_state", cfg.ML.RandomState)
	v.Set("ml.include_automated", cfg.ML.IncludeAutomated)
	v.Set("ml.amount_features", cfg.ML.AmountFeatures)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.json", cfg.Log.JSON)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
