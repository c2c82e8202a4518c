// Package config holds the user settings of savesync. Keys follow the
// appsettings.json layout and are matched case-insensitively.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/savesync/internal/remote"
	"github.com/openmined/savesync/internal/remote/dropbox"
	"github.com/openmined/savesync/internal/remote/s3"
	"github.com/openmined/savesync/internal/savesync"
	"github.com/openmined/savesync/internal/utils"
	"github.com/spf13/viper"
)

const (
	BackendDropbox = "dropbox"
	BackendS3      = "s3"

	EnvPrefix       = "SAVESYNC"
	LocalConfigFile = "appsettings.json"
)

var (
	home, _           = os.UserHomeDir()
	DefaultDataDir    = filepath.Join(home, ".savesync")
	DefaultConfigPath = filepath.Join(DefaultDataDir, "config.json")
)

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
}

type Config struct {
	AuthToken          string        `mapstructure:"authtoken"`
	LocalSaveRootPath  string        `mapstructure:"localsaverootpath"`
	DropboxSavePath    string        `mapstructure:"dropboxsavepath"`
	SaveFiles          string        `mapstructure:"savefiles"`
	Backend            string        `mapstructure:"backend"`
	S3                 S3Config      `mapstructure:"s3"`
	Exclude            []string      `mapstructure:"exclude"`
	DataDir            string        `mapstructure:"datadir"`
	TimestampPrecision time.Duration `mapstructure:"timestampprecision"`
	DryRun             bool          `mapstructure:"dryrun"`
	Debug              bool          `mapstructure:"debug"`
	Path               string        `mapstructure:"-"`

	pattern *regexp.Regexp
}

// SetDefaults registers every key on v so environment variables are picked
// up for keys missing from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("AuthToken", "")
	v.SetDefault("LocalSaveRootPath", "")
	v.SetDefault("DropboxSavePath", "/")
	v.SetDefault("SaveFiles", "")
	v.SetDefault("Backend", BackendDropbox)
	v.SetDefault("S3.Bucket", "")
	v.SetDefault("S3.Prefix", "")
	v.SetDefault("S3.Region", "")
	v.SetDefault("S3.Endpoint", "")
	v.SetDefault("S3.AccessKey", "")
	v.SetDefault("S3.SecretKey", "")
	v.SetDefault("Exclude", []string{})
	v.SetDefault("DataDir", DefaultDataDir)
	v.SetDefault("TimestampPrecision", time.Duration(0))
	v.SetDefault("DryRun", false)
	v.SetDefault("Debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper decodes v and validates the result.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes paths and checks that the selected backend has what it
// needs.
func (c *Config) Validate() error {
	var err error

	if c.LocalSaveRootPath == "" {
		return errors.New("LocalSaveRootPath is required")
	}
	if c.LocalSaveRootPath, err = utils.ResolvePath(c.LocalSaveRootPath); err != nil {
		return fmt.Errorf("LocalSaveRootPath: %w", err)
	}

	c.DropboxSavePath = remote.Clean(c.DropboxSavePath)

	if c.pattern, err = regexp.Compile(c.SaveFiles); err != nil {
		return fmt.Errorf("SaveFiles: invalid pattern: %w", err)
	}

	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("Exclude: invalid pattern %q", pattern)
		}
	}

	if c.TimestampPrecision < 0 {
		return fmt.Errorf("TimestampPrecision must not be negative, got %s", c.TimestampPrecision)
	}

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.DataDir, err = utils.ResolvePath(c.DataDir); err != nil {
		return fmt.Errorf("DataDir: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "", BackendDropbox:
		c.Backend = BackendDropbox
		if c.AuthToken == "" {
			return errors.New("AuthToken is required for the dropbox backend")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("S3.Bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	return nil
}

// SyncConfig derives the settings of a sync pass.
func (c *Config) SyncConfig() *savesync.Config {
	return &savesync.Config{
		LocalRoot:  c.LocalSaveRootPath,
		RemoteRoot: c.DropboxSavePath,
		Pattern:    c.pattern,
		Exclude:    c.Exclude,
		Comparator: savesync.Comparator{Precision: c.TimestampPrecision},
		DryRun:     c.DryRun,
	}
}

// NewStorage opens the configured backend. The caller closes it.
func (c *Config) NewStorage(ctx context.Context) (remote.Storage, error) {
	switch c.Backend {
	case BackendS3:
		return s3.New(ctx, &s3.Config{
			Bucket:    c.S3.Bucket,
			Prefix:    c.S3.Prefix,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
		})
	default:
		return dropbox.New(c.AuthToken, &dropbox.Options{Debug: c.Debug})
	}
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", c.Path),
		slog.String("backend", c.Backend),
		slog.String("token", utils.MaskSecret(c.AuthToken)),
		slog.String("local", c.LocalSaveRootPath),
		slog.String("remote", c.DropboxSavePath),
		slog.String("pattern", c.SaveFiles),
		slog.String("datadir", c.DataDir),
	)
}
