package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/openmined/savesync/internal/config"
	"github.com/openmined/savesync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var flagKeys = map[string]string{
	"local":   "LocalSaveRootPath",
	"remote":  "DropboxSavePath",
	"pattern": "SaveFiles",
	"backend": "Backend",
	"datadir": "DataDir",
	"dry-run": "DryRun",
	"debug":   "Debug",
}

// resolveConfigPath picks the config file, honoring (in order):
// 1) an explicitly set --config flag
// 2) SAVESYNC_CONFIG_PATH
// 3) appsettings.json in the working directory
// 4) the default path, if it exists
// An empty result means no config file; env and flags still apply.
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv("SAVESYNC_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{
		filepath.Join(".", config.LocalConfigFile),
		config.DefaultConfigPath,
	}
	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config.SetDefaults(a.v)

	if path := resolveConfigPath(cmd); path != "" {
		a.v.SetConfigFile(path)
		a.v.SetConfigType("json")
		if err := a.v.ReadInConfig(); err != nil {
			enoent := errors.Is(err, os.ErrNotExist)
			var notFound viper.ConfigFileNotFoundError
			explicit := cmd.Flag("config") != nil && cmd.Flag("config").Changed
			if explicit || (!enoent && !errors.As(err, &notFound)) {
				return nil, fmt.Errorf("config read '%s': %w", path, err)
			}
		}
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := a.v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	return config.FromViper(a.v)
}
