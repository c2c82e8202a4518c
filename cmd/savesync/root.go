package main

import (
	"context"

	"github.com/openmined/savesync/internal/config"
	"github.com/openmined/savesync/internal/remote"
	"github.com/openmined/savesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newStorage opens the remote for a command. Replaced in tests.
var newStorage = func(ctx context.Context, cfg *config.Config) (remote.Storage, error) {
	return cfg.NewStorage(ctx)
}

// app carries the per-invocation viper instance shared by all commands.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:     "savesync",
		Short:   "Two-way sync of emulator save files with cloud storage",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, phaseBoth)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "config file (default ./"+config.LocalConfigFile+" or "+config.DefaultConfigPath+")")
	flags.StringP("local", "l", "", "local save root (LocalSaveRootPath)")
	flags.StringP("remote", "r", "", "remote save folder (DropboxSavePath)")
	flags.StringP("pattern", "p", "", "regexp selecting local save files (SaveFiles)")
	flags.StringP("backend", "b", "", "remote backend: dropbox or s3")
	flags.StringP("datadir", "d", "", "savesync data directory")
	flags.BoolP("dry-run", "n", false, "plan and log but transfer nothing")
	flags.Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(
		newSyncCmd(a),
		newUploadCmd(a),
		newDownloadCmd(a),
		newWhoamiCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}
