package main

import (
	"fmt"

	"github.com/openmined/savesync/internal/utils"
	"github.com/spf13/cobra"
)

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the configured credential belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			storage, err := newStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			account, err := storage.CurrentAccount(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), red.Render("could not reach "+cfg.Backend+": "+err.Error()))
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s - %s\n", bold.Render(account.DisplayName), account.Email)
			fmt.Fprintf(out, "%s %s\n", gray.Render("backend"), cfg.Backend)
			fmt.Fprintf(out, "%s %s\n", gray.Render("token  "), utils.MaskSecret(cfg.AuthToken))
			return nil
		},
	}
}
