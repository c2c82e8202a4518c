package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/savesync/internal/history"
	"github.com/openmined/savesync/internal/workspace"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			ws, err := workspace.NewWorkspace(cfg.DataDir)
			if err != nil {
				return err
			}

			store, err := history.Open(ws.HistoryPath)
			if err != nil {
				return err
			}
			defer store.Close()

			transfers, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(transfers) == 0 {
				fmt.Fprintln(out, gray.Render("no transfers yet"))
				return nil
			}
			for _, t := range transfers {
				arrow := green.Render("↑")
				if t.Direction == history.DirectionDownload {
					arrow = cyan.Render("↓")
				}
				fmt.Fprintf(out, "%s %s %s %s %s\n",
					gray.Render(humanize.Time(t.TransferredAt)),
					arrow,
					t.Path,
					gray.Render("rev "+t.Rev),
					humanize.IBytes(uint64(t.Size)),
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of transfers to show")
	return cmd
}
