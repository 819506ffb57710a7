package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gkatanacio/batch-downloader/config"
	"github.com/gkatanacio/batch-downloader/history"
)

func newHistoryCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var limit int

	openStore := func() (*history.Store, error) {
		cfg, err := config.Load(v, *configFile)
		if err != nil {
			return nil, err
		}
		if cfg.History == "" {
			return nil, errors.New("no history database configured (--history or BDL_HISTORY)")
		}
		return history.Open(cfg.History)
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List batches recorded in the history database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.List(limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tTOTAL\tOK\tFAIL\tSIZE")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					s.ID,
					s.StartedAt.Format(time.DateTime),
					s.FinishedAt.Sub(s.StartedAt).Truncate(time.Millisecond),
					s.Total, s.OK, s.Failed,
					humanize.Bytes(uint64(s.Bytes)),
				)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of batches to list")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print every outcome of a recorded batch.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Get(args[0])
			if err != nil {
				return err
			}

			printOutcomes(cmd.OutOrStdout(), report)
			PrintSummary(cmd.OutOrStdout(), report)
			return nil
		},
	}

	historyCmd.AddCommand(showCmd)

	return historyCmd
}
