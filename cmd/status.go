package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/store"
)

var (
	statusKind  string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent run outcomes from the run log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rl, ok := st.(store.RunLog)
		if !ok {
			return eris.Errorf("the %s backend keeps no run log", cfg.Store.Driver)
		}

		if statusKind != "" {
			kind, err := parseKind(statusKind)
			if err != nil {
				return err
			}
			rep, err := rl.LastReport(ctx, kind)
			if err != nil {
				return err
			}
			if rep == nil {
				fmt.Fprintf(os.Stderr, "No %s runs recorded.\n", kind)
				return nil
			}
			printReports([]model.RunReport{*rep})
			return nil
		}

		reports, err := rl.ListReports(ctx, statusLimit)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}
		printReports(reports)
		return nil
	},
}

func printReports(reports []model.RunReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tKIND\tSTATE\tCAUSE\tPAGES\tWRITTEN\tSKIPPED\tDROPPED")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.FinishedAt.UTC().Format(time.RFC3339),
			r.Kind, r.State, r.EndCause,
			r.Pages, r.TotalWritten, r.TotalSkipped, r.Dropped,
		)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().StringVar(&statusKind, "kind", "", "show only the latest run of this kind")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max number of runs to display")
	rootCmd.AddCommand(statusCmd)
}
