package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/quota"
	"github.com/sells-group/collector-cli/internal/resilience"
	"github.com/sells-group/collector-cli/pkg/mediasource"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Probe the source and print the current write allowance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gov := quota.NewGovernor(quota.NewBroadcaster())
		src := mediasource.NewClient(cfg.Source.Key,
			mediasource.WithBaseURL(cfg.Source.BaseURL),
			mediasource.WithPlatform(cfg.Source.Platform),
			mediasource.WithRateLimit(cfg.Source.RPS, cfg.Source.Burst),
			mediasource.WithQuotaHook(func(remaining, ceiling int64) {
				gov.AuthoritativeSync(remaining, ceiling)
			}),
		)

		// A minimal page request; its headers carry the counters.
		_, err := src.FetchPage(ctx, model.Query{Kind: model.RunKindKeyword, Keyword: "ping"}, "")
		if qe := resilience.AsQuotaExhausted(err); qe != nil {
			fmt.Println(gov.MarkExhausted(qe.Remaining, qe.ResetAt))
		} else if err != nil {
			return err
		}

		st := gov.State()
		fmt.Printf("availability: %s\n", st.Availability)
		fmt.Printf("remaining:    %s\n", counter(st.Remaining))
		fmt.Printf("ceiling:      %s\n", counter(st.Ceiling))
		if !st.ResetAt.IsZero() {
			fmt.Printf("resets:       %s\n", st.ResetAt.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

func counter(v int64) string {
	if v < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", v)
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}
