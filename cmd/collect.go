package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/collector-cli/internal/config"
	"github.com/sells-group/collector-cli/internal/engine"
	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/quota"
	"github.com/sells-group/collector-cli/pkg/mediasource"
)

var (
	collectFields   string
	collectPreset   string
	collectMaxPages int
)

var collectCmd = &cobra.Command{
	Use:   "collect <keyword|account|tag> <term>",
	Short: "Run a collection for a keyword search, an account, or a tag feed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		query := model.Query{Kind: kind, Platform: cfg.Source.Platform}
		switch kind {
		case model.RunKindAccount:
			query.Handle = args[1]
		case model.RunKindTag:
			query.Tag = args[1]
		default:
			query.Keyword = args[1]
		}

		fields, err := resolveFields()
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gov := quota.NewGovernor(quota.NewBroadcaster())
		src := mediasource.NewClient(cfg.Source.Key,
			mediasource.WithBaseURL(cfg.Source.BaseURL),
			mediasource.WithPlatform(cfg.Source.Platform),
			mediasource.WithRateLimit(cfg.Source.RPS, cfg.Source.Burst),
			mediasource.WithQuotaHook(func(remaining, ceiling int64) {
				gov.AuthoritativeSync(remaining, ceiling)
			}),
		)

		runCfg := model.NewRunConfig(query, cfg.Store.Table, fields)
		runCfg.MaxPages = cfg.Collect.MaxPages
		runCfg.SlotScan = cfg.Collect.SlotScan
		runCfg.KeyScan = cfg.Collect.KeyScan
		runCfg.ChunkSize = cfg.Collect.ChunkSize
		if collectMaxPages > 0 {
			runCfg.MaxPages = collectMaxPages
		}

		m := engine.NewManager(src, st, gov,
			engine.WithSideFetcher(src),
			engine.WithProgress(func(p model.Progress) {
				fmt.Fprintf(os.Stderr, "page %d: %d written, %d skipped\n", p.Page, p.Written, p.Skipped)
			}),
		)

		if _, err := m.Start(ctx, runCfg); err != nil {
			return err
		}

		// First interrupt stops gracefully; committed work stays committed.
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)
		go func() {
			<-sig
			zap.L().Info("interrupt received, stopping run")
			m.StopAll()
		}()

		rep, _ := m.Report(kind)
		if err := m.Wait(); err != nil {
			return err
		}

		fmt.Printf("run %s: %s (%s)\n", rep.RunID, rep.State, rep.EndCause)
		fmt.Printf("  pages: %d  written: %d  skipped: %d  dropped: %d\n",
			rep.Pages, rep.TotalWritten, rep.TotalSkipped, rep.Dropped)
		if rep.Error != "" {
			fmt.Printf("  error: %s\n", rep.Error)
		}
		return nil
	},
}

func parseKind(s string) (model.RunKind, error) {
	switch model.RunKind(s) {
	case model.RunKindKeyword, model.RunKindAccount, model.RunKindTag:
		return model.RunKind(s), nil
	}
	return "", eris.Errorf("unknown run kind %q (want keyword, account or tag)", s)
}

// resolveFields merges the --fields flag and --preset into one selection.
// An explicit --fields list wins over a preset.
func resolveFields() ([]string, error) {
	if collectFields != "" {
		parts := strings.Split(collectFields, ",")
		fields := make([]string, 0, len(parts))
		for _, p := range parts {
			if f := strings.TrimSpace(p); f != "" {
				fields = append(fields, f)
			}
		}
		return fields, nil
	}
	presets, err := config.LoadPresets(cfg.Collect.PresetsPath)
	if err != nil {
		return nil, err
	}
	return presets.Resolve(collectPreset)
}

func init() {
	collectCmd.Flags().StringVar(&collectFields, "fields", "", "comma-separated field selection (default: all fields)")
	collectCmd.Flags().StringVar(&collectPreset, "preset", "", "field-selection preset name from the presets file")
	collectCmd.Flags().IntVar(&collectMaxPages, "max-pages", 0, "override the page ceiling for this run")
	rootCmd.AddCommand(collectCmd)
}
