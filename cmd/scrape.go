package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/modelpulse/tracker-cli/internal/adapter"
	"github.com/modelpulse/tracker-cli/internal/fetcher"
	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/store"
)

// scrapeStore is the slice of store.Store a scrape run touches.
type scrapeStore interface {
	Append(ctx context.Context, rows []model.Observation) (int64, error)
	RecordScrapeRun(ctx context.Context, run store.ScrapeRun) error
	LastModelCount(ctx context.Context, platform string) (int64, bool, error)
	SetLastModelCount(ctx context.Context, platform string, count int64) error
}

var (
	scrapeAdapters []string
	scrapeDay      string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch download counts from hosting platforms",
	Long:  "Runs the platform adapters and appends one observation row per model seen. Rows are never overwritten; resolution happens at query time.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		day := model.Today()
		if scrapeDay != "" {
			d, err := model.ParseDay(scrapeDay)
			if err != nil {
				return err
			}
			day = d
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		registry := adapter.NewRegistry(rules)
		adapters, err := registry.Select(scrapeAdapters)
		if err != nil {
			return err
		}

		httpc := fetcher.NewHTTP(fetcher.Options{
			UserAgent:      cfg.Scrape.UserAgent,
			Timeout:        time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
			MaxRetries:     cfg.Scrape.Retries,
			RequestsPerSec: cfg.Scrape.RequestsPerSec,
			Burst:          cfg.Scrape.Burst,
		})

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Scrape.Concurrency)

		for _, a := range adapters {
			a := a
			g.Go(func() error {
				runScrape(gCtx, st, httpc, a, day)
				return nil // one failing platform never aborts the others
			})
		}
		_ = g.Wait()

		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeAdapters, "adapters", nil, "adapter names to run (default all)")
	scrapeCmd.Flags().StringVar(&scrapeDay, "date", "", "observation date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(ctx context.Context, st scrapeStore, httpc *fetcher.HTTP, a adapter.Adapter, day model.Day) {
	run := store.ScrapeRun{
		ID:        uuid.NewString(),
		Platform:  a.Platform(),
		Adapter:   a.Name(),
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := st.RecordScrapeRun(ctx, run); err != nil {
		zap.L().Warn("record scrape run", zap.String("adapter", a.Name()), zap.Error(err))
	}

	finish := func() {
		now := time.Now().UTC()
		run.CompletedAt = &now
		if err := st.RecordScrapeRun(ctx, run); err != nil {
			zap.L().Warn("record scrape run", zap.String("adapter", a.Name()), zap.Error(err))
		}
	}

	rows, err := a.Fetch(ctx, httpc, day)
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		finish()
		zap.L().Error("scrape failed",
			zap.String("adapter", a.Name()),
			zap.String("platform", a.Platform()),
			zap.Error(err),
		)
		return
	}

	n, err := st.Append(ctx, rows)
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		finish()
		zap.L().Error("append observations",
			zap.String("adapter", a.Name()),
			zap.Error(err),
		)
		return
	}

	run.Status = "ok"
	run.RowsAppended = n
	finish()

	checkModelCount(ctx, st, a.Platform(), int64(len(rows)))

	zap.L().Info("scrape complete",
		zap.String("adapter", a.Name()),
		zap.String("platform", a.Platform()),
		zap.String("date", day.String()),
		zap.Int64("rows", n),
	)
}

// checkModelCount compares the platform's model count against the previous
// run and warns on a drop. Listing pages losing models usually means a
// markup change broke a selector, not a real disappearance.
func checkModelCount(ctx context.Context, st scrapeStore, platform string, count int64) {
	prev, ok, err := st.LastModelCount(ctx, platform)
	if err != nil {
		zap.L().Warn("read last model count", zap.String("platform", platform), zap.Error(err))
		return
	}
	if ok && count < prev {
		zap.L().Warn("platform model count dropped",
			zap.String("platform", platform),
			zap.Int64("previous", prev),
			zap.Int64("current", count),
		)
	}
	if err := st.SetLastModelCount(ctx, platform, count); err != nil {
		zap.L().Warn("store last model count", zap.String("platform", platform), zap.Error(err))
	}
}
