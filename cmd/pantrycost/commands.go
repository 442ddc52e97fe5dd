package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/analytics"
	"github.com/nixlim/pantrycost/internal/export"
	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
	"github.com/nixlim/pantrycost/internal/render"
	"github.com/nixlim/pantrycost/internal/seed"
	"github.com/nixlim/pantrycost/internal/sink"
	"github.com/nixlim/pantrycost/internal/storage"
)

// windowFlags are shared by every analysis command.
type windowFlags struct {
	asOf       string
	days       int
	ingredient string
	usageType  string
}

func (w *windowFlags) register(cmd *cobra.Command, withFilter bool) {
	cmd.Flags().StringVar(&w.asOf, "as-of", "", "reference date (YYYY-MM-DD or RFC3339, default now)")
	cmd.Flags().IntVar(&w.days, "window", 0, "window length in days (default from config)")
	if withFilter {
		cmd.Flags().StringVar(&w.ingredient, "ingredient", "", "only this ingredient id")
		cmd.Flags().StringVar(&w.usageType, "usage-type", "", "only this usage type")
	}
}

func (a *app) resolveWindow(w windowFlags) (time.Time, int, error) {
	loc, err := a.cfg.Storage.Location()
	if err != nil {
		return time.Time{}, 0, err
	}
	asOf, err := parseAsOf(w.asOf, loc, time.Now())
	if err != nil {
		return time.Time{}, 0, err
	}
	days := w.days
	if days == 0 {
		days = a.cfg.Analytics.DefaultWindowDays
	}
	return asOf, days, nil
}

func parseAsOf(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if s == "" {
		return now.In(loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t.In(loc), nil
}

func (w windowFlags) filter() (analytics.Filter, error) {
	ut, err := records.ParseUsageType(w.usageType)
	if err != nil {
		return analytics.Filter{}, err
	}
	return analytics.Filter{IngredientID: w.ingredient, UsageType: ut}, nil
}

func (a *app) granularity(s string) (period.Granularity, error) {
	if s == "" {
		s = a.cfg.Analytics.DefaultGranularity
	}
	return period.ParseGranularity(s)
}

func ingredientNames(ctx context.Context, f records.Fetcher) (render.Names, error) {
	ingredients, err := f.FetchIngredients(ctx)
	if err != nil {
		return nil, err
	}
	names := make(render.Names, len(ingredients))
	for id, ing := range ingredients {
		names[id] = ing.Name
	}
	return names, nil
}

func newTrendsCmd(a *app) *cobra.Command {
	var w windowFlags
	var granularity string
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Price totals and top contributors per period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			asOf, days, err := a.resolveWindow(w)
			if err != nil {
				return err
			}
			g, err := a.granularity(granularity)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			periods, err := a.engine(store).CostTrends(ctx, asOf, days, g)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, periods)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), render.CostTrends(periods, g))
			return err
		},
	}
	w.register(cmd, false)
	cmd.Flags().StringVar(&granularity, "granularity", "", "daily, weekly or monthly (default from config)")
	return cmd
}

func newPatternsCmd(a *app) *cobra.Command {
	var w windowFlags
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Daily usage statistics and trend per ingredient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			asOf, days, err := a.resolveWindow(w)
			if err != nil {
				return err
			}
			f, err := w.filter()
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			patterns, err := a.engine(store).ConsumptionPatterns(ctx, asOf, days, f)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, patterns)
			}
			names, err := ingredientNames(ctx, store)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), render.Patterns(patterns, names))
			return err
		},
	}
	w.register(cmd, true)
	return cmd
}

func newHeatmapCmd(a *app) *cobra.Command {
	var w windowFlags
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Day-by-day usage intensity per ingredient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			asOf, days, err := a.resolveWindow(w)
			if err != nil {
				return err
			}
			f, err := w.filter()
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := a.engine(store).UsageHeatmap(ctx, asOf, days, f)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, rows)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), render.Heatmap(rows))
			return err
		},
	}
	w.register(cmd, true)
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var w windowFlags
	var granularity string
	var doExport, doSink, otlpJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute trends, patterns and heatmap in one pass",
		Long: `report computes all three analyses over one snapshot of the store.
With --export the result is pushed to the configured OTLP collector and with
--sink it is written to the configured report sink.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			asOf, days, err := a.resolveWindow(w)
			if err != nil {
				return err
			}
			g, err := a.granularity(granularity)
			if err != nil {
				return err
			}
			f, err := w.filter()
			if err != nil {
				return err
			}
			if doExport && a.cfg.Export.OTLPEndpoint == "" {
				return errors.New("--export needs export.otlp_endpoint in the config")
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := a.engine(store).Report(ctx, analytics.Request{
				AsOf: asOf, WindowDays: days, Granularity: g, Filter: f,
			})
			if err != nil {
				return err
			}

			if doExport {
				if err := a.exportReport(ctx, report); err != nil {
					return err
				}
			}
			if doSink {
				if err := a.sinkReport(ctx, report); err != nil {
					return err
				}
			}

			if otlpJSON {
				data, err := export.EncodeJSON(report, a.cfg.Export.ServiceName)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, report)
			}
			names, err := ingredientNames(ctx, store)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), render.Report(report, names))
			return err
		},
	}
	w.register(cmd, true)
	cmd.Flags().StringVar(&granularity, "granularity", "", "cost trend granularity (default from config)")
	cmd.Flags().BoolVar(&doExport, "export", false, "push the report to the OTLP collector")
	cmd.Flags().BoolVar(&doSink, "sink", false, "write the report to the configured sink")
	cmd.Flags().BoolVar(&otlpJSON, "otlp-json", false, "print the OTLP/JSON metrics payload instead of the report")
	return cmd
}

func (a *app) exportReport(ctx context.Context, r *analytics.Report) error {
	exp, err := export.Dial(a.cfg.Export.OTLPEndpoint, a.cfg.Export.OTLPInsecure, a.cfg.Export.ServiceName)
	if err != nil {
		return err
	}
	defer exp.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := exp.Export(ctx, r); err != nil {
		return err
	}
	a.logger.Info("report exported",
		zap.String("report_id", r.ID),
		zap.String("endpoint", a.cfg.Export.OTLPEndpoint))
	return nil
}

func (a *app) sinkReport(ctx context.Context, r *analytics.Report) error {
	s, err := sink.New(ctx, a.cfg.Sink, a.logger)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Write(ctx, r); err != nil {
		return err
	}
	a.logger.Info("report written to sink",
		zap.String("report_id", r.ID),
		zap.String("sink", a.cfg.Sink.Kind))
	return nil
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import ingredients, price history and usage from a JSON document",
		Long: `import reads a JSON object with optional "ingredients", "priceHistory"
and "usage" arrays and stores it. Use - to read standard input. Nothing is
written when any record fails validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			batch, err := readBatch(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := records.Import(ctx, store, batch); err != nil {
				return err
			}
			return a.printImported(cmd, batch)
		},
	}
}

func readBatch(stdin io.Reader, path string) (records.Batch, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return records.Batch{}, fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var b records.Batch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return records.Batch{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return b, nil
}

type importSummary struct {
	Ingredients int `json:"ingredients"`
	PriceEvents int `json:"priceEvents"`
	UsageEvents int `json:"usageEvents"`
}

func (a *app) printImported(cmd *cobra.Command, b records.Batch) error {
	s := importSummary{len(b.Ingredients), len(b.PriceEvents), len(b.UsageEvents)}
	if a.jsonOut {
		return a.printJSON(cmd, s)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d ingredients, %d price events, %d usage events\n",
		s.Ingredients, s.PriceEvents, s.UsageEvents)
	return err
}

func newSeedCmd(a *app) *cobra.Command {
	var opts seed.Options
	var asOf string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate and import sample bakery data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loc, err := a.cfg.Storage.Location()
			if err != nil {
				return err
			}
			if opts.AsOf, err = parseAsOf(asOf, loc, time.Now()); err != nil {
				return err
			}
			if !a.jsonOut {
				opts.Progress = cmd.ErrOrStderr()
			}
			batch := seed.Generate(opts)

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := records.Import(ctx, store, batch); err != nil {
				return err
			}
			if !a.jsonOut {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			return a.printImported(cmd, batch)
		},
	}
	cmd.Flags().IntVar(&opts.Ingredients, "ingredients", 0, "number of ingredients (default: one per catalogue entry)")
	cmd.Flags().IntVar(&opts.Days, "days", 90, "days of history")
	cmd.Flags().IntVar(&opts.PriceEveryDays, "price-every", 7, "mean days between price changes")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&asOf, "as-of", "", "last day of generated history (default today)")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if days == 0 {
				days = a.cfg.Storage.RetentionDays
			}
			if days < 0 {
				return fmt.Errorf("--older-than must be positive, got %d", days)
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := prune(ctx, store, time.Now(), days)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, res)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d price events, %d usage events\n",
				res.PriceEvents, res.UsageEvents)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "older-than", 0, "retention in days (default storage.retention_days)")
	return cmd
}

func prune(ctx context.Context, store storage.Backend, now time.Time, days int) (records.PruneResult, error) {
	cutoff := period.StartOfDay(now.AddDate(0, 0, -days))
	return store.Prune(ctx, cutoff)
}
