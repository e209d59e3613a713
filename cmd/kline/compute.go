package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kline/internal/adapters/llm"
	"github.com/okian/kline/internal/adapters/narrative"
	repository "github.com/okian/kline/internal/adapters/repository"
	"github.com/okian/kline/internal/config"
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/internal/testcharts"
)

func sampleCmd() *cobra.Command {
	var (
		seed      int64
		birthYear int
		out       string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a random valid chart fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			f := testcharts.New(seed).Fixture(birthYear)
			w := cmd.OutOrStdout()
			if out != "" {
				fh, err := os.Create(out) //nolint:gosec // path comes from the operator
				if err != nil {
					return err
				}
				defer func() { _ = fh.Close() }()
				w = fh
			}
			return testcharts.Encode(w, f)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "generator seed (0 picks one)")
	cmd.Flags().IntVar(&birthYear, "birth-year", 1990, "birth year of the sample chart")
	cmd.Flags().StringVarP(&out, "output", "o", "", "file to write instead of stdout")
	return cmd
}

func timelineCmd(cfg *config.Config) *cobra.Command {
	var (
		file     string
		strategy string
		backend  llm.Config
	)
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Compute the lifetime timeline of a chart fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, birthYear, err := loadChart(file)
			if err != nil {
				return err
			}
			svc := newService(cfg, repository.NewMemoryStore())
			ctx := cmd.Context()

			var tl *model.Timeline
			switch strategy {
			case curve.StrategyDeterministic:
				tl, err = svc.ComputeDeterministicTimeline(ctx, c, birthYear)
			case narrative.StrategyNarrative:
				progress := cmd.ErrOrStderr()
				tl, err = svc.ComputeNarrativeTimeline(ctx, c, birthYear, backend, func(p curve.Progress) {
					fmt.Fprintf(progress, "[%s] %s %s\n", p.Strategy, p.Stage, p.Message)
				})
			default:
				return fmt.Errorf("unknown strategy %q", strategy)
			}
			if err != nil {
				return err
			}
			return writeTimeline(cmd.OutOrStdout(), tl)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "chart fixture (YAML or JSON)")
	cmd.Flags().StringVar(&strategy, "strategy", curve.StrategyDeterministic, "deterministic or narrative")
	cmd.Flags().StringVar(&backend.Provider, "provider", "", "narrative backend provider")
	cmd.Flags().StringVar(&backend.APIKey, "api-key", "", "narrative backend API key")
	cmd.Flags().StringVar(&backend.BaseURL, "base-url", "", "narrative backend base URL")
	cmd.Flags().StringVar(&backend.Model, "model", "", "narrative backend model")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func seriesCmd(cfg *config.Config, name string) *cobra.Command {
	var (
		file string
		year int
	)
	short := map[string]string{
		"decades": "Compute one point per decade palace",
		"years":   "Compute the yearly series from --start",
		"months":  "Compute the twelve months of --year",
	}[name]
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, birthYear, err := loadChart(file)
			if err != nil {
				return err
			}
			if year == 0 {
				year = time.Now().Year()
			}
			svc := newService(cfg, repository.NewMemoryStore())
			ctx := cmd.Context()

			var tl *model.Timeline
			switch name {
			case "decades":
				tl, err = svc.ComputeDecadeSeries(ctx, c, birthYear)
			case "years":
				tl, err = svc.ComputeYearSeries(ctx, c, year)
			default:
				tl, err = svc.ComputeMonthSeries(ctx, c, year)
			}
			if err != nil {
				return err
			}
			return writeTimeline(cmd.OutOrStdout(), tl)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "chart fixture (YAML or JSON)")
	switch name {
	case "years":
		cmd.Flags().IntVar(&year, "start", 0, "first year (default this year)")
	case "months":
		cmd.Flags().IntVar(&year, "year", 0, "calendar year (default this year)")
	}
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadChart(path string) (chart.Chart, int, error) {
	f, err := testcharts.Load(path)
	if err != nil {
		return nil, 0, err
	}
	a, err := f.Almanac()
	if err != nil {
		return nil, 0, err
	}
	return a, f.BirthYear, nil
}

func writeTimeline(w io.Writer, tl *model.Timeline) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(tl)
}
