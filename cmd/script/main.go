package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sectorrebalance/cmd"
	"sectorrebalance/internal/app"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	"sectorrebalance/internal/util"
	"time"

	"github.com/spf13/cobra"
)

type flags struct {
	opts cmd.Options

	date             string
	markets          []string
	strategy         string
	top              int
	etfOnly          bool
	portfolioSize    float64
	adjustVolatility bool
	dryRun           bool
	targetsPath      string
}

func (f flags) allocateInput(c *cobra.Command) (*app.AllocateInput, error) {
	date, err := util.ParseDate(f.date)
	if err != nil {
		return nil, err
	}
	if _, err := domain.ParseMarketSet(f.markets); err != nil {
		return nil, err
	}
	in := &app.AllocateInput{
		Date:           date,
		AllowedMarkets: f.markets,
	}
	if c.Flags().Changed("strategy") {
		strategy := domain.AllocationStrategy(f.strategy)
		if strategy != domain.StrategySimple && strategy != domain.StrategyConvictionWeighted {
			return nil, fmt.Errorf("unknown strategy %q", f.strategy)
		}
		in.Strategy = &strategy
	}
	if c.Flags().Changed("top") {
		in.TopPerSector = &f.top
	}
	if c.Flags().Changed("etf-only") {
		in.EtfOnly = &f.etfOnly
	}
	if c.Flags().Changed("portfolio-size") {
		in.PortfolioSize = &f.portfolioSize
	}
	if c.Flags().Changed("adjust-volatility") {
		in.AdjustVolatility = &f.adjustVolatility
	}
	return in, nil
}

func printJson(v interface{}) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bytes))
	return nil
}

func readTargets(path string) (domain.Targets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	// accepts either a bare list or the /targets response shape
	list := []domain.Target{}
	if err := json.Unmarshal(data, &list); err != nil {
		wrapped := struct {
			Targets []domain.Target `json:"targets"`
		}{}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse targets file: %w", err)
		}
		list = wrapped.Targets
	}
	return domain.NewTargets(list)
}

func newRootCmd() *cobra.Command {
	f := &flags{opts: cmd.DefaultOptions()}

	root := &cobra.Command{
		Use:           "rebalance",
		Short:         "sector allocation and portfolio rebalancing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.opts.ConfigPath, "config", f.opts.ConfigPath, "strategy config json")
	pf.StringVar(&f.opts.InputDir, "input-dir", f.opts.InputDir, "directory with sector allocation and company rank files")
	pf.StringVar(&f.opts.PositionsPath, "positions", f.opts.PositionsPath, "positions file used when no db is configured")
	pf.StringVar(&f.opts.OutputDir, "output-dir", f.opts.OutputDir, "where trade logs are written")
	pf.StringVar(&f.opts.PriceFile, "price-file", "", "json of ticker -> price overrides")
	pf.BoolVar(&f.opts.NoSecrets, "no-secrets", false, "ignore the secrets file")
	pf.StringSliceVar(&f.markets, "markets", nil, "allowed markets, e.g. US,HK")
	pf.BoolVar(&f.dryRun, "dry-run", false, "generate trades without saving anything")

	allocFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&f.date, "date", "", "allocation date (YYYY-MM-DD)")
		c.Flags().StringVar(&f.strategy, "strategy", string(domain.StrategySimple), "simple or conviction-weighted")
		c.Flags().IntVar(&f.top, "top", 0, "candidates per sector")
		c.Flags().BoolVar(&f.etfOnly, "etf-only", false, "only suggest sector ETFs")
		c.Flags().Float64Var(&f.portfolioSize, "portfolio-size", 0, "report allocation amounts for this portfolio size")
		c.Flags().BoolVar(&f.adjustVolatility, "adjust-volatility", false, "reweight suggestions by inverse volatility")
	}

	allocateCmd := &cobra.Command{
		Use:   "allocate",
		Short: "print the sector allocation report",
		RunE: func(c *cobra.Command, args []string) error {
			in, err := f.allocateInput(c)
			if err != nil {
				return err
			}
			handler, err := cmd.InitializeDependencies(f.opts)
			if err != nil {
				return err
			}
			defer cmd.CloseDependencies(handler)

			report, err := handler.RebalancerHandler.Allocate(context.Background(), *in)
			if err != nil {
				return err
			}
			return printJson(report)
		},
	}
	allocFlags(allocateCmd)

	rebalanceCmd := &cobra.Command{
		Use:   "rebalance",
		Short: "generate trades from a targets file",
		RunE: func(c *cobra.Command, args []string) error {
			targets, err := readTargets(f.targetsPath)
			if err != nil {
				return err
			}
			if _, err := domain.ParseMarketSet(f.markets); err != nil {
				return err
			}
			handler, err := cmd.InitializeDependencies(f.opts)
			if err != nil {
				return err
			}
			defer cmd.CloseDependencies(handler)

			ctx, _, endProfile := domain.NewContextWithProfile(logger.NewContext(context.Background(), handler.Logger))
			defer endProfile()
			result, err := handler.RebalancerHandler.Rebalance(ctx, app.RebalanceInput{
				Targets:        targets,
				Now:            time.Now().UTC(),
				AllowedMarkets: f.markets,
				DryRun:         f.dryRun,
			})
			if err != nil {
				return err
			}
			return printJson(result)
		},
	}
	rebalanceCmd.Flags().StringVar(&f.targetsPath, "targets", "", "targets json file")
	_ = rebalanceCmd.MarkFlagRequired("targets")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "allocate, build targets and rebalance in one pass",
		RunE: func(c *cobra.Command, args []string) error {
			in, err := f.allocateInput(c)
			if err != nil {
				return err
			}
			handler, err := cmd.InitializeDependencies(f.opts)
			if err != nil {
				return err
			}
			defer cmd.CloseDependencies(handler)

			ctx := logger.NewContext(context.Background(), handler.Logger)
			result, err := handler.RebalancerHandler.Run(ctx, app.RunInput{
				Allocation: *in,
				Now:        time.Now().UTC(),
				DryRun:     f.dryRun,
			})
			if err != nil {
				return err
			}
			return printJson(result.Batch)
		},
	}
	allocFlags(runCmd)

	root.AddCommand(allocateCmd, rebalanceCmd, runCmd)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
