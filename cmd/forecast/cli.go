package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/psx_forecast/internal/config"
	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/market"
	"github.com/dgnsrekt/psx_forecast/internal/types"
	"github.com/dgnsrekt/psx_forecast/internal/watchlist"
)

func newRootCmd(cfg *config.Config, src market.Source) *cobra.Command {
	var (
		steps    int
		asJSON   bool
		listFile string
	)

	root := &cobra.Command{
		Use:           "forecast <TICKER>",
		Short:         "Forecast monthly closing prices of a PSX stock",
		Long:          "Fetches daily closes from Yahoo Finance, fits a seasonal ARIMA model on month-end closes and prints the forecast with a hold or sell recommendation.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = cfg.ForecastSteps
			}
			f := forecast.New(src, forecast.Settings{
				Suffix:       cfg.TickerSuffix,
				HistoryYears: cfg.HistoryYears,
				Steps:        steps,
			})
			res, err := f.RunSteps(cmd.Context(), args[0], steps)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", types.MessageOf(err))
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	root.Flags().IntVarP(&steps, "steps", "n", 0, "months to forecast (1-24, default from FORECAST_STEPS)")
	root.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")

	wl := &cobra.Command{
		Use:   "watchlist",
		Short: "Print the recommended stocks to watch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := listFile
			if path == "" {
				path = cfg.WatchlistFile
			}
			entries, err := watchlist.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Here are some recommendations for stocks to watch:")
			for i, e := range entries {
				fmt.Fprintf(out, "%d. %s: %s\n", i+1, e.Ticker, e.Note)
			}
			return nil
		},
	}
	wl.Flags().StringVar(&listFile, "file", "", "YAML watch list, overrides DASHBOARD_WATCHLIST_FILE")
	root.AddCommand(wl)
	return root
}

func printResult(w io.Writer, res forecast.Result) error {
	fmt.Fprintf(w, "Current Price of %s: PKR %s\n\n", res.Ticker, res.CurrentPrice.StringFixed(2))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tForecast\t")
	for _, p := range res.Forecast {
		fmt.Fprintf(tw, "%s\t%.2f\t\n", p.Display, p.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nModel: %s on %d months (AIC %.1f)\n", res.Diagnostics.Order, res.Diagnostics.Observations, res.Diagnostics.AIC)
	fmt.Fprintf(w, "Recommendation: %s\n", res.Recommendation.Message)
	return nil
}
