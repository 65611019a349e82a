// qdclean runs the data quality pipeline over a tidy CSV: outlier detection
// and repair, liquidity and coverage filters, and a summary of what changed.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"quantdata/internal/clean"
	"quantdata/internal/config"
	"quantdata/internal/exporter"
	"quantdata/internal/infrastructure"
)

func main() {
	inPath := flag.String("in", "", "input tidy CSV (time,ticker,subtype,fields...)")
	outPath := flag.String("out", "cleaned.csv", "output CSV for the cleaned table")
	summaryPath := flag.String("summary", "summary.csv", "output CSV for the cleaning summary")
	cfgPath := flag.String("config", "", "config file (YAML); env vars override")
	method := flag.String("method", "", "outlier method: z_score, mad, iqr, ewma, atr, seasonal_decomp (default from config)")
	repair := flag.String("repair", "fcst", "repair method: fcst, fwd_fill, linear, cubic, akima, none")
	liquidity := flag.Bool("liquidity", false, "filter rows below the average trading value threshold")
	gaps := flag.Bool("gaps", false, "blank history before long missing-value gaps")
	minObs := flag.Bool("min-obs", false, "drop tickers with too few observations")
	dropTickers := flag.String("drop", "", "comma-separated tickers to drop")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: qdclean -in data.csv [-out cleaned.csv]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	if *method == "" {
		*method = cfg.Clean.OutlierMethod
	}

	tbl, err := exporter.ReadTable(*inPath)
	if err != nil {
		logger.Error("Failed to read input", slog.String("path", *inPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Loaded table",
		slog.String("path", *inPath),
		slog.Int("rows", tbl.Len()),
		slog.Int("columns", len(tbl.Columns())),
		slog.Int("tickers", len(tbl.Entities())))

	detector, err := clean.NewDetector(*method, clean.Options{
		Window: cfg.Clean.Window,
		Thresh: cfg.Clean.Thresh,
	})
	if err != nil {
		logger.Error("Bad outlier method", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cleaner := clean.NewCleaner(tbl, logger).FilterOutliers(detector)
	switch *repair {
	case "fcst":
		cleaner.RepairFromForecast()
	case "fwd_fill":
		cleaner.RepairForwardFill()
	case "linear", "cubic", "akima":
		cleaner.RepairInterpolate(clean.InterpMethod(*repair))
	case "none":
	default:
		logger.Error("Bad repair method", slog.String("repair", *repair))
		os.Exit(1)
	}
	if *liquidity {
		cleaner.FilterAvgTradingValue(cfg.Clean.TradingValThresh, cfg.Clean.TradingValWindow)
	}
	if *gaps {
		cleaner.FilterMissingGaps(cfg.Clean.GapWindow)
	}
	if *minObs {
		cleaner.FilterMinObs(cfg.Clean.MinObs)
	}
	if *dropTickers != "" {
		cleaner.FilterTickers(strings.Split(*dropTickers, ",")...)
	}
	if err := cleaner.Err(); err != nil {
		logger.Error("Cleaning failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := exporter.WriteTable(*outPath, cleaner.Table()); err != nil {
		logger.Error("Failed to write cleaned table", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := exporter.WriteSummary(*summaryPath, cleaner.Summary()); err != nil {
		logger.Error("Failed to write summary", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if removed := cleaner.Removed(); len(removed) > 0 {
		logger.Info("Tickers removed", slog.Int("count", len(removed)), slog.String("tickers", strings.Join(removed, ",")))
	}
	logger.Info("Cleaning complete",
		slog.String("out", *outPath),
		slog.String("summary", *summaryPath),
		slog.Int("rows", cleaner.Table().Len()))
}
