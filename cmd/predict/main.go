// Command predict classifies the colleges of one cutoff dataset for a rank
// from the command line.
//
// Usage:
//
//	predict -file josaa_2024.xlsx -rank 4200 -quota AI -seat-type OPEN [-category Engineering] [-out result.xlsx]
//	predict -config configs/development.yaml -dataset josaa-2024 -rank 4200 -quota AI -seat-type OPEN
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/classifier"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/course"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/dataset"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/export"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/predictor/service"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
)

type options struct {
	dataset  string
	file     string
	query    classifier.Query
	category string
	out      string
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	var opts options
	flag.StringVar(&opts.dataset, "dataset", "", "configured dataset name (defaults to predictor.defaultDataset)")
	flag.StringVar(&opts.file, "file", "", "read this .xlsx or .csv file instead of a configured dataset")
	flag.IntVar(&opts.query.Rank, "rank", 0, "candidate rank")
	flag.StringVar(&opts.query.Quota, "quota", "", "quota, e.g. AI, HS, OS")
	flag.StringVar(&opts.query.SeatType, "seat-type", "", "seat type, e.g. OPEN, OBC-NCL")
	flag.StringVar(&opts.query.Gender, "gender", "", "gender pool (any when empty)")
	flag.StringVar(&opts.category, "category", "", "course category (all when empty)")
	flag.StringVar(&opts.out, "out", "", "also write the result workbook to this .xlsx path")
	flag.Parse()

	if opts.query.Rank < 1 || opts.query.Quota == "" || opts.query.SeatType == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		slog.Error("prediction failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, stdout io.Writer) error {
	granularity, err := course.ParseGranularity(cfg.Predictor.Granularity)
	if err != nil {
		return err
	}
	if opts.category != "" {
		if opts.query.Category, err = course.ParseCategory(opts.category, granularity); err != nil {
			return err
		}
	}
	cls, err := classifier.New(classifier.Config{
		Curve:            classifier.Curve{Cap: cfg.Predictor.ChanceCap, Floor: cfg.Predictor.ChanceFloor},
		IncludeDeviation: cfg.Predictor.IncludeDeviation,
		Granularity:      granularity,
	})
	if err != nil {
		return err
	}

	catalog, name := cfg.Predictor.Datasets, opts.dataset
	if opts.file != "" {
		name = strings.TrimSuffix(filepath.Base(opts.file), filepath.Ext(opts.file))
		catalog = map[string][]string{name: {opts.file}}
	} else if name == "" {
		name = cfg.Predictor.DefaultDataset
	}

	svc := service.New(dataset.NewCache(catalog, dataset.LoadNormalized, nil), cls, name, nil, nil)
	res, err := svc.Predict(ctx, name, opts.query)
	if err != nil {
		return err
	}

	printResult(stdout, res, cls.Config().IncludeDeviation)

	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", opts.out, err)
		}
		if err := export.WriteWorkbook(f, res, cls.Config().IncludeDeviation); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", opts.out, err)
		}
		slog.Info("workbook written", "path", opts.out)
	}
	return nil
}

func printResult(w io.Writer, res *classifier.Result, withDeviation bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range classifier.Buckets {
		rows := res.Bucket(b)
		fmt.Fprintf(tw, "%s (%d)\n", export.SheetName(b), len(rows))
		if len(rows) == 0 {
			fmt.Fprintln(tw)
			continue
		}
		fmt.Fprintln(tw, strings.Join(export.Columns(withDeviation), "\t"))
		for _, r := range rows {
			line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d",
				r.College, r.Course, r.Quota, r.SeatType, r.Gender, r.OpeningRank, r.ClosingRank, r.Chance)
			if withDeviation && r.Deviation != nil {
				line += fmt.Sprintf("\t%d", *r.Deviation)
			}
			fmt.Fprintln(tw, line)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
