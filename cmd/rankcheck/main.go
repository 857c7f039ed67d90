// Command rankcheck runs one rank check from the command line and writes the
// report as CSV.
//
// Usage:
//
//	rankcheck -keywords keywords.csv -primary example.edu -competitors a.edu,b.edu [-out report.csv]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/fetcher"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/pixel"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/report"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/internal/serp/service"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/resilience"
	"golang.org/x/term"
)

const (
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiReset = "\033[0m"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	keywordsPath := flag.String("keywords", "", "CSV file with a Keyword column")
	primary := flag.String("primary", "", "primary site, e.g. example.edu")
	competitors := flag.String("competitors", "", "comma-separated competitor sites")
	apiKey := flag.String("api-key", "", "search API key (defaults to config or SU_SERP_API_KEY)")
	out := flag.String("out", "", "write the CSV report here instead of stdout")
	flag.Parse()

	if *keywordsPath == "" || *primary == "" {
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

	if err := run(ctx, cfg, *keywordsPath, *primary, *competitors, *apiKey, *out); err != nil {
		slog.Error("rank check failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, keywordsPath, primary, competitors, apiKey, out string) error {
	f, err := os.Open(keywordsPath)
	if err != nil {
		return fmt.Errorf("opening keywords: %w", err)
	}
	keywords, err := report.ReadKeywords(f)
	f.Close()
	if err != nil {
		return err
	}

	breaker := resilience.NewCircuitBreaker("serp", resilience.CircuitBreakerConfig{
		FailureThreshold:    cfg.SERP.BreakerThreshold,
		ResetTimeout:        cfg.SERP.BreakerReset,
		HalfOpenMaxRequests: 1,
		IsFailure:           fetcher.CountsAsOutage,
	})
	rankFetcher := fetcher.New(fetcher.NewClient(cfg.SERP, apiKey), fetcher.Options{
		Timeout: cfg.SERP.Timeout,
		Limit:   cfg.SERP.ResultCount,
		Breaker: breaker,
	})
	svc := service.New(rankFetcher, service.Options{
		Concurrency: cfg.SERP.Concurrency,
		Pixel:       pixel.NewEstimator(cfg.SERP.HeaderOffset, cfg.SERP.RowHeight),
	})

	rep, err := svc.Check(ctx, keywords, report.SiteList(primary, competitors))
	if err != nil {
		return err
	}

	dst := io.Writer(os.Stdout)
	if out != "" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer file.Close()
		dst = file
	}
	if err := rep.WriteCSV(dst); err != nil {
		return err
	}
	if out != "" {
		printSummary(os.Stdout, rep, term.IsTerminal(int(os.Stdout.Fd())))
		slog.Info("report written", "path", out, "keywords", len(rep.Records))
	}
	return nil
}

// printSummary prints one line per keyword with every site's rank, green
// when on the first page and red otherwise, followed by per-site totals.
func printSummary(w io.Writer, rep *report.Report, color bool) {
	for _, rec := range rep.Records {
		cells := make([]string, 0, len(rep.Sites))
		for _, site := range rep.Sites {
			rank := rec.Ranks[site]
			cells = append(cells, site+"="+paint(formatRank(rank), report.Highlight(rank), color))
		}
		fmt.Fprintf(w, "%-40s %s\n", rec.Keyword, strings.Join(cells, "  "))
	}
	fmt.Fprintln(w)
	for _, s := range rep.Summaries() {
		fmt.Fprintf(w, "%-30s first page %3d  ranked %3d  not ranked %3d\n",
			s.Site, s.FirstPage, s.Ranked, s.Unranked)
	}
}

func paint(text string, style report.Style, color bool) string {
	if !color {
		return text
	}
	code := ansiRed
	if style == report.StyleGood {
		code = ansiGreen
	}
	return code + text + ansiReset
}

func formatRank(rank *int) string {
	if rank == nil {
		return "-"
	}
	return strconv.Itoa(*rank)
}
