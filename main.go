// Package main provides the linkrot CLI entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/lukemcguire/linkrot/archive"
	"github.com/lukemcguire/linkrot/config"
	"github.com/lukemcguire/linkrot/crawler"
	"github.com/lukemcguire/linkrot/logging"
	"github.com/lukemcguire/linkrot/metrics"
	"github.com/lukemcguire/linkrot/result"
	"github.com/lukemcguire/linkrot/tui"
)

// Exit codes.
const (
	exitOK     = 0
	exitBroken = 1
	exitError  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options are the CLI settings that are not part of config.Config.
type options struct {
	configPath string
	noTUI      bool
}

// parseArgs loads the config file named by -config and applies every flag
// the user set explicitly on top of it. A positional argument is the base
// URL.
func parseArgs(args []string, stderr io.Writer) (config.Config, options, error) {
	fs := flag.NewFlagSet("linkrot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: linkrot [flags] <base-url>")
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	def := config.Default()
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "config file (yaml, toml or json)")
	fs.BoolVar(&opts.noTUI, "no-tui", false, "print plain output instead of the interactive UI")

	baseURL := fs.String("base-url", "", "publication base URL, e.g. https://example.substack.com")
	year := fs.Int("year", 0, "only check posts from this year")
	source := fs.String("source", def.Source, "where to find posts: archive, sitemap or auto")
	urlFile := fs.String("url-file", "", "read post URLs from this file instead of discovering them")
	concurrency := fs.Int("concurrency", def.Concurrency, "maximum concurrent requests")
	timeout := fs.Int("timeout", def.Timeout, "per-attempt timeout in seconds")
	archiveTimeout := fs.Int("archive-timeout", def.ArchiveTimeout, "archive and sitemap fetch timeout in seconds")
	maxAttempts := fs.Int("max-attempts", def.MaxAttempts, "attempts per link for transient failures")
	retryDelay := fs.Duration("retry-delay", def.RetryDelay, "base delay between attempts")
	maxRetryDelay := fs.Duration("max-retry-delay", def.MaxRetryDelay, "maximum delay between attempts")
	verbose := fs.Bool("verbose", false, "log every failed attempt")
	userAgent := fs.String("user-agent", def.UserAgent, "user agent string")
	includeInternal := fs.Bool("include-internal", false, "also check links to the publication itself")
	postsOnly := fs.Bool("posts-only", false, "check the post URLs themselves instead of their links")
	output := fs.String("output", "", "write results to this file instead of stdout")
	format := fs.String("format", def.Format, "output format: text, json or csv")
	writeURLs := fs.Bool("write-urls", false, "save discovered post URLs to <host>_archive_urls[_YEAR].txt")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn or error")
	logFile := fs.String("log-file", "", "write JSON logs to this rotating file")
	metricsFile := fs.String("metrics-file", "", "write Prometheus metrics to this file after the run")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, opts, err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.BaseURL = *baseURL
		case "year":
			cfg.Year = *year
		case "source":
			cfg.Source = *source
		case "url-file":
			cfg.URLFile = *urlFile
		case "concurrency":
			cfg.Concurrency = *concurrency
		case "timeout":
			cfg.Timeout = *timeout
		case "archive-timeout":
			cfg.ArchiveTimeout = *archiveTimeout
		case "max-attempts":
			cfg.MaxAttempts = *maxAttempts
		case "retry-delay":
			cfg.RetryDelay = *retryDelay
		case "max-retry-delay":
			cfg.MaxRetryDelay = *maxRetryDelay
		case "verbose":
			cfg.Verbose = *verbose
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "include-internal":
			cfg.IncludeInternal = *includeInternal
		case "posts-only":
			cfg.CheckPostsOnly = *postsOnly
		case "output":
			cfg.Output = *output
		case "format":
			cfg.Format = *format
		case "write-urls":
			cfg.WriteURLs = *writeURLs
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		}
	})
	if fs.NArg() > 0 {
		cfg.BaseURL = fs.Arg(0)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, opts, err
	}
	return cfg, opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	useTUI := !opts.noTUI && cfg.Output == "" && cfg.Format == config.FormatText && isTerminal(stdout)

	var console io.Writer = stderr
	if useTUI {
		console = nil
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: console})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	crawlCfg := crawler.Config{Config: cfg, Metrics: m}

	var (
		report *result.Report
		broken bool
		runErr error
	)
	if useTUI {
		report, broken, runErr = runTUI(ctx, cancel, crawlCfg, logger)
	} else {
		report, runErr = runPlain(ctx, crawlCfg, logger)
		broken = report != nil && report.Stats.BrokenCount > 0
	}

	if report != nil {
		if err := writeOutputs(cfg, report, stdout, stderr, !useTUI); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}
	if err := m.WriteFile(cfg.MetricsFile); err != nil {
		logger.Warn("could not write metrics", zap.Error(err))
	}

	if runErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return exitError
	}
	if broken {
		return exitBroken
	}
	return exitOK
}

func runTUI(ctx context.Context, cancel context.CancelFunc, cfg crawler.Config, logger *zap.Logger) (*result.Report, bool, error) {
	progressCh := make(chan crawler.Event, 100)
	crawlerInstance, err := crawler.New(cfg, progressCh, logger)
	if err != nil {
		return nil, false, err
	}

	program := tea.NewProgram(tui.NewModel(ctx, cancel, crawlerInstance, progressCh))
	finalModel, err := program.Run()
	if err != nil {
		return nil, false, fmt.Errorf("run interface: %w", err)
	}

	finalTUIModel := finalModel.(tui.Model)
	if finalTUIModel.Report() == nil && finalTUIModel.Err() == nil {
		return nil, false, errors.New("interrupted")
	}
	return finalTUIModel.Report(), finalTUIModel.HasBrokenLinks(), finalTUIModel.Err()
}

func runPlain(ctx context.Context, cfg crawler.Config, logger *zap.Logger) (*result.Report, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	crawlerInstance, err := crawler.New(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	return crawlerInstance.Run(ctx)
}

// writeOutputs writes the result list in the configured format and, if
// requested, the discovered post URLs. printText controls whether the text
// format is written at all; the TUI has already shown it.
func writeOutputs(cfg config.Config, report *result.Report, stdout, stderr io.Writer, printText bool) error {
	if cfg.WriteURLs && cfg.URLFile == "" && len(report.Posts) > 0 {
		name := archive.URLFileName(cfg.BaseURL, cfg.Year)
		if err := archive.WriteURLFile(name, report.Posts); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Saved %d post URLs to %s\nTo check them again, run:\n  linkrot -url-file %s %s\n",
			len(report.Posts), name, name, cfg.BaseURL)
	}

	if cfg.Format == config.FormatText && !printText && cfg.Output == "" {
		return nil
	}

	w := stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch cfg.Format {
	case config.FormatJSON:
		return result.WriteJSON(w, report.Links)
	case config.FormatCSV:
		return result.WriteCSV(w, report.Links)
	default:
		result.PrintReport(w, report)
		return nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
