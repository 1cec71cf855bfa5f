package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/facility-scraper/internal/archive"
	"github.com/GriffinCanCode/facility-scraper/internal/fetch"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/config"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/server"
	"github.com/GriffinCanCode/facility-scraper/internal/logging"
	"github.com/GriffinCanCode/facility-scraper/internal/output"
	"github.com/GriffinCanCode/facility-scraper/internal/scrape"
)

type flags struct {
	config   string
	url      string
	htmlFile string
	siteID   string
	out      string
	organize bool
	format   string
	archive  string
	logLevel string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "config.toml", "Site configuration file")
	flag.StringVar(&f.url, "url", "", "Facility URL to scrape")
	flag.StringVar(&f.htmlFile, "html", "", "Extract from a local HTML file instead of fetching (- for stdin)")
	flag.StringVar(&f.siteID, "site", "", "Site id whose rules apply to -html")
	flag.StringVar(&f.out, "out", "", "Write the result to this file")
	flag.BoolVar(&f.organize, "organize", false, "Write under ./output/YYYY-MM-DD/ when -out is not set")
	flag.StringVar(&f.format, "format", "toml", "Output format: toml, json or yaml")
	flag.StringVar(&f.archive, "archive", "", "Record the run in this SQLite archive")
	flag.StringVar(&f.logLevel, "log-level", "warn", "Log level")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, stdout io.Writer) error {
	if (f.url == "") == (f.htmlFile == "") {
		return errors.New("exactly one of -url or -html is required")
	}
	format, err := output.ParseFormat(f.format)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: f.logLevel})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sites, err := server.LoadSites(config.ScraperConfig{ConfigPath: f.config})
	if err != nil {
		return err
	}

	var opts []scrape.Option
	if f.archive != "" {
		store, err := archive.Open(ctx, f.archive)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, scrape.WithArchive(store))
	}
	s := scrape.New(sites, fetch.NewHTTPFetcher(fetch.DefaultConfig(), logger), logger, opts...)

	if f.htmlFile != "" {
		return extractFile(s, f, format, stdout)
	}

	resp := s.ScrapeFacility(ctx, f.url, scrape.Options{OutputPath: f.out, Organize: f.organize, Format: format})
	if resp.Err != nil {
		return resp.Err
	}
	if resp.OutputPath != "" {
		fmt.Fprintf(stdout, "Wrote %s\n", resp.OutputPath)
	} else {
		fmt.Fprint(stdout, resp.Output)
	}
	for _, c := range resp.Changes {
		fmt.Fprintf(stdout, "[%s] %s: %s\n", c.Severity, c.Type, c.Description)
	}
	if !resp.Success {
		return errors.New("no fields extracted")
	}
	return nil
}

func extractFile(s *scrape.Scraper, f flags, format output.Format, stdout io.Writer) error {
	if f.siteID == "" {
		return errors.New("-site is required with -html")
	}
	st, err := s.Sites().Site(f.siteID)
	if err != nil {
		return err
	}

	var data []byte
	if f.htmlFile == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(f.htmlFile)
	}
	if err != nil {
		return fmt.Errorf("read HTML: %w", err)
	}

	result, err := s.ExtractHTML(string(data), st.Rules())
	if err != nil {
		return err
	}
	content, err := output.Render(result, format)
	if err != nil {
		return err
	}
	if f.out == "" {
		fmt.Fprint(stdout, content)
		return nil
	}
	path, err := output.WriteFile(content, f.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}
