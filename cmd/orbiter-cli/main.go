package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"orbiter/internal/app"
	"orbiter/internal/backtest"
	"orbiter/internal/config"
	"orbiter/internal/domain"
	"orbiter/internal/gather"
	"orbiter/internal/strategy"
	"orbiter/internal/strategy/builtins"
	"orbiter/internal/util"
	"orbiter/pkg/orbiter"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: orbiter-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  strategies  List registered strategies\n")
	fmt.Fprintf(os.Stderr, "  backtest    Run a backtest and print a summary\n")
	fmt.Fprintf(os.Stderr, "  browse      Run a backtest and browse trades interactively\n")
	fmt.Fprintf(os.Stderr, "  prefetch    Warm the local bar cache for a list of tickers\n")
	fmt.Fprintf(os.Stderr, "\nRun 'orbiter-cli <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("orbiter-cli %s\n", version)
	case "strategies":
		err = runStrategies(ctx, os.Args[2:])
	case "backtest":
		err = runBacktest(ctx, os.Args[2:], false)
	case "browse":
		err = runBacktest(ctx, os.Args[2:], true)
	case "prefetch":
		err = runPrefetch(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are shared by commands that can run locally or remotely.
type commonFlags struct {
	remote  string
	config  string
	timeout time.Duration
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.remote, "remote", "", "orbiter-server gRPC address; runs locally when empty")
	fs.StringVar(&c.config, "config", os.Getenv("ORBITER_CONFIG"), "path to YAML config for local runs")
	fs.DurationVar(&c.timeout, "timeout", 10*time.Minute, "overall deadline")
}

func runStrategies(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	fs.Parse(args)

	var entries []strategy.Entry
	if cf.remote != "" {
		ctx, cancel := context.WithTimeout(ctx, cf.timeout)
		defer cancel()
		c, err := orbiter.NewClient(cf.remote)
		if err != nil {
			return err
		}
		defer c.Close()
		if entries, err = c.ListStrategies(ctx); err != nil {
			return err
		}
	} else {
		entries = builtins.NewRegistry().Entries()
	}
	fmt.Print(renderStrategies(entries))
	return nil
}

func runBacktest(ctx context.Context, args []string, interactive bool) error {
	name := "backtest"
	if interactive {
		name = "browse"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	reqPath := fs.String("f", "", "request file (.yaml, .yml or .json)")
	jsonOut := fs.Bool("json", false, "print the raw JSON response instead of a summary")
	fs.Parse(args)

	if *reqPath == "" {
		return fmt.Errorf("%s: -f is required", name)
	}
	req, err := loadRequest(*reqPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()

	var resp *backtest.Response
	if cf.remote != "" {
		c, err := orbiter.NewClient(cf.remote)
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err = c.Run(ctx, req)
		if err != nil {
			return err
		}
	} else {
		resp, err = runLocal(ctx, cf.config, req)
		if err != nil {
			return err
		}
	}

	switch {
	case *jsonOut:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case interactive:
		p := tea.NewProgram(newBrowser(resp), tea.WithAltScreen(), tea.WithMouseCellMotion())
		_, err := p.Run()
		return err
	default:
		fmt.Print(renderReport(resp))
		return nil
	}
}

func runPrefetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prefetch", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("ORBITER_CONFIG"), "path to YAML config")
	tickers := fs.String("tickers", "", "comma-separated tickers")
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", time.Now().UTC().Format(time.DateOnly), "end date (YYYY-MM-DD)")
	timespan := fs.String("timespan", "day", "bar timespan")
	rng := fs.Int("range", 1, "timespan multiplier")
	workers := fs.Int("workers", 4, "concurrent tickers")
	fs.Parse(args)

	if *tickers == "" {
		return fmt.Errorf("prefetch: -tickers is required")
	}
	start, err := backtest.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("prefetch: -from: %w", err)
	}
	end, err := backtest.ParseDate(*to)
	if err != nil {
		return fmt.Errorf("prefetch: -to: %w", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.Backend == "none" {
		return fmt.Errorf("prefetch: storage.backend is none, nothing to warm")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: util.ParseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	a, err := app.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	p := gather.NewPrefetcher(a.Fetcher, strings.Split(*tickers, ","),
		gather.DateRange{Start: start, End: end}, domain.Timespan(*timespan), *rng, *workers)
	err = p.Run(ctx)
	st := p.Stats()
	fmt.Printf("%s: %d tickers, %d bars, %d empty, %d failed in %s\n",
		p.Name(), st.Tickers, st.Bars, st.Empty, st.Failed, st.Elapsed.Round(time.Millisecond))
	return err
}

func runLocal(ctx context.Context, cfgPath string, req backtest.Request) (*backtest.Response, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	// Logs go to stderr so stdout stays a clean report.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	a, err := app.New(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	req.Settings = req.Settings.WithDefaults(a.Defaults)
	return a.Runner.Run(ctx, req)
}

// loadRequest reads a backtest request from a YAML or JSON file.
func loadRequest(path string) (backtest.Request, error) {
	var req backtest.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &req)
	default:
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		return req, fmt.Errorf("parsing %s: %w", path, err)
	}
	return req, nil
}
