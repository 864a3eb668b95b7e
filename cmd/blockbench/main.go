package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/config"
	"github.com/ehrlich-b/go-blockbench/internal/fixture"
	"github.com/ehrlich-b/go-blockbench/internal/hostinfo"
	"github.com/ehrlich-b/go-blockbench/internal/logging"
	"github.com/ehrlich-b/go-blockbench/strategy"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "blockbench: %v\n", err)
		os.Exit(1)
	}
}

// bench is everything a round needs
type bench struct {
	cfg      config.Config
	opts     strategy.Options
	logger   *logging.Logger
	host     hostinfo.Info
	expected uint64
	verified bool // the fixture carries the pattern, so expected is meaningful
}

func run(args []string) error {
	flags := pflag.NewFlagSet("blockbench", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: blockbench [flags] [workers]\n\nFlags:\n%s", flags.FlagUsages())
	}
	cli := config.Default()
	config.BindFlags(flags, &cli)
	configPath := flags.String("config", "", "config file (JSON with comments)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	// The worker count may also be given positionally
	if flags.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %v", flags.Args()[1:])
	}
	if flags.NArg() == 1 {
		if _, err := strconv.Atoi(flags.Arg(0)); err != nil {
			return fmt.Errorf("invalid worker count %q", flags.Arg(0))
		}
		if err := flags.Set("workers", flags.Arg(0)); err != nil {
			return err
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, sources, err := config.Load(wd, *configPath, os.Environ(), flags, cli)
	if err != nil {
		return err
	}

	logConfig := logging.DefaultConfig()
	logConfig.Format = cfg.LogFormat
	if cfg.Verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)
	defer logger.Close()

	logger.Debug("configuration loaded",
		"global", sources.Global,
		"project", sources.Project,
		"explicit", sources.Explicit)

	opts, err := cfg.StrategyOptions()
	if err != nil {
		return err
	}
	metrics := blockbench.NewMetrics()
	opts.Logger = logger
	opts.Metrics = metrics

	b := &bench{cfg: cfg, opts: opts, logger: logger, host: hostinfo.Collect()}
	if err := b.prepareFixture(); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, metrics, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	dumpStacksOnSignal(logger)

	fmt.Printf("blockbench on %s\n", b.host)
	fmt.Printf("Send SIGUSR1 (kill -USR1 %d) to dump goroutine stacks\n", os.Getpid())

	switch {
	case cfg.Rounds > 0:
		return b.runRounds(ctx, cfg.Rounds)
	case isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()):
		repl := &REPL{bench: b, names: cfg.StrategyNames()}
		return repl.Run(ctx)
	default:
		return b.runRounds(ctx, 1)
	}
}

// prepareFixture creates the fixture if needed and checks it carries the
// expected pattern
func (b *bench) prepareFixture() error {
	geo := b.opts.Geometry
	if b.host.FitsInPageCache(geo.TotalBytes) {
		b.logger.Warn("fixture fits in RAM; results may measure the page cache",
			"size", hostinfo.FormatSize(geo.TotalBytes),
			"ram", hostinfo.FormatSize(b.host.TotalMemory))
	}

	st, err := fixture.Ensure(b.opts.Path, geo.TotalBytes, b.logger)
	if err != nil {
		return err
	}
	if st.Created {
		b.logger.Info("fixture created", "path", b.opts.Path, "size", hostinfo.FormatSize(st.Size))
	}

	ok, err := fixture.Verify(b.opts.Path)
	if err != nil {
		return err
	}
	if !ok {
		b.logger.Warn("fixture does not carry the expected pattern; checksums are not verified", "path", b.opts.Path)
	}
	b.verified = ok && !st.Short
	if b.verified {
		b.expected = fixture.PatternChecksum(geo)
	}
	return nil
}

// race runs one strategy once with fresh rings and prints its report
func (b *bench) race(ctx context.Context, name string) error {
	if b.cfg.DropCache {
		if err := fixture.DropCache(b.opts.Path); err != nil {
			b.logger.Warn("could not drop page cache", "error", err)
		}
	}
	s, err := strategy.New(name, b.opts)
	if err != nil {
		return err
	}
	b.logger.WithStrategy(name).Debug("racing", "workers", b.opts.Workers, "pattern", b.opts.Pattern.String())

	rep, err := s.Run(ctx)
	if err != nil {
		b.logger.WithStrategy(name).WithError(err).Error("round failed")
		return err
	}
	b.printReport(rep)
	if b.verified && rep.Checksum != b.expected {
		return blockbench.NewError(name, blockbench.ErrCodeInternal,
			fmt.Sprintf("checksum %d, want %d", rep.Checksum, b.expected))
	}
	return nil
}

func (b *bench) printReport(rep blockbench.Report) {
	fmt.Printf("%-14s sum=%d blocks=%d workers=%d in %v (%.0f IOPS, %s/s)\n",
		rep.Strategy, rep.Checksum, rep.Blocks, rep.Workers,
		rep.Elapsed.Round(time.Microsecond), rep.IOPS(), hostinfo.FormatSize(uint64(rep.Throughput())))
}

func (b *bench) runRounds(ctx context.Context, rounds int) error {
	for _, name := range b.cfg.StrategyNames() {
		for i := 0; i < rounds; i++ {
			if err := b.race(ctx, name); err != nil {
				return err
			}
		}
	}
	snap := b.opts.Metrics.Snapshot()
	b.logger.Info("done",
		"reads", snap.ReadOps,
		"read_errors", snap.ReadErrors,
		"scans", snap.Scans,
		"avg_latency_ns", snap.AvgLatencyNs,
		"p99_latency_ns", snap.LatencyP99Ns)
	return nil
}

func serveMetrics(addr string, metrics *blockbench.Metrics, logger *logging.Logger) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		blockbench.NewPrometheusCollector(metrics),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// dumpStacksOnSignal writes every goroutine's stack on SIGUSR1
func dumpStacksOnSignal(logger *logging.Logger) {
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== FULL GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])

			filename := fmt.Sprintf("blockbench-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				fmt.Fprintf(f, "Goroutine stack dump at %s\n", time.Now().Format(time.RFC3339))
				fmt.Fprintf(f, "Process ID: %d\n\n", os.Getpid())
				f.Write(buf[:n])
				fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()
}
