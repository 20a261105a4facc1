package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-zmq/extension"
)

type options struct {
	wasmFile    string
	entry       string
	duration    time.Duration
	maxPollers  int
	exclusive   bool
	interactive bool
	verbose     bool
	metrics     string
	config      string
}

func main() {
	var opts options
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to a guest module importing smzmq")
	flag.StringVar(&opts.entry, "entry", "", "Guest function to call (default: run, then _start)")
	flag.DurationVar(&opts.duration, "for", 0, "Keep dispatching poll callbacks this long after the entry returns (0: until interrupted)")
	flag.IntVar(&opts.maxPollers, "max-pollers", 0, "Limit concurrent pollers (0: no limit)")
	flag.BoolVar(&opts.exclusive, "exclusive", false, "Allow at most one poll per socket")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive console")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.StringVar(&opts.metrics, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flag.StringVar(&opts.config, "config", "", "YAML file with default option values")
	flag.Parse()

	if opts.config != "" {
		cfg, err := loadConfig(opts.config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.apply(&opts, explicitFlags(flag.CommandLine))
	}

	if opts.wasmFile == "" && !opts.interactive {
		fmt.Fprintln(os.Stderr, "Usage: smzmq -wasm <guest.wasm> [-entry name] [-for 10s] [-metrics :9090] [-config smzmq.yaml] [-v]")
		fmt.Fprintln(os.Stderr, "       smzmq -i  (interactive console; reads commands from stdin when not a terminal)")
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func run(opts options) error {
	log, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	loadOpts := []extension.Option{
		extension.WithLogger(log),
		extension.WithMaxPollers(opts.maxPollers),
		extension.WithExclusivePolling(opts.exclusive),
	}
	var reg *prometheus.Registry
	if opts.metrics != "" {
		reg = prometheus.NewRegistry()
		loadOpts = append(loadOpts, extension.WithMetrics(reg))
	}

	ext, err := extension.Load(loadOpts...)
	if err != nil {
		return fmt.Errorf("load extension: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if reg != nil {
		srv, err := serveMetrics(opts.metrics, reg, ext, log)
		if err != nil {
			_ = ext.Unload(context.Background())
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	switch {
	case opts.wasmFile != "":
		err = runGuest(ctx, ext, log, opts)
	case term.IsTerminal(int(os.Stdin.Fd())):
		err = runInteractive(ctx, ext)
	default:
		err = runLines(ctx, ext, os.Stdin, os.Stdout, opts.duration)
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if uerr := ext.Unload(shutdown); uerr != nil {
		log.Warn("unload", zap.Error(uerr))
		if err == nil {
			err = fmt.Errorf("unload: %w", uerr)
		}
	}
	return err
}
