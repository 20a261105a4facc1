package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/extension"
	"github.com/wippyai/wasm-zmq/wasmhost"
)

// runGuest instantiates the guest, calls its entry and then dispatches
// poll callbacks into it until opts.duration elapses or ctx ends.
func runGuest(ctx context.Context, ext *extension.Extension, log *zap.Logger, opts options) error {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(context.Background())

	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	host := wasmhost.New(ext, wasmhost.WithLogger(log))
	if _, err := host.Instantiate(ctx, rt); err != nil {
		return fmt.Errorf("instantiate %s: %w", wasmhost.ModuleName, err)
	}

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	cfg := wazero.NewModuleConfig().
		WithName("guest").
		WithArgs(opts.wasmFile).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return fmt.Errorf("instantiate guest: %w", err)
	}
	defer func() {
		if err := host.Release(mod); err != nil {
			log.Debug("release guest", zap.Error(err))
		}
	}()

	entry, name, err := findEntry(mod, opts.entry)
	if err != nil {
		return err
	}
	fmt.Printf("Calling %s...\n", name)
	if _, err := entry.Call(ctx); err != nil {
		var exit *sys.ExitError
		if !errors.As(err, &exit) || exit.ExitCode() != 0 {
			return fmt.Errorf("call %s: %w", name, err)
		}
	}

	loop := ctx
	if opts.duration > 0 {
		var cancel context.CancelFunc
		loop, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	start := time.Now()
	if err := ext.Run(loop); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Debug("dispatch loop finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func findEntry(mod api.Module, name string) (api.Function, string, error) {
	if name != "" {
		if fn := mod.ExportedFunction(name); fn != nil {
			return fn, name, nil
		}
		return nil, "", fmt.Errorf("guest does not export %q", name)
	}
	for _, n := range []string{"run", "_start", "main"} {
		if fn := mod.ExportedFunction(n); fn != nil {
			return fn, n, nil
		}
	}
	return nil, "", fmt.Errorf("no entry point found; use -entry")
}
