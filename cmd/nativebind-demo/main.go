// Command nativebind-demo walks through the nativebind bindings against the
// reference module: it builds and mutates a mirrored record, runs four
// independent opaque-handle round trips in parallel, and hands a random array
// to the module.
//
// Build the module first with `make native`. With no arguments the demo uses
// built-in defaults; -config points at a YAML file overriding them.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/richinsley/nativebind"
)

func main() {
	if nativebind.IsWorkerProcess() {
		os.Exit(nativebind.WorkerMain())
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := nativebind.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	nativebind.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("demo failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg nativebind.Config) error {
	lib, err := nativebind.LoadLibrary(cfg.Library, nativebind.WithSymbols(cfg.Symbols))
	if err != nil {
		return err
	}

	record := lib.BuildMirroredRecord(cfg.Record.Buzz, cfg.Record.Broken, cfg.Record.HowMany)
	fmt.Println("Hello from Go!")
	fmt.Println(record)

	lib.MutateMirroredRecord(record)
	fmt.Println("Hello from Go!")
	fmt.Println(record)

	pool := &nativebind.Pool{
		Library:   lib,
		Workers:   cfg.Workers,
		Mode:      cfg.Mode,
		DelayUnit: cfg.DelayUnit,
		OnResult: func(res nativebind.Result, err error) {
			if err != nil {
				return
			}
			fmt.Printf("These two integers should be the same: %d, %d\n", res.Seed, res.Got)
		},
	}
	if _, err := pool.Run(ctx, cfg.Seeds); err != nil {
		return err
	}

	values, release, err := newArray(cfg.Array)
	if err != nil {
		return err
	}
	defer release()
	for i := range values {
		values[i] = rand.Float64()
	}
	fmt.Println(nativebind.FormatFloat64s(values, cfg.Array.Precision))
	lib.PrintNativeArray(nativebind.NewArray(values))
	return nil
}

// newArray allocates the demo array, guarded when configured.
func newArray(cfg nativebind.ArrayConfig) ([]float64, func(), error) {
	if !cfg.Guard {
		return make([]float64, cfg.Length), func() {}, nil
	}
	region, values, err := nativebind.GuardedFloat64s(cfg.Length)
	if err != nil {
		return nil, nil, err
	}
	return values, func() { region.Close() }, nil
}

func newLogger(cfg nativebind.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// Demo output goes to stdout; keep logs on stderr.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
