package nativebind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode selects how a Pool isolates its workers.
type Mode string

const (
	// ModeProcess runs each worker in its own child process, each with its own
	// copy of the native module.
	ModeProcess Mode = "process"

	// ModeGoroutine runs workers as goroutines sharing one Library. Workers
	// share no mutable Go state; each owns the handles it creates.
	ModeGoroutine Mode = "goroutine"
)

// DefaultWorkers is the pool degree used when Pool.Workers is zero.
const DefaultWorkers = 4

// Pool runs independent round trips, one per seed, on a fixed number of
// workers. Jobs never share handles or records. Completion order depends on
// the per-seed delay and does not affect results.
//
// A worker blocked in a native call is not interrupted; cancelling the
// context only stops waits, and in ModeProcess kills the children.
type Pool struct {
	// Library is the loaded module. In ModeProcess only its path and symbol
	// names are used; each child loads the module itself.
	Library *Library

	// Workers is the pool degree. Zero means DefaultWorkers.
	Workers int

	// Mode defaults to ModeProcess.
	Mode Mode

	// DelayUnit scales the wait between create and inspect, see DelayFor.
	DelayUnit time.Duration

	// Executable and Args start a child in ModeProcess. Executable defaults to
	// os.Executable(). The child must call WorkerMain when IsWorkerProcess.
	Executable string
	Args       []string

	// Env is appended to the children's environment.
	Env []string

	// Stdout and Stderr receive the children's output. Nil means os.Stdout
	// and os.Stderr, so native prints show up as if made in-process.
	Stdout io.Writer
	Stderr io.Writer

	// OnResult, if set, is called once per job in completion order. Calls are
	// serialized.
	OnResult func(res Result, err error)
}

// Run executes one round trip per seed and returns the results in seed order.
// Failed jobs leave a partial Result in their slot and contribute to the
// joined error. When ctx ends first, jobs already delivered keep their
// results and the rest fail with ctx's error.
func (p *Pool) Run(ctx context.Context, seeds []int32) ([]Result, error) {
	if p.Library == nil {
		return nil, errors.New("nativebind: pool has no library")
	}
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(seeds) {
		workers = len(seeds)
	}
	mode := p.Mode
	if mode == "" {
		mode = ModeProcess
	}

	log := Logger().With(zap.String("mode", string(mode)), zap.Int("workers", workers))
	log.Info("pool started", zap.Int("jobs", len(seeds)))
	start := time.Now()

	results := make([]Result, len(seeds))
	errs := make([]error, len(seeds))
	var (
		run     func(ctx context.Context, workers int, seeds []int32, report reportFunc) error
		emitMu  sync.Mutex
		emitted = make([]bool, len(seeds))
	)
	report := func(idx int, res Result, err error) {
		emitMu.Lock()
		defer emitMu.Unlock()
		results[idx] = res
		errs[idx] = err
		emitted[idx] = true
		log.Debug("job finished",
			zap.Int32("seed", res.Seed), zap.Int32("got", res.Got),
			zap.Int("worker", res.Worker), zap.Duration("elapsed", res.Elapsed), zap.Error(err))
		if p.OnResult != nil {
			p.OnResult(res, err)
		}
	}

	switch mode {
	case ModeGoroutine:
		run = p.runGoroutines
	case ModeProcess:
		run = p.runProcesses
	default:
		return nil, fmt.Errorf("nativebind: unknown pool mode %q", mode)
	}

	if len(seeds) > 0 {
		if err := run(ctx, workers, seeds, report); err != nil {
			return nil, err
		}
	}

	for i, ok := range emitted {
		if !ok {
			reason := ctx.Err()
			if reason == nil {
				reason = ErrWorkerExited
			}
			results[i] = Result{Seed: seeds[i]}
			errs[i] = fmt.Errorf("nativebind: seed %d not run: %w", seeds[i], reason)
		}
	}

	err := errors.Join(errs...)
	log.Info("pool finished", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	return results, err
}

type reportFunc func(idx int, res Result, err error)

// feed returns a channel yielding job indices until seeds run out, ctx ends,
// or done is closed. Runners close done once every consumer has returned.
func feed(ctx context.Context, done <-chan struct{}, n int) <-chan int {
	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return jobs
}

// interrupted folds ctx's error into a worker failure that happened because
// the pool killed the child on cancellation.
func interrupted(ctx context.Context, err error) error {
	cerr := ctx.Err()
	var we *WorkerError
	if cerr == nil || !errors.As(err, &we) || we.cause == nil {
		return err
	}
	we.cause = fmt.Errorf("%w: %w", cerr, we.cause)
	return err
}

func (p *Pool) runGoroutines(ctx context.Context, workers int, seeds []int32, report reportFunc) error {
	done := make(chan struct{})
	defer close(done)
	jobs := feed(ctx, done, len(seeds))
	pid := os.Getpid()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for idx := range jobs {
				seed := seeds[idx]
				res, err := RoundTrip(ctx, p.Library, seed, DelayFor(seed, p.DelayUnit))
				res.Worker = slot
				res.PID = pid
				if err != nil {
					err = newWorkerError(slot, pid, seed, err)
				}
				report(idx, res, err)
			}
		}(w)
	}
	wg.Wait()
	return nil
}

func (p *Pool) runProcesses(ctx context.Context, workers int, seeds []int32, report reportFunc) error {
	opts, err := p.spawnOptions()
	if err != nil {
		return err
	}

	procs := make([]*workerProcess, 0, workers)
	defer func() {
		for _, wp := range procs {
			if err := wp.close(); err != nil {
				Logger().Warn("worker exit", zap.Int("worker", wp.slot), zap.Int("pid", wp.pid), zap.Error(err))
			}
		}
	}()
	for w := 0; w < workers; w++ {
		wp, err := spawnWorker(w, opts)
		if err != nil {
			return err
		}
		procs = append(procs, wp)
	}

	stop := context.AfterFunc(ctx, func() {
		for _, wp := range procs {
			wp.kill()
		}
	})
	defer stop()

	done := make(chan struct{})
	defer close(done)
	jobs := feed(ctx, done, len(seeds))
	var wg sync.WaitGroup
	for _, wp := range procs {
		wg.Add(1)
		go func(wp *workerProcess) {
			defer wg.Done()
			for idx := range jobs {
				seed := seeds[idx]
				reply, err := wp.call(workerJob{Seed: seed, Delay: DelayFor(seed, p.DelayUnit)})
				if err != nil {
					report(idx, Result{Seed: seed, Worker: wp.slot, PID: wp.pid}, interrupted(ctx, err))
					// This child is gone; remaining jobs go to the others.
					return
				}
				if reply.Err != nil {
					report(idx, reply.Result, reply.Err)
					continue
				}
				report(idx, reply.Result, nil)
			}
		}(wp)
	}
	wg.Wait()
	return nil
}

func (p *Pool) spawnOptions() (spawnOptions, error) {
	exe := p.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return spawnOptions{}, fmt.Errorf("nativebind: locate executable for workers: %w", err)
		}
	}
	opts := spawnOptions{
		executable: exe,
		args:       p.Args,
		env:        p.Env,
		stdout:     p.Stdout,
		stderr:     p.Stderr,
		library:    p.Library.Path(),
		symbols:    p.Library.symbols,
	}
	if opts.stdout == nil {
		opts.stdout = os.Stdout
	}
	if opts.stderr == nil {
		opts.stderr = os.Stderr
	}
	return opts, nil
}
