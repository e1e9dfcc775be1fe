package nativebind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// EnvWorker marks a process started by a Pool in ModeProcess. Its value is the
// pool slot number.
const EnvWorker = "NATIVEBIND_WORKER"

// Pool children receive jobs on fd 3 and send replies on fd 4.
const (
	workerJobsFD    = 3
	workerRepliesFD = 4
)

// terminateGrace is how long a worker gets to exit after its job pipe closes
// before it is killed.
const terminateGrace = 5 * time.Second

// workerInit is the first frame a child receives.
type workerInit struct {
	Slot    int     `msgpack:"slot"`
	Library string  `msgpack:"library"`
	Symbols Symbols `msgpack:"symbols"`
}

// workerReady answers workerInit. LoadError is set when the child could not
// load the module.
type workerReady struct {
	PID       int    `msgpack:"pid"`
	LoadError string `msgpack:"load_error,omitempty"`
	Symbol    string `msgpack:"symbol,omitempty"`
}

type workerJob struct {
	Seed  int32         `msgpack:"seed"`
	Delay time.Duration `msgpack:"delay"`
}

type workerReply struct {
	Result Result       `msgpack:"result"`
	Err    *WorkerError `msgpack:"err,omitempty"`
}

// IsWorkerProcess reports whether this process was started as a pool worker.
// Programs that run a Pool in ModeProcess call it first thing in main (or
// TestMain) and hand control to WorkerMain when it returns true.
func IsWorkerProcess() bool {
	_, ok := os.LookupEnv(EnvWorker)
	return ok
}

// WorkerMain serves jobs on the pipes inherited from the parent pool and
// returns the process exit code.
func WorkerMain() int {
	in := os.NewFile(workerJobsFD, "nativebind-jobs")
	out := os.NewFile(workerRepliesFD, "nativebind-replies")
	for _, f := range []*os.File{in, out} {
		if fi, err := f.Stat(); err != nil || fi.Mode()&os.ModeNamedPipe == 0 {
			fmt.Fprintf(os.Stderr, "nativebind: worker pipes not inherited: %s is not a pipe\n", f.Name())
			return 2
		}
	}
	if err := ServeWorker(context.Background(), in, out); err != nil {
		fmt.Fprintf(os.Stderr, "nativebind: worker: %v\n", err)
		return 1
	}
	return 0
}

// ServeWorker runs the child side of the pool protocol: it reads the init
// frame, loads the module, then answers round trip jobs until r reaches EOF.
func ServeWorker(ctx context.Context, r io.ReadCloser, w io.WriteCloser) error {
	c := codec{s: MsgpackSerializer{}, t: NewFramedTransport(r, w)}
	defer c.t.Close()

	var hello workerInit
	if err := c.receive(&hello); err != nil {
		return fmt.Errorf("read init: %w", err)
	}

	pid := os.Getpid()
	log := Logger().With(zap.Int("worker", hello.Slot), zap.Int("pid", pid))

	lib, err := LoadLibrary(hello.Library, WithSymbols(hello.Symbols))
	if err != nil {
		ready := workerReady{PID: pid, LoadError: err.Error()}
		var le *ModuleLoadError
		if errors.As(err, &le) {
			ready.LoadError = le.Err.Error()
			ready.Symbol = le.Symbol
		}
		if serr := c.send(ready); serr != nil {
			return serr
		}
		return err
	}
	if err := c.send(workerReady{PID: pid}); err != nil {
		return err
	}

	for {
		var job workerJob
		if err := c.receive(&job); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read job: %w", err)
		}

		res, err := RoundTrip(ctx, lib, job.Seed, job.Delay)
		res.Worker = hello.Slot
		res.PID = pid
		reply := workerReply{Result: res}
		if err != nil {
			reply.Err = newWorkerError(hello.Slot, pid, job.Seed, err)
			log.Warn("round trip failed", zap.Int32("seed", job.Seed), zap.Error(err))
		}
		if err := c.send(reply); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}

// workerProcess is the parent's end of one pool child.
type workerProcess struct {
	slot  int
	pid   int
	cmd   *exec.Cmd
	c     codec
	waitc chan error
}

// spawnOptions describe how pool children are started.
type spawnOptions struct {
	executable string
	args       []string
	env        []string
	stdout     io.Writer
	stderr     io.Writer
	library    string
	symbols    Symbols
}

// spawnWorker starts a child, sends the init frame and waits for it to load
// the module.
func spawnWorker(slot int, opts spawnOptions) (*workerProcess, error) {
	jobsR, jobsW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	repliesR, repliesW, err := os.Pipe()
	if err != nil {
		jobsR.Close()
		jobsW.Close()
		return nil, err
	}

	cmd := exec.Command(opts.executable, opts.args...)
	if err := setExtraFiles(cmd, []*os.File{jobsR, repliesW}); err != nil {
		closeAll(jobsR, jobsW, repliesR, repliesW)
		return nil, err
	}
	cmd.Env = append(append(os.Environ(), opts.env...), EnvWorker+"="+strconv.Itoa(slot))
	cmd.Stdout = opts.stdout
	cmd.Stderr = opts.stderr

	if err := cmd.Start(); err != nil {
		closeAll(jobsR, jobsW, repliesR, repliesW)
		return nil, fmt.Errorf("nativebind: start worker %d: %w", slot, err)
	}
	// The child holds its own copies now.
	closeAll(jobsR, repliesW)

	wp := &workerProcess{
		slot:  slot,
		pid:   cmd.Process.Pid,
		cmd:   cmd,
		c:     codec{s: MsgpackSerializer{}, t: NewFramedTransport(repliesR, jobsW)},
		waitc: make(chan error, 1),
	}
	go func() {
		wp.waitc <- waitForExit(cmd)
	}()

	hello := workerInit{Slot: slot, Library: opts.library, Symbols: opts.symbols}
	if err := wp.c.send(hello); err != nil {
		wp.kill()
		return nil, wp.exitError(0, err)
	}
	var ready workerReady
	if err := wp.c.receive(&ready); err != nil {
		wp.kill()
		return nil, wp.exitError(0, err)
	}
	if ready.LoadError != "" {
		wp.close()
		return nil, &ModuleLoadError{Path: opts.library, Symbol: ready.Symbol, Err: errors.New(ready.LoadError)}
	}

	Logger().Debug("worker started", zap.Int("worker", slot), zap.Int("pid", wp.pid))
	return wp, nil
}

// call runs one job on the child. A transport failure means the child is gone.
func (wp *workerProcess) call(job workerJob) (workerReply, error) {
	var reply workerReply
	if err := wp.c.send(job); err != nil {
		return reply, wp.exitError(job.Seed, err)
	}
	if err := wp.c.receive(&reply); err != nil {
		return reply, wp.exitError(job.Seed, err)
	}
	return reply, nil
}

// exitError describes a child that stopped answering, including its exit
// status when it has already been reaped.
func (wp *workerProcess) exitError(seed int32, cause error) *WorkerError {
	msg := cause.Error()
	select {
	case err := <-wp.waitc:
		if err != nil {
			msg = err.Error()
		} else {
			msg = "exited with status 0"
		}
		wp.waitc <- err
	case <-time.After(100 * time.Millisecond):
	}
	return &WorkerError{
		Worker:  wp.slot,
		PID:     wp.pid,
		Seed:    seed,
		Message: msg,
		cause:   fmt.Errorf("%w: %v", ErrWorkerExited, cause),
	}
}

// close shuts the job pipe, which the child treats as a request to exit, and
// waits for it. A child that lingers past terminateGrace is killed.
func (wp *workerProcess) close() error {
	wp.c.t.Close()
	select {
	case err := <-wp.waitc:
		wp.waitc <- err
		return err
	case <-time.After(terminateGrace):
		wp.cmd.Process.Kill()
		err := <-wp.waitc
		wp.waitc <- err
		return err
	}
}

// kill stops the child immediately.
func (wp *workerProcess) kill() {
	if wp.cmd.Process != nil {
		wp.cmd.Process.Kill()
	}
	wp.c.t.Close()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}
