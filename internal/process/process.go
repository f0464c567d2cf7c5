package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/metrics"
)

// HungExitCode is the sentinel exit code reported when the real exit status
// could not be observed: the process ignored a kill past the termination
// ceiling, or it was a reattached process whose wait status belongs to
// another (long gone) parent.
const HungExitCode = -1

// terminateWait is the hard ceiling Terminate waits for the process to die
// before unblocking waiters through the emergency signal.
const terminateWait = 30 * time.Second

// attachPollInterval is how often a reattached (non-child) process is probed
// for liveness.
const attachPollInterval = 200 * time.Millisecond

// ErrOutputNotCaptured is returned by the output accessors when the
// corresponding buffer was not requested at construction time.
var ErrOutputNotCaptured = errors.New("process: output capture not enabled")

// Features abstracts the OS-specific process operations the supervisor
// delegates.
type Features interface {
	Suspend(pid int) error
	Resume(pid int) error
	Username(pid int) (string, error)
	Dump(ctx context.Context, pid int, path string) error
}

// Options configures a Process at construction.
type Options struct {
	Instance      string // instance label for metrics and logs
	WorkDir       string
	Env           []string
	CaptureOutput bool           // keep stdout/stderr/combined in memory
	Stdout        io.WriteCloser // optional rotating file for stdout
	Stderr        io.WriteCloser // optional rotating file for stderr
	Features      Features
	Logger        *slog.Logger
}

// Process wraps one OS process (spawned or reattached) behind a future-based
// lifetime. The lifetime resolves exactly once, either with the real exit
// code or with HungExitCode after the emergency signal fires.
type Process struct {
	mu       sync.Mutex
	pid      int
	instance string
	cmd      *exec.Cmd // nil when reattached

	features Features
	log      *slog.Logger

	started   chan struct{} // closed once the process is ready for input
	startOnce sync.Once
	exited    chan struct{} // closed exactly once when the lifetime resolves
	exitOnce  sync.Once
	exitCode  int
	emergency chan struct{} // closed to force lifetime resolution
	emOnce    sync.Once
	stopPoll  chan struct{} // stops the attach liveness poller
	pollOnce  sync.Once

	stdout   *captureBuffer // nil unless capture requested
	stderr   *captureBuffer
	combined *captureBuffer
	outFile  io.WriteCloser
	errFile  io.WriteCloser

	detached   bool
	terminated bool
}

func newProcess(opts Options) *Process {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	feats := opts.Features
	if feats == nil {
		feats = OSFeatures{}
	}
	p := &Process{
		instance:  opts.Instance,
		features:  feats,
		log:       log,
		started:   make(chan struct{}),
		exited:    make(chan struct{}),
		emergency: make(chan struct{}),
		stopPoll:  make(chan struct{}),
		outFile:   opts.Stdout,
		errFile:   opts.Stderr,
	}
	if opts.CaptureOutput {
		p.stdout = &captureBuffer{}
		p.stderr = &captureBuffer{}
		p.combined = &captureBuffer{}
	}
	return p
}

// Launch spawns a new engine process and returns its handle. The startup
// signal completes once the process looks ready to receive input; readiness
// probe failures are swallowed.
func Launch(name string, args []string, opts Options) (*Process, error) {
	p := newProcess(opts)

	// #nosec G204 -- executable and arguments come from operator config
	cmd := exec.Command(name, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}
	setSysProcAttr(cmd)
	cmd.Stdout = p.stdoutWriter()
	cmd.Stderr = p.stderrWriter()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", name, err)
	}
	p.cmd = cmd
	p.pid = cmd.Process.Pid

	go p.monitorChild(cmd)
	go p.probeReadiness()
	return p, nil
}

// Attach wraps an already-running process by PID. The startup signal
// completes immediately. The real exit code of a non-child process is
// unobservable, so the lifetime resolves with HungExitCode once the process
// disappears.
func Attach(pid int, opts Options) (*Process, error) {
	return Reattach(detector.Capture(pid), opts)
}

// Reattach wraps the process a reattach record describes. The recorded start
// time is compared against the live process, so a PID recycled since the
// record was written is refused rather than adopted.
func Reattach(id detector.Identity, opts Options) (*Process, error) {
	if !id.Alive() {
		return nil, fmt.Errorf("process: reattach: pid %d is gone or was recycled", id.PID)
	}
	p := newProcess(opts)
	p.pid = id.PID
	p.markStarted()
	go p.pollAttached(id)
	return p, nil
}

func (p *Process) stdoutWriter() io.Writer {
	ws := make([]io.Writer, 0, 3)
	if p.stdout != nil {
		ws = append(ws, p.stdout, p.combined)
	}
	if p.outFile != nil {
		ws = append(ws, p.outFile)
	}
	if len(ws) == 0 {
		return nil // exec falls back to /dev/null
	}
	return io.MultiWriter(ws...)
}

func (p *Process) stderrWriter() io.Writer {
	ws := make([]io.Writer, 0, 3)
	if p.stderr != nil {
		ws = append(ws, p.stderr, p.combined)
	}
	if p.errFile != nil {
		ws = append(ws, p.errFile)
	}
	if len(ws) == 0 {
		return nil
	}
	return io.MultiWriter(ws...)
}

// monitorChild races the real wait status against the emergency signal.
func (p *Process) monitorChild(cmd *exec.Cmd) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		p.resolve(exitCodeOf(err))
	case <-p.emergency:
		p.log.Warn("process lifetime resolved via emergency signal", "pid", p.pid)
		p.resolve(HungExitCode)
	}
	p.markStarted() // a dead process is trivially "done starting"
	p.closeFiles()
}

// pollAttached watches a reattached process until it disappears.
func (p *Process) pollAttached(id detector.Identity) {
	t := time.NewTicker(attachPollInterval)
	defer t.Stop()
	for {
		select {
		case <-p.emergency:
			p.resolve(HungExitCode)
			return
		case <-p.stopPoll:
			return
		case <-t.C:
			if !id.Alive() {
				p.log.Info("reattached process exited; exit code unobservable", "pid", id.PID)
				p.resolve(HungExitCode)
				p.closeFiles()
				return
			}
		}
	}
}

// probeReadiness completes the startup signal once the process appears to be
// waiting for input. Probe failures are swallowed and complete the signal
// immediately; a genuinely failed launch still surfaces through Wait.
func (p *Process) probeReadiness() {
	defer p.markStarted()
	for i := 0; i < 200; i++ {
		select {
		case <-p.exited:
			return
		default:
		}
		idle, err := inputIdle(p.pid)
		if err != nil {
			p.log.Debug("readiness probe failed; assuming ready", "pid", p.pid, "err", err)
			return
		}
		if idle {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (p *Process) markStarted() { p.startOnce.Do(func() { close(p.started) }) }

func (p *Process) resolve(code int) {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		close(p.exited)
	})
}

func (p *Process) triggerEmergency() { p.emOnce.Do(func() { close(p.emergency) }) }

func (p *Process) closeFiles() {
	p.mu.Lock()
	out, errW := p.outFile, p.errFile
	p.outFile, p.errFile = nil, nil
	p.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

// PID returns the OS process id.
func (p *Process) PID() int { return p.pid }

// Startup blocks until the process reports readiness (immediately for
// reattached processes) or the context is cancelled.
func (p *Process) Startup(ctx context.Context) error {
	select {
	case <-p.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the lifetime resolves and returns the exit code, or the
// context error if cancelled first. It may be called any number of times.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.exited:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Exited reports whether the lifetime has resolved.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Terminate forcefully kills the process and waits up to the termination
// ceiling for it to exit. Idempotent: a no-op when already exited. When the
// ceiling is exceeded the emergency signal unblocks Wait with HungExitCode;
// the orphaned process is only reported, never escalated further.
func (p *Process) Terminate(ctx context.Context) error {
	if p.Exited() {
		return nil
	}
	p.mu.Lock()
	already := p.terminated
	p.terminated = true
	pid := p.pid
	child := p.cmd != nil
	p.mu.Unlock()

	if !already {
		killTree(pid, child)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(terminateWait):
		p.log.Warn("process survived kill past termination ceiling; abandoning handle",
			"pid", pid, "ceiling", terminateWait)
		metrics.IncTerminationHang(p.instance)
		p.triggerEmergency()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach relinquishes the handle's claim on the OS process: Close will no
// longer signal it. Used when producing a reattach record.
func (p *Process) Detach() {
	p.mu.Lock()
	p.detached = true
	p.mu.Unlock()
}

// Close releases the handle. Unless Detach was called first, the underlying
// process is terminated. The attach poller is stopped only on the detached
// path: when terminating, it is the goroutine that resolves the lifetime
// once the kill lands, so it must outlive the kill.
func (p *Process) Close(ctx context.Context) error {
	p.mu.Lock()
	detached := p.detached
	p.mu.Unlock()
	if detached {
		p.pollOnce.Do(func() { close(p.stopPoll) })
		return nil
	}
	return p.Terminate(ctx)
}

// SetHighPriority raises the process scheduling priority. Best effort:
// failures are logged and swallowed.
func (p *Process) SetHighPriority() {
	if err := raisePriority(p.pid); err != nil {
		p.log.Warn("failed to raise process priority", "pid", p.pid, "err", err)
	}
}

// Suspend pauses the process. Failures are logged and returned: suspension
// is an explicit operator action and must be observable.
func (p *Process) Suspend() error {
	if err := p.features.Suspend(p.pid); err != nil {
		p.log.Error("failed to suspend process", "pid", p.pid, "err", err)
		return err
	}
	return nil
}

// Resume continues a suspended process. Failures are logged and returned.
func (p *Process) Resume() error {
	if err := p.features.Resume(p.pid); err != nil {
		p.log.Error("failed to resume process", "pid", p.pid, "err", err)
		return err
	}
	return nil
}

// Username returns the account name the process executes under.
func (p *Process) Username() (string, error) {
	return p.features.Username(p.pid)
}

// CreateDump writes a memory dump of the process to path.
func (p *Process) CreateDump(ctx context.Context, path string) error {
	return p.features.Dump(ctx, p.pid, path)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return HungExitCode
}
