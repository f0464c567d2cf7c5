// Package session implements the per-engine session controller: the port
// reassignment handshake, the reboot notification state machine, and the
// dispose/release lifecycle that produces reattach records.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/interop"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/store"
	"github.com/loykin/warden/internal/topic"
)

var (
	// ErrDisposed is returned by every operation on a disposed or released
	// controller.
	ErrDisposed = errors.New("session: controller disposed")
	// ErrInvalidPort rejects a zero target port; zero is reserved for the
	// close handshake and never a valid assignment.
	ErrInvalidPort = errors.New("session: port must be nonzero")
	// ErrSuperseded resolves a pending port reassignment that lost to a newer
	// SetPort call.
	ErrSuperseded = errors.New("session: port reassignment superseded")
	// ErrLifetimeNotObserved guards APIValidated: the flag is not
	// synchronized against interop writes while the engine is alive.
	ErrLifetimeNotObserved = errors.New("session: api validation state unavailable until lifetime completes")
)

// NewAccessToken mints an unguessable interop access identifier.
func NewAccessToken() string { return uuid.NewString() }

// Proc is the slice of the process handle the controller needs.
type Proc interface {
	PID() int
	Startup(ctx context.Context) error
	Wait(ctx context.Context) (int, error)
	Exited() bool
	Terminate(ctx context.Context) error
	Detach()
	Close(ctx context.Context) error
}

// Options wires a Controller's collaborators.
type Options struct {
	Process   Proc
	Record    store.Record
	Artifact  *Artifact
	Channel   *interop.Channel
	Commander topic.Commander
	Store     store.Store  // optional; Save failures are logged, not fatal
	Sink      history.Sink // optional
	Tracker   io.Closer    // optional chat-tracking resource, closed on disposal
	Logger    *slog.Logger
}

// Controller supervises one engine session. It owns exactly one process
// handle, one reattach record, one interop registration, and (until
// released) one compiled-artifact handle.
//
// All handshake state is guarded by one exclusive lock so interop callbacks
// cannot interleave destructively with concurrent SetPort/ClosePort calls.
// Outbound topic sends happen outside the lock and are unordered relative to
// each other.
type Controller struct {
	mu sync.Mutex

	proc      Proc
	rec       store.Record
	artifact  *Artifact // nil once moved by Release
	channel   *interop.Channel
	commander topic.Commander
	store     store.Store
	sink      history.Sink
	tracker   io.Closer
	log       *slog.Logger

	// Port reassignment handshake. portClosed is the Closing state: the
	// engine was told to unbind and rec.Port is not currently meaningful.
	portClosed  bool
	pendingPort uint16
	portWaiter  chan error // cap 1; receives exactly one resolution

	// One-shot reboot flag: set by a world-reboot in the Armed state,
	// consumed (closing the port) by the next one.
	closeOnReboot bool
	rebootSeen    chan struct{} // rotated on every world-reboot

	apiValidated bool
	disposed     bool
}

// New registers the controller on the interop channel and returns it. The
// record must carry a minted access token and the live process's PID.
func New(opts Options) (*Controller, error) {
	if opts.Process == nil {
		return nil, errors.New("session: nil process")
	}
	if opts.Channel == nil {
		return nil, errors.New("session: nil interop channel")
	}
	if opts.Commander == nil {
		return nil, errors.New("session: nil topic commander")
	}
	if opts.Record.AccessToken == "" {
		return nil, errors.New("session: record has no access token")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	rec := opts.Record
	rec.PID = opts.Process.PID()
	if rec.RebootMode == "" {
		rec.RebootMode = store.RebootModeNormal
	}
	c := &Controller{
		proc:       opts.Process,
		rec:        rec,
		artifact:   opts.Artifact,
		channel:    opts.Channel,
		commander:  opts.Commander,
		store:      opts.Store,
		sink:       opts.Sink,
		tracker:    opts.Tracker,
		log:        log.With("instance", rec.Instance),
		rebootSeen: make(chan struct{}),
	}
	if err := opts.Channel.Register(rec.AccessToken, c); err != nil {
		return nil, err
	}
	return c, nil
}

// --- Getters ---

// Port returns the engine's bound game-world port, or zero while a port
// closure is in flight (the bound port is not meaningful then).
func (c *Controller) Port() (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return 0, ErrDisposed
	}
	if c.portClosed {
		return 0, nil
	}
	return c.rec.Port, nil
}

// RebootMode returns the engine's current reboot behavior.
func (c *Controller) RebootMode() (store.RebootMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return "", ErrDisposed
	}
	return c.rec.RebootMode, nil
}

// Primary reports whether this session is the authoritative one of a pair.
func (c *Controller) Primary() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false, ErrDisposed
	}
	return c.rec.Primary, nil
}

// CompiledArtifact returns the deployment handle the engine is running.
func (c *Controller) CompiledArtifact() (*Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	return c.artifact, nil
}

// Record returns a snapshot of the current reattach record.
func (c *Controller) Record() (store.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return store.Record{}, ErrDisposed
	}
	return c.rec, nil
}

// Process returns the owned process handle.
func (c *Controller) Process() (Proc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	return c.proc, nil
}

// Lifetime blocks until the engine process exits and returns its exit code.
func (c *Controller) Lifetime(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return 0, ErrDisposed
	}
	proc := c.proc
	c.mu.Unlock()
	return proc.Wait(ctx)
}

// APIValidated reports whether the engine validated against the supervisor
// API during its run. Only safe to read once the lifetime has completed;
// earlier reads are a caller bug and fail fast.
func (c *Controller) APIValidated() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false, ErrDisposed
	}
	if !c.proc.Exited() {
		return false, ErrLifetimeNotObserved
	}
	return c.apiValidated, nil
}

// --- Port reassignment handshake ---

// ClosePort asks the engine to unbind its game-world port. Idempotent: a
// second call in the Closing state succeeds without sending a command. On
// send failure the state is unchanged, so retries are safe.
func (c *Controller) ClosePort(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.portClosed {
		c.mu.Unlock()
		return nil
	}
	port, token := c.rec.Port, c.rec.AccessToken
	c.mu.Unlock()

	err := c.commander.Send(ctx, port, token, topic.CommandChangePort,
		map[string]string{topic.ParamNewPort: "0"})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.disposed {
		// Released or disposed mid-send; the snapshot the caller got must
		// stay authoritative.
		c.mu.Unlock()
		return ErrDisposed
	}
	c.portClosed = true
	c.mu.Unlock()
	c.log.Info("port closure acknowledged", "port", port)
	return nil
}

// SetPort moves the engine to port p. While the port is closed the new port
// is handed to the engine through the identify/online handshake and SetPort
// blocks until the engine confirms it is online; a newer SetPort call
// resolves any previous waiter with ErrSuperseded. With the port open the
// change is sent directly and the engine's acknowledgement is the result.
func (c *Controller) SetPort(ctx context.Context, p uint16) error {
	if p == 0 {
		return ErrInvalidPort
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.portClosed {
		if c.portWaiter != nil {
			c.portWaiter <- ErrSuperseded
		}
		w := make(chan error, 1)
		c.portWaiter = w
		c.pendingPort = p
		c.mu.Unlock()

		select {
		case err := <-w:
			return err
		case <-ctx.Done():
			c.mu.Lock()
			if c.portWaiter == w {
				c.portWaiter = nil
				c.pendingPort = 0
			}
			c.mu.Unlock()
			return ctx.Err()
		}
	}
	port, token := c.rec.Port, c.rec.AccessToken
	c.mu.Unlock()

	err := c.commander.Send(ctx, port, token, topic.CommandChangePort,
		map[string]string{topic.ParamNewPort: strconv.Itoa(int(p))})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.rec.Port = p
	c.mu.Unlock()
	c.commitPortChange(ctx, p)
	return nil
}

func (c *Controller) commitPortChange(ctx context.Context, p uint16) {
	metrics.IncPortReassignment(c.rec.Instance)
	c.persist(ctx)
	c.emit(ctx, history.EventPortChanged, fmt.Sprintf("port=%d", p))
	c.log.Info("game-world port changed", "port", p)
}

// --- Reboot state machine ---

// SetRebootMode changes what the engine does on its next world reboot.
// A no-op success when the engine is already in mode.
func (c *Controller) SetRebootMode(ctx context.Context, mode store.RebootMode) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.rec.RebootMode == mode {
		c.mu.Unlock()
		return nil
	}
	port, token := c.rec.Port, c.rec.AccessToken
	c.mu.Unlock()

	err := c.commander.Send(ctx, port, token, topic.CommandChangeRebootMode,
		map[string]string{topic.ParamMode: string(mode)})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.rec.RebootMode = mode
	c.mu.Unlock()
	c.persist(ctx)
	c.emit(ctx, history.EventRebootModeChange, string(mode))
	return nil
}

// NextReboot returns a channel closed when the engine next announces a world
// reboot. Each notification rotates the channel, so observers must
// re-subscribe after being woken; none can miss an event they subscribed
// before.
func (c *Controller) NextReboot() (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, ErrDisposed
	}
	return c.rebootSeen, nil
}

// --- Interop dispatch ---

// HandleInterop services one authenticated worker query. Unsupported
// commands are rejected without mutating any state.
func (c *Controller) HandleInterop(ctx context.Context, req interop.Request) interop.Response {
	switch req.Command {
	case interop.CommandIdentify:
		return c.handleIdentify()
	case interop.CommandOnline:
		return c.handleOnline(ctx)
	case interop.CommandAPIValidate:
		return c.handleAPIValidate()
	case interop.CommandWorldReboot:
		return c.handleWorldReboot(ctx)
	default:
		return interop.BadRequest("unsupported command: " + req.Raw)
	}
}

func (c *Controller) handleIdentify() interop.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return interop.BadRequest("session disposed")
	}
	if c.portClosed && c.portWaiter != nil {
		return interop.OK(map[string]any{"new_port": c.pendingPort})
	}
	return interop.OK(nil)
}

func (c *Controller) handleOnline(ctx context.Context) interop.Response {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return interop.BadRequest("session disposed")
	}
	committed := uint16(0)
	if c.portClosed && c.portWaiter != nil {
		committed = c.pendingPort
		c.rec.Port = committed
		c.portClosed = false
		c.portWaiter <- nil
		c.portWaiter = nil
		c.pendingPort = 0
	}
	c.mu.Unlock()
	if committed != 0 {
		c.commitPortChange(ctx, committed)
	}
	return interop.OK(nil)
}

func (c *Controller) handleAPIValidate() interop.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return interop.BadRequest("session disposed")
	}
	c.apiValidated = true
	return interop.OK(nil)
}

func (c *Controller) handleWorldReboot(ctx context.Context) interop.Response {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return interop.BadRequest("session disposed")
	}
	var body map[string]any
	if c.closeOnReboot {
		// Consume the one-shot flag; the response itself instructs the
		// engine to unbind.
		c.closeOnReboot = false
		c.portClosed = true
		body = map[string]any{"new_port": 0}
	} else {
		c.closeOnReboot = true
	}
	// Wake current observers and re-arm for the next reboot.
	woken := c.rebootSeen
	c.rebootSeen = make(chan struct{})
	c.mu.Unlock()
	close(woken)

	metrics.IncReboot(c.rec.Instance)
	c.emit(ctx, history.EventReboot, "")
	return interop.OK(body)
}

// --- Lifecycle ---

// Release detaches the controller from a still-running engine: the artifact
// handle is moved to the caller before disposal runs, the process handle is
// detached so nothing is signalled, and the up-to-date reattach record is
// returned for persistence. The controller is unusable afterwards.
func (c *Controller) Release(ctx context.Context) (store.Record, *Artifact, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return store.Record{}, nil, ErrDisposed
	}
	c.disposed = true
	art := c.artifact
	c.artifact = nil // moved; teardown must not close it
	rec := c.rec
	rec.UpdatedAt = time.Now().UTC()
	if c.portWaiter != nil {
		c.portWaiter <- ErrDisposed
		c.portWaiter = nil
	}
	close(c.rebootSeen) // wake reboot observers; no further events will come
	c.mu.Unlock()

	c.channel.Unregister(rec.AccessToken)
	c.proc.Detach()
	_ = c.proc.Close(ctx)
	if c.tracker != nil {
		_ = c.tracker.Close()
	}
	if c.store != nil {
		if err := c.store.Save(ctx, rec); err != nil {
			c.log.Warn("failed to persist reattach record on release", "err", err)
		}
	}
	c.emit(ctx, history.EventReleased, "")
	c.log.Info("session released; engine left running", "pid", rec.PID)
	return rec, art, nil
}

// Dispose tears the session down. The process handle's own Close decides
// whether the engine is signalled (it is, unless detached). Reentrant-safe:
// later calls are no-ops.
func (c *Controller) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	art := c.artifact
	c.artifact = nil
	token := c.rec.AccessToken
	if c.portWaiter != nil {
		c.portWaiter <- ErrDisposed
		c.portWaiter = nil
	}
	close(c.rebootSeen)
	c.mu.Unlock()

	c.channel.Unregister(token)
	err := c.proc.Close(ctx)
	if art != nil {
		_ = art.Close()
	}
	if c.tracker != nil {
		_ = c.tracker.Close()
	}
	return err
}

// --- Collaborator plumbing ---

// persist saves the current record. Failures are non-fatal: the worst case
// is a future reattachment seeing slightly stale port/reboot state.
func (c *Controller) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	c.rec.UpdatedAt = time.Now().UTC()
	rec := c.rec
	c.mu.Unlock()
	if err := c.store.Save(ctx, rec); err != nil {
		c.log.Warn("failed to persist reattach record", "err", err)
	}
}

func (c *Controller) emit(ctx context.Context, t history.EventType, detail string) {
	if c.sink == nil {
		return
	}
	c.mu.Lock()
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Instance:   c.rec.Instance,
		PID:        c.rec.PID,
		Port:       c.rec.Port,
		Detail:     detail,
	}
	c.mu.Unlock()
	if err := c.sink.Send(ctx, e); err != nil {
		c.log.Debug("history sink rejected event", "type", string(t), "err", err)
	}
}
