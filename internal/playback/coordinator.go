package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/sentient-media-agent/internal/clock"
	"github.com/nerrad567/sentient-media-agent/internal/mpvipc"
)

// State is the coordinator's playback state.
type State string

const (
	StateUninitialized  State = "uninitialized"
	StateDefaultLoop    State = "default_loop"
	StatePlayingOneShot State = "playing_one_shot"
	StateStopped        State = "stopped"
)

const (
	defaultQueueSize = 16

	// reversionRetryDelay is how long to wait before retrying a reversion
	// that failed because the player was unavailable.
	reversionRetryDelay = 5 * time.Second

	// reversionTimeout bounds a timer-driven return to the default asset.
	reversionTimeout = 10 * time.Second

	// closeTimeout bounds player teardown once a close request is handled,
	// independent of how long the caller waits.
	closeTimeout = 10 * time.Second
)

var (
	// ErrUnknownAsset is returned when a selected asset is not in the catalog.
	ErrUnknownAsset = errors.New("playback: unknown asset")

	// ErrEngineUnavailable is returned when the player could not be
	// (re)started or did not accept the switch commands. State is unchanged.
	ErrEngineUnavailable = errors.New("playback: engine unavailable")

	// ErrAssetMissing is returned when a catalog asset's file is not on
	// disk. The switch is refused and the current asset keeps playing.
	ErrAssetMissing = errors.New("playback: asset file missing")

	// ErrClosed is returned for requests made after Close.
	ErrClosed = errors.New("playback: coordinator closed")
)

// Engine is the media player the coordinator drives.
type Engine interface {
	Start(ctx context.Context) error
	Alive() bool
	Tracked() bool
	Send(ctx context.Context, cmd mpvipc.Command) (*mpvipc.Response, error)
	Terminate(ctx context.Context) error
}

// Logger defines the logging interface for the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is a point-in-time copy of the coordinator's state.
type Snapshot struct {
	State State
	// Asset is empty when nothing is selected.
	Asset string
	// ReversionAt is zero when no reversion is armed.
	ReversionAt time.Time
}

// Transition describes a completed state change.
type Transition struct {
	From   State
	To     State
	Asset  string
	Reason string
	At     time.Time
}

// Options configures a Coordinator.
type Options struct {
	// GracePeriod is added to a one-shot asset's duration before reverting.
	GracePeriod time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger Logger

	// OnTransition is called on the coordinator goroutine after every
	// state change. It must not call back into the Coordinator.
	OnTransition func(Transition)

	// AssetExists reports whether an asset file is present. Defaults to
	// a stat of the path.
	AssetExists func(path string) bool
}

type requestKind int

const (
	reqStart requestKind = iota
	reqSelect
	reqStop
	reqRevert
	reqClose
	reqSync
)

type request struct {
	kind       requestKind
	ctx        context.Context
	asset      string
	generation uint64
	reply      chan error
}

// Coordinator owns the selected asset and serialises every transition
// through a single goroutine. External Select/Stop calls and timer-driven
// reversions are all messages on one queue, so at most one multi-command
// switch sequence is in flight at any time.
type Coordinator struct {
	engine       Engine
	catalog      *Catalog
	grace        time.Duration
	clock        clock.Clock
	logger       Logger
	onTransition func(Transition)
	assetExists  func(path string) bool

	requests chan request
	done     chan struct{}

	// Owned by the run goroutine.
	state       State
	current     *Asset
	timer       *clock.Timer
	generation  uint64
	reversionAt time.Time

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a Coordinator and starts its goroutine. The player is not
// launched until Start. Call Close to release the goroutine.
func New(engine Engine, catalog *Catalog, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.AssetExists == nil {
		opts.AssetExists = fileExists
	}

	c := &Coordinator{
		engine:       engine,
		catalog:      catalog,
		grace:        opts.GracePeriod,
		clock:        opts.Clock,
		logger:       opts.Logger,
		onTransition: opts.OnTransition,
		assetExists:  opts.AssetExists,
		requests:     make(chan request, defaultQueueSize),
		done:         make(chan struct{}),
		state:        StateUninitialized,
		snap:         Snapshot{State: StateUninitialized},
	}

	go c.run()
	return c
}

// Start launches the player and selects the default asset with looping
// enabled. Until it succeeds the coordinator stays uninitialized; a later
// Select retries the launch.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.do(ctx, request{kind: reqStart})
}

// Select switches playback to the named asset. Selecting the current
// asset is legal and reloads it.
//
// Returns:
//   - error: ErrUnknownAsset, ErrAssetMissing or ErrEngineUnavailable
//     (state unchanged), ErrClosed, or the context's error
func (c *Coordinator) Select(ctx context.Context, name string) error {
	return c.do(ctx, request{kind: reqSelect, asset: name})
}

// Stop cancels any pending reversion, quits and tears down the player,
// and enters StateStopped. It does not resume playback; callers select
// the default asset afterwards if they want it.
func (c *Coordinator) Stop(ctx context.Context) error {
	return c.do(ctx, request{kind: reqStop})
}

// Snapshot returns the current state without waiting on the coordinator
// goroutine, so it never blocks behind player I/O.
func (c *Coordinator) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// DefaultAsset returns the name of the catalog's default asset.
func (c *Coordinator) DefaultAsset() string {
	return c.catalog.Default().Name
}

// Close cancels timers, stops the player best-effort and ends the
// coordinator goroutine. The close request is queued even if ctx is already
// done, and teardown runs to completion on the coordinator goroutine; ctx
// only bounds how long Close waits for it. Calls after the goroutine has
// exited return nil.
func (c *Coordinator) Close(ctx context.Context) error {
	req := request{kind: reqClose, ctx: ctx}

	select {
	case c.requests <- req:
	case <-c.done:
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sync returns once every request queued before it has been handled.
func (c *Coordinator) sync(ctx context.Context) error {
	return c.do(ctx, request{kind: reqSync})
}

// do queues req and waits for its result.
func (c *Coordinator) do(ctx context.Context, req request) error {
	req.ctx = ctx
	req.reply = make(chan error, 1)

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		// A request handled just before close has already replied.
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// enqueue queues a request with no caller waiting on it.
func (c *Coordinator) enqueue(req request) {
	req.ctx = context.Background()
	select {
	case c.requests <- req:
	case <-c.done:
	}
}

// run is the coordinator goroutine.
func (c *Coordinator) run() {
	defer close(c.done)

	for req := range c.requests {
		var err error
		switch req.kind {
		case reqStart:
			err = c.handleStart(req.ctx)
		case reqSelect:
			err = c.handleSelect(req.ctx, req.asset, "select")
		case reqStop:
			c.handleStop(req.ctx, "stop")
		case reqRevert:
			c.handleRevert(req.generation)
		case reqSync:
		case reqClose:
			c.handleClose(req.ctx)
			return
		}

		if req.reply != nil {
			req.reply <- err
		}
	}
}

func (c *Coordinator) handleStart(ctx context.Context) error {
	if c.state != StateUninitialized {
		return nil
	}

	if !c.engine.Alive() {
		if err := c.engine.Start(ctx); err != nil {
			c.logger.Error("player failed to start", "error", err)
			return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}

	return c.handleSelect(ctx, c.catalog.Default().Name, "startup")
}

// handleSelect runs the switch sequence. Nothing is committed (state,
// current asset or timers) until every command has been delivered.
func (c *Coordinator) handleSelect(ctx context.Context, name, reason string) error {
	asset, ok := c.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}
	if !c.assetExists(asset.Path) {
		c.logger.Error("asset file not found", "asset", asset.Name, "path", asset.Path)
		return fmt.Errorf("%w: %s", ErrAssetMissing, asset.Path)
	}

	if err := c.ensureEngine(ctx); err != nil {
		return err
	}

	sequence := []mpvipc.Command{
		mpvipc.PlaylistClear(),
		mpvipc.LoadFile(asset.Path, mpvipc.LoadReplace),
		mpvipc.SetLoopFile(asset.Loop),
	}
	for _, cmd := range sequence {
		if _, err := c.engine.Send(ctx, cmd); err != nil {
			c.logger.Error("player command failed",
				"command", cmd.Name(),
				"asset", asset.Name,
				"error", err,
			)
			return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, cmd.Name(), err)
		}
	}

	c.cancelReversion()

	from := c.state
	c.current = &asset
	if asset.Loop {
		c.state = StateDefaultLoop
	} else {
		c.state = StatePlayingOneShot
		c.armReversion(asset.Duration + c.grace)
	}

	c.logger.Info("asset selected",
		"asset", asset.Name,
		"loop", asset.Loop,
		"reason", reason,
	)
	c.commit(from, reason)
	return nil
}

// ensureEngine restarts the player once if it has exited.
func (c *Coordinator) ensureEngine(ctx context.Context) error {
	if c.engine.Alive() {
		return nil
	}

	c.logger.Warn("player not running, restarting")
	if c.engine.Tracked() {
		// Clears the dead process's socket before relaunch.
		if err := c.engine.Terminate(ctx); err != nil {
			c.logger.Warn("cleaning up exited player", "error", err)
		}
	}
	if err := c.engine.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

func (c *Coordinator) handleStop(ctx context.Context, reason string) {
	c.cancelReversion()

	if c.engine.Tracked() {
		if c.engine.Alive() {
			if _, err := c.engine.Send(ctx, mpvipc.Quit()); err != nil {
				c.logger.Warn("quit command failed", "error", err)
			}
		}
		if err := c.engine.Terminate(ctx); err != nil {
			c.logger.Warn("terminating player", "error", err)
		}
	}

	from := c.state
	c.current = nil
	c.state = StateStopped
	c.logger.Info("playback stopped", "reason", reason)
	c.commit(from, reason)
}

// handleRevert returns to the default asset if generation still matches
// the armed timer. A timer that fired while being replaced is ignored.
func (c *Coordinator) handleRevert(generation uint64) {
	if generation != c.generation || c.timer == nil {
		c.logger.Debug("ignoring stale reversion", "generation", generation)
		return
	}
	c.timer = nil

	ctx, cancel := context.WithTimeout(context.Background(), reversionTimeout)
	defer cancel()

	if err := c.handleSelect(ctx, c.catalog.Default().Name, "reversion"); err != nil {
		c.logger.Error("reversion to default failed, retrying",
			"error", err,
			"retry_in", reversionRetryDelay,
		)
		c.armReversion(reversionRetryDelay)
		c.publishSnapshot()
	}
}

func (c *Coordinator) handleClose(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), closeTimeout)
	defer cancel()

	c.cancelReversion()
	if c.engine.Tracked() {
		c.handleStop(ctx, "shutdown")
	}
}

// armReversion schedules a return to the default asset after d.
func (c *Coordinator) armReversion(d time.Duration) {
	c.generation++
	gen := c.generation
	c.reversionAt = c.clock.Now().Add(d)
	c.timer = c.clock.AfterFunc(d, func() {
		c.enqueue(request{kind: reqRevert, generation: gen})
	})
	c.logger.Debug("reversion armed", "in", d, "generation", gen)
}

// cancelReversion stops the pending timer. Bumping the generation makes a
// timer that already fired, and is queued, a no-op.
func (c *Coordinator) cancelReversion() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.reversionAt = time.Time{}
}

func (c *Coordinator) commit(from State, reason string) {
	c.publishSnapshot()

	if c.onTransition != nil {
		t := Transition{From: from, To: c.state, Reason: reason, At: c.clock.Now()}
		if c.current != nil {
			t.Asset = c.current.Name
		}
		c.onTransition(t)
	}
}

func (c *Coordinator) publishSnapshot() {
	s := Snapshot{State: c.state, ReversionAt: c.reversionAt}
	if c.current != nil {
		s.Asset = c.current.Name
	}

	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
