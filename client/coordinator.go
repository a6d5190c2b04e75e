package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRefreshTimeout bounds one refresh call.
const DefaultRefreshTimeout = 10 * time.Second

// State is the refresh state of a [Coordinator].
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// RefreshFunc obtains a new access token.
type RefreshFunc func(ctx context.Context) (string, error)

// CoordinatorConfig configures [NewCoordinator]. Refresh and Tokens are
// required.
type CoordinatorConfig struct {
	Refresh RefreshFunc
	Tokens  *TokenHolder
	// Timeout bounds each refresh. Zero means DefaultRefreshTimeout.
	Timeout time.Duration
	// OnSessionEnd runs once per ended session: after a failed refresh,
	// before the waiters are rejected, or from EndSession.
	OnSessionEnd func(error)
	Logger       *slog.Logger
}

type outcome struct {
	token string
	err   error
}

type waiter struct {
	done chan outcome
}

type failure struct {
	stale string
	err   *RefreshError
}

// Coordinator makes sure concurrent refresh requests share one refresh call.
//
// In StateIdle the first [Coordinator.Await] becomes the driver: it moves the
// coordinator to StateRefreshing, joins the queue first, and starts the
// refresh. Later callers only join the queue. When the refresh settles, the
// queue is emptied in FIFO order and the state returns to StateIdle.
type Coordinator struct {
	refresh      RefreshFunc
	tokens       *TokenHolder
	timeout      time.Duration
	onSessionEnd func(error)
	logger       *slog.Logger

	mu    sync.Mutex
	state State
	queue []*waiter
	// last is the failed refresh that ended the session. Until Reset, a
	// request carrying the same stale token or no token at all is rejected
	// without a second refresh.
	last *failure
	// abort is set when the session ends while a refresh is running. That
	// refresh then settles as failed whatever it returns.
	abort *RefreshError

	refreshes atomic.Uint64
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Refresh == nil {
		return nil, errors.New("refresh func required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token holder required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		refresh:      cfg.Refresh,
		tokens:       cfg.Tokens,
		timeout:      timeout,
		onSessionEnd: cfg.OnSessionEnd,
		logger:       logger,
	}, nil
}

// State reports the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refreshes counts the refresh calls started so far.
func (c *Coordinator) Refreshes() uint64 {
	return c.refreshes.Load()
}

// Await returns an access token newer than stale, the token a request was
// rejected with. It refreshes only if no refresh is running and none has
// completed since stale was current.
//
// On refresh failure every waiter gets the same *RefreshError. Cancelling
// ctx abandons the wait but never the refresh itself.
func (c *Coordinator) Await(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if c.state == StateIdle {
		if cur := c.tokens.Get(); cur != "" && cur != stale {
			c.mu.Unlock()
			return cur, nil
		}
		if c.last != nil && (stale == "" || c.last.stale == stale) {
			err := c.last.err
			c.mu.Unlock()
			return "", err
		}

		c.state = StateRefreshing
		w := c.enqueueLocked()
		c.mu.Unlock()

		c.refreshes.Add(1)
		go c.run(ctx, stale)
		return c.wait(ctx, w)
	}

	w := c.enqueueLocked()
	c.mu.Unlock()
	return c.wait(ctx, w)
}

func (c *Coordinator) enqueueLocked() *waiter {
	w := &waiter{done: make(chan outcome, 1)}
	c.queue = append(c.queue, w)
	return w
}

func (c *Coordinator) wait(ctx context.Context, w *waiter) (string, error) {
	select {
	case o := <-w.done:
		return o.token, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run performs the refresh detached from the driver's cancellation, so one
// impatient caller cannot fail the whole queue.
func (c *Coordinator) run(parent context.Context, stale string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	var (
		token string
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("refresh panicked: %v", r)
			}
		}()
		token, err = c.refresh(ctx)
	}()
	if err == nil && token == "" {
		err = errors.New("refresh returned an empty token")
	}

	c.settle(stale, token, err)
}

func (c *Coordinator) settle(stale, token string, err error) {
	var rerr *RefreshError
	if err != nil {
		rerr = &RefreshError{cause: err}
	}

	c.mu.Lock()
	aborted := c.abort
	c.abort = nil
	switch {
	case aborted != nil:
		rerr = aborted
	case rerr == nil:
		c.tokens.Set(token)
		c.last = nil
	default:
		c.tokens.Clear()
		c.last = &failure{stale: stale, err: rerr}
	}
	queue := c.queue
	c.queue = nil
	c.state = StateIdle
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("token refresh failed", "waiters", len(queue), "error", err)
	}

	if aborted == nil && rerr != nil && c.onSessionEnd != nil {
		c.onSessionEnd(rerr)
	}

	for _, w := range queue {
		if rerr != nil {
			w.done <- outcome{err: rerr}
		} else {
			w.done <- outcome{token: token}
		}
	}
}

// EndSession ends the session without a refresh, for a token the server
// rejected as tampered or malformed. Until Reset, every Await fails with the
// returned error, and a refresh already running is discarded. It reports
// false, and does nothing, when token is no longer the current one.
func (c *Coordinator) EndSession(token string, cause error) (*RefreshError, bool) {
	rerr := &RefreshError{cause: cause}

	c.mu.Lock()
	if !c.tokens.ClearIf(token) {
		c.mu.Unlock()
		return nil, false
	}
	c.last = &failure{stale: token, err: rerr}
	if c.state == StateRefreshing {
		c.abort = rerr
	}
	c.mu.Unlock()

	c.logger.Warn("session ended by server", "error", cause)
	if c.onSessionEnd != nil {
		c.onSessionEnd(rerr)
	}
	return rerr, true
}

// Reset forgets a failed refresh. Call it after a new login.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}
