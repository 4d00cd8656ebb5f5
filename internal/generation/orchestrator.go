// Package generation drives image generation sessions: adaptive per-attempt
// timeouts, bounded retries with exponential backoff, user cancellation and a
// simulated progress feed.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/LeventeLantos/royal-studio/internal/client"
	"github.com/LeventeLantos/royal-studio/internal/model"
)

const maxSeed = 1_000_000

var (
	ErrBusy           = errors.New("a generation is already in flight")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrInvalidAttempt = errors.New("attempt out of range")

	// Cancellation causes of an attempt context.
	ErrCancelled = errors.New("generation cancelled")
	ErrTimedOut  = errors.New("generation attempt timed out")
)

type Generator interface {
	GenerateImage(ctx context.Context, req client.ImageRequest) (*model.Image, error)
}

// StartOptions selects the attempt to start from. Retry marks a user
// initiated retry, which keeps the current image on display.
type StartOptions struct {
	Attempt int
	Retry   bool
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithDimensions(width, height int) Option {
	return func(o *Orchestrator) {
		o.width = width
		o.height = height
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRandom replaces the sources of progress jitter and request seeds.
func WithRandom(jitter func() float64, seed func() int) Option {
	return func(o *Orchestrator) {
		o.jitter = jitter
		o.seed = seed
	}
}

// WithObserver registers fn to be called with every published state, in
// order. fn runs on the session goroutine and must not call Cancel.
func WithObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithSuccessHook registers fn to run after a session succeeded. A new
// session may already be started while fn runs.
func WithSuccessHook(fn func(ctx context.Context, s State)) Option {
	return func(o *Orchestrator) { o.onSucceeded = fn }
}

type Orchestrator struct {
	gen    Generator
	clock  clock.Clock
	policy Policy
	log    *slog.Logger
	jitter func() float64
	seed   func() int
	width  int
	height int

	observer    func(State)
	onSucceeded func(ctx context.Context, s State)

	mu     sync.Mutex
	state  State
	active *session
}

type session struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func New(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:    gen,
		clock:  clock.RealClock{},
		policy: DefaultPolicy(),
		log:    slog.Default(),
		jitter: rand.Float64,
		seed:   func() int { return rand.IntN(maxSeed) },
		width:  1024,
		height: 1024,
		state:  State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.state.MaxRetries = o.policy.MaxRetries
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// Start begins a session in the background and returns a channel closed once
// it reached a terminal phase. Cancelling ctx cancels the session.
func (o *Orchestrator) Start(ctx context.Context, prompt string, opts StartOptions) (<-chan struct{}, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if opts.Attempt < 0 || opts.Attempt > o.policy.MaxRetries {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidAttempt, opts.Attempt, o.policy.MaxRetries)
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	sctx, cancel := context.WithCancelCause(ctx)
	sess := &session{cancel: cancel, done: make(chan struct{})}
	o.active = sess

	st := Begin(o.state, prompt, opts.Attempt, opts.Retry, o.policy)
	st.UpdatedAt = o.clock.Now()
	o.state = st
	o.mu.Unlock()

	o.log.Info("generation started",
		"complexity", st.Complexity,
		"budget_ms", st.TimeoutBudgetMs,
		"attempt", st.Attempt,
		"retry", opts.Retry,
	)
	o.notify(st)

	go o.run(sctx, sess)
	return sess.done, nil
}

// Generate runs a session to completion and returns its terminal state.
func (o *Orchestrator) Generate(ctx context.Context, prompt string, opts StartOptions) (State, error) {
	done, err := o.Start(ctx, prompt, opts)
	if err != nil {
		return o.Snapshot(), err
	}
	<-done
	return o.Snapshot(), nil
}

// Cancel aborts the session in flight and waits until it settled as
// Cancelled. It reports whether there was anything to cancel.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	sess := o.active
	o.mu.Unlock()
	if sess == nil {
		return false
	}

	sess.cancel(ErrCancelled)
	<-sess.done
	return true
}

func (o *Orchestrator) run(ctx context.Context, sess *session) {
	defer sess.cancel(nil)

	var final State
	for {
		st := o.Snapshot()
		tr := Next(st, o.attempt(ctx, st), o.policy)
		o.publish(tr.State)

		if !tr.Retry {
			final = tr.State
			break
		}
		o.log.Warn("generation attempt failed, retrying",
			"attempt", st.Attempt,
			"delay_ms", tr.State.RetryDelayMs,
		)

		if !o.sleep(ctx, tr.Delay) {
			final = Next(tr.State, AttemptResult{Kind: ResultCancelled}, o.policy).State
			o.publish(final)
			break
		}
		o.publish(Resume(tr.State))
	}

	o.mu.Lock()
	o.active = nil
	o.mu.Unlock()

	o.log.Info("generation finished",
		"phase", final.Phase,
		"attempt", final.Attempt,
		"message", final.Message,
	)
	if final.Phase == PhaseSucceeded && o.onSucceeded != nil {
		o.onSucceeded(context.WithoutCancel(ctx), final)
	}
	close(sess.done)
}

type outcome struct {
	img *model.Image
	err error
}

// attempt performs one remote call bounded by the state's budget. Both timers
// are released on every exit path.
func (o *Orchestrator) attempt(ctx context.Context, st State) AttemptResult {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req := client.ImageRequest{
		Prompt: st.Prompt,
		Width:  o.width,
		Height: o.height,
		Seed:   o.seed(),
	}
	results := make(chan outcome, 1)
	go func() {
		img, err := o.gen.GenerateImage(actx, req)
		results <- outcome{img: img, err: err}
	}()

	timeout := o.clock.NewTimer(st.budget())
	defer timeout.Stop()
	tick := o.clock.NewTimer(o.policy.TickInterval)
	defer tick.Stop()

	progress := st.Progress
	for {
		select {
		case out := <-results:
			return classifyOutcome(actx, out)
		case <-actx.Done():
			return abortResult(actx)
		case <-timeout.C():
			cancel(ErrTimedOut)
		case <-tick.C():
			next := AdvanceProgress(progress, st.Complexity, st.budget(), o.jitter())
			progress = &next
			o.update(func(s *State) {
				if s.Phase == PhaseRunning {
					s.Progress = &next
				}
			})
			tick.Reset(o.policy.TickInterval)
		}
	}
}

// classifyOutcome prefers an abort cause over whatever the call returned, so
// a cancelled or timed out attempt is never read as a remote failure.
func classifyOutcome(actx context.Context, out outcome) AttemptResult {
	if actx.Err() != nil {
		return abortResult(actx)
	}
	if out.err == nil {
		return AttemptResult{Kind: ResultSuccess, Image: out.img}
	}

	var se *client.StatusError
	if errors.As(out.err, &se) {
		return AttemptResult{Kind: ResultStatus, StatusCode: se.StatusCode, Message: se.Message}
	}
	return AttemptResult{Kind: ResultTransport, Message: out.err.Error()}
}

func abortResult(actx context.Context) AttemptResult {
	if errors.Is(context.Cause(actx), ErrTimedOut) {
		return AttemptResult{Kind: ResultTimeout}
	}
	return AttemptResult{Kind: ResultCancelled}
}

// sleep waits d on the orchestrator clock. It returns false if ctx ended first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	t := o.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C():
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) publish(st State) {
	o.update(func(s *State) { *s = st })
}

func (o *Orchestrator) update(fn func(*State)) {
	o.mu.Lock()
	st := o.state
	fn(&st)
	st.UpdatedAt = o.clock.Now()
	o.state = st
	o.mu.Unlock()

	o.notify(st)
}

func (o *Orchestrator) notify(st State) {
	if o.observer != nil {
		o.observer(st)
	}
}
