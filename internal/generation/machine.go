package generation

import (
	"fmt"
	"time"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseRunning       Phase = "running"
	PhaseAwaitingRetry Phase = "awaiting_retry"
	PhaseSucceeded     Phase = "succeeded"
	PhaseFailed        Phase = "failed"
	PhaseCancelled     Phase = "cancelled"
)

func (p Phase) Terminal() bool {
	switch p {
	case PhaseSucceeded, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// Policy bounds the retry loop and paces the progress simulation.
type Policy struct {
	MaxRetries   int
	BackoffBase  time.Duration
	TickInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		BackoffBase:  2 * time.Second,
		TickInterval: 3 * time.Second,
	}
}

// Backoff is the wait before the attempt that follows attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BackoffBase << attempt
}

// State is one immutable snapshot of a generation session. Pointer fields are
// replaced on every transition and never mutated in place.
type State struct {
	Phase           Phase            `json:"phase"`
	Prompt          string           `json:"prompt,omitempty"`
	Complexity      model.Complexity `json:"complexity,omitempty"`
	TimeoutBudgetMs int64            `json:"timeoutBudgetMs,omitempty"`
	Attempt         int              `json:"attempt"`
	MaxRetries      int              `json:"maxRetries"`
	Progress        *model.Progress  `json:"progress,omitempty"`
	Image           *model.Image     `json:"image,omitempty"`
	Message         string           `json:"message,omitempty"`
	Retryable       bool             `json:"retryable,omitempty"`
	RetryDelayMs    int64            `json:"retryDelayMs,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (s State) budget() time.Duration {
	return time.Duration(s.TimeoutBudgetMs) * time.Millisecond
}

type ResultKind int

const (
	ResultSuccess ResultKind = iota
	// ResultStatus is an error response from the generation service.
	ResultStatus
	ResultTimeout
	// ResultTransport is a failure to reach the service at all.
	ResultTransport
	ResultCancelled
)

// AttemptResult is what one attempt, or the wait after it, ended with.
type AttemptResult struct {
	Kind       ResultKind
	Image      *model.Image
	StatusCode int
	Message    string
}

// Transition is the output of Next. When Retry is set the caller waits Delay
// and then calls Resume on State.
type Transition struct {
	State State
	Delay time.Duration
	Retry bool
}

// Begin returns the Running state for a new session. A retry keeps the image
// currently on display; a fresh start clears it.
func Begin(prev State, prompt string, attempt int, retry bool, p Policy) State {
	c := Classify(prompt)
	s := State{
		Phase:           PhaseRunning,
		Prompt:          prompt,
		Complexity:      c,
		TimeoutBudgetMs: Budget(c).Milliseconds(),
		Attempt:         attempt,
		MaxRetries:      p.MaxRetries,
	}
	if retry {
		s.Image = prev.Image
	}
	return s
}

// Resume moves an AwaitingRetry state into the next attempt.
func Resume(s State) State {
	if s.Phase != PhaseAwaitingRetry {
		return s
	}
	s.Phase = PhaseRunning
	s.Attempt++
	s.Progress = nil
	s.Message = ""
	s.RetryDelayMs = 0
	return s
}

// Next applies an attempt result to s. It is pure: scheduling the delay and
// starting the next attempt is up to the caller. Results arriving in a phase
// that cannot accept them leave s unchanged.
func Next(s State, r AttemptResult, p Policy) Transition {
	if r.Kind == ResultCancelled {
		if s.Phase != PhaseRunning && s.Phase != PhaseAwaitingRetry {
			return Transition{State: s}
		}
		return Transition{State: terminal(s, PhaseCancelled, MsgCancelled, false)}
	}
	if s.Phase != PhaseRunning {
		return Transition{State: s}
	}

	canRetry := s.Attempt < p.MaxRetries

	switch r.Kind {
	case ResultSuccess:
		done := CompleteProgress()
		s.Phase = PhaseSucceeded
		s.Image = r.Image
		s.Progress = &done
		s.Message = ""
		s.Retryable = false
		return Transition{State: s}

	case ResultStatus:
		retryable := isRetryableStatus(r.StatusCode)
		if retryable && canRetry {
			return awaitRetry(s, p)
		}
		return Transition{State: terminal(s, PhaseFailed, UserMessage(r.StatusCode, r.Message), retryable)}

	case ResultTimeout:
		if canRetry {
			return awaitRetry(s, p)
		}
		return Transition{State: terminal(s, PhaseFailed, TimeoutMessage(s.Complexity)+MsgRetriesReached, true)}

	case ResultTransport:
		if canRetry {
			return awaitRetry(s, p)
		}
		return Transition{State: terminal(s, PhaseFailed, MsgNetworkFailed, true)}
	}

	return Transition{State: s}
}

func awaitRetry(s State, p Policy) Transition {
	d := p.Backoff(s.Attempt)
	s.Phase = PhaseAwaitingRetry
	s.Progress = nil
	s.RetryDelayMs = d.Milliseconds()
	s.Message = fmt.Sprintf("Retrying generation (attempt %d/%d)...", s.Attempt+2, p.MaxRetries+1)
	return Transition{State: s, Delay: d, Retry: true}
}

func terminal(s State, phase Phase, msg string, retryable bool) State {
	s.Phase = phase
	s.Progress = nil
	s.Message = msg
	s.Retryable = retryable
	s.RetryDelayMs = 0
	return s
}
