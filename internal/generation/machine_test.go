package generation

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

func running(attempt int) State {
	s := Begin(State{}, "a cat", 0, false, DefaultPolicy())
	s.Attempt = attempt
	return s
}

func TestPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	assert.Equal(t, 2*time.Second, p.Backoff(0))
	assert.Equal(t, 4*time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(2))
}

func TestBegin(t *testing.T) {
	t.Parallel()

	img := &model.Image{ContentType: "image/png", Seed: 7}
	prev := State{Phase: PhaseFailed, Image: img, Message: "old"}

	fresh := Begin(prev, "a cat", 0, false, DefaultPolicy())
	assert.Equal(t, PhaseRunning, fresh.Phase)
	assert.Equal(t, model.Low, fresh.Complexity)
	assert.Equal(t, int64(120000), fresh.TimeoutBudgetMs)
	assert.Nil(t, fresh.Image)
	assert.Empty(t, fresh.Message)

	retry := Begin(prev, "a cat", 1, true, DefaultPolicy())
	assert.Same(t, img, retry.Image)
	assert.Equal(t, 1, retry.Attempt)
}

func TestNext_Success(t *testing.T) {
	t.Parallel()

	img := &model.Image{ContentType: "image/png"}
	tr := Next(running(1), AttemptResult{Kind: ResultSuccess, Image: img}, DefaultPolicy())

	assert.False(t, tr.Retry)
	assert.Equal(t, PhaseSucceeded, tr.State.Phase)
	assert.Same(t, img, tr.State.Image)
	require.NotNil(t, tr.State.Progress)
	assert.Equal(t, CompleteProgress(), *tr.State.Progress)
}

func TestNext_RetryableFailures(t *testing.T) {
	t.Parallel()

	results := map[string]AttemptResult{
		"429":       {Kind: ResultStatus, StatusCode: http.StatusTooManyRequests},
		"500":       {Kind: ResultStatus, StatusCode: http.StatusInternalServerError},
		"503":       {Kind: ResultStatus, StatusCode: http.StatusServiceUnavailable},
		"timeout":   {Kind: ResultTimeout},
		"transport": {Kind: ResultTransport, Message: "connection refused"},
	}

	for name, r := range results {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tr := Next(running(1), r, DefaultPolicy())
			assert.True(t, tr.Retry)
			assert.Equal(t, 4*time.Second, tr.Delay)
			assert.Equal(t, PhaseAwaitingRetry, tr.State.Phase)
			assert.Equal(t, int64(4000), tr.State.RetryDelayMs)
			assert.Nil(t, tr.State.Progress)
		})
	}
}

func TestNext_ExhaustedRetries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    AttemptResult
		want string
	}{
		{name: "503", r: AttemptResult{Kind: ResultStatus, StatusCode: http.StatusServiceUnavailable}, want: msgUnavailable},
		{name: "timeout", r: AttemptResult{Kind: ResultTimeout}, want: TimeoutMessage(model.Low) + MsgRetriesReached},
		{name: "transport", r: AttemptResult{Kind: ResultTransport}, want: MsgNetworkFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := Next(running(2), tt.r, DefaultPolicy())
			assert.False(t, tr.Retry)
			assert.Equal(t, PhaseFailed, tr.State.Phase)
			assert.Equal(t, tt.want, tr.State.Message)
			assert.True(t, tr.State.Retryable)
		})
	}
}

func TestNext_NonRetryableStatusFailsAtOnce(t *testing.T) {
	t.Parallel()

	tr := Next(running(0), AttemptResult{Kind: ResultStatus, StatusCode: http.StatusBadRequest, Message: "prompt rejected"}, DefaultPolicy())
	assert.False(t, tr.Retry)
	assert.Equal(t, PhaseFailed, tr.State.Phase)
	assert.Equal(t, "prompt rejected", tr.State.Message)
	assert.False(t, tr.State.Retryable)
}

func TestNext_CancelIsNeverRetried(t *testing.T) {
	t.Parallel()

	tr := Next(running(0), AttemptResult{Kind: ResultCancelled}, DefaultPolicy())
	assert.False(t, tr.Retry)
	assert.Equal(t, PhaseCancelled, tr.State.Phase)
	assert.Equal(t, MsgCancelled, tr.State.Message)

	waiting := Next(running(0), AttemptResult{Kind: ResultTimeout}, DefaultPolicy()).State
	tr = Next(waiting, AttemptResult{Kind: ResultCancelled}, DefaultPolicy())
	assert.Equal(t, PhaseCancelled, tr.State.Phase)
}

func TestNext_IgnoresResultsOutsideRunning(t *testing.T) {
	t.Parallel()

	done := State{Phase: PhaseSucceeded, Message: "kept"}
	for _, k := range []ResultKind{ResultSuccess, ResultStatus, ResultTimeout, ResultTransport, ResultCancelled} {
		tr := Next(done, AttemptResult{Kind: k, StatusCode: http.StatusServiceUnavailable}, DefaultPolicy())
		assert.Equal(t, done, tr.State)
		assert.False(t, tr.Retry)
	}
}

func TestResume(t *testing.T) {
	t.Parallel()

	waiting := Next(running(0), AttemptResult{Kind: ResultTransport}, DefaultPolicy()).State
	next := Resume(waiting)

	assert.Equal(t, PhaseRunning, next.Phase)
	assert.Equal(t, 1, next.Attempt)
	assert.Empty(t, next.Message)
	assert.Zero(t, next.RetryDelayMs)

	assert.Equal(t, running(0), Resume(running(0)))
}
