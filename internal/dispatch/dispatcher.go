// Package dispatch sends one message to many recipients in a single batched
// remote call and reconciles the per-address results back onto recipients.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/LeventeLantos/royal-studio/internal/client"
	"github.com/LeventeLantos/royal-studio/internal/model"
)

const (
	DetailUnknownResult = "unknown result"
	DetailNetworkError  = "network error"
	DetailBatchFailed   = "failed to send messages"

	statusSuccess = "success"
)

var ErrDispatchInFlight = errors.New("a bulk dispatch is already in flight")

type BulkClient interface {
	SendBulk(ctx context.Context, to []string, message string) ([]client.BulkResult, error)
}

type Dispatcher struct {
	client   BulkClient
	log      *slog.Logger
	inFlight atomic.Bool

	onSending   func(ctx context.Context, recipients []model.Recipient)
	onDelivered func(ctx context.Context, r model.Recipient)
	onFailed    func(ctx context.Context, r model.Recipient)
}

func New(c BulkClient, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{client: c, log: log}
}

// WithHooks registers observers. onSending sees the list right after the
// selected recipients were marked sending; onDelivered and onFailed are
// called once per selected recipient after reconciliation.
func (d *Dispatcher) WithHooks(
	onSending func(ctx context.Context, recipients []model.Recipient),
	onDelivered func(ctx context.Context, r model.Recipient),
	onFailed func(ctx context.Context, r model.Recipient),
) *Dispatcher {
	d.onSending = onSending
	d.onDelivered = onDelivered
	d.onFailed = onFailed
	return d
}

// Result is the outcome of one Dispatch call. Recipients is the full input
// list with reconciled delivery state; unselected entries are untouched.
type Result struct {
	Attempted  bool              `json:"attempted"`
	Recipients []model.Recipient `json:"recipients"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
}

// Dispatch sends message to every selected recipient. An empty message or an
// empty selection is a no-op. The only error is ErrDispatchInFlight; every
// remote failure is reported on the recipients instead.
func (d *Dispatcher) Dispatch(ctx context.Context, message string, recipients []model.Recipient) (Result, error) {
	out := model.CloneRecipients(recipients)
	if strings.TrimSpace(message) == "" || len(model.SelectedPhones(out)) == 0 {
		return Result{Recipients: out}, nil
	}

	if !d.inFlight.CompareAndSwap(false, true) {
		return Result{Recipients: out}, ErrDispatchInFlight
	}
	defer d.inFlight.Store(false)

	for i := range out {
		if out[i].Selected {
			out[i].DeliveryStatus = model.Sending
			out[i].ErrorDetail = ""
		}
	}
	if d.onSending != nil {
		d.onSending(ctx, model.CloneRecipients(out))
	}

	to := model.SelectedPhones(out)
	d.log.Info("bulk dispatch started", "recipients", len(to))

	results, err := d.client.SendBulk(ctx, to, message)
	if err != nil {
		detail := batchFailureDetail(err)
		d.log.Warn("bulk dispatch failed", "recipients", len(to), "detail", detail, "err", err)
		markSelected(out, model.Error, detail)
	} else {
		reconcile(out, results)
	}

	res := Result{Attempted: true, Recipients: out}
	for _, r := range out {
		if !r.Selected {
			continue
		}
		if r.DeliveryStatus == model.Success {
			res.Sent++
			if d.onDelivered != nil {
				d.onDelivered(ctx, r)
			}
			continue
		}
		res.Failed++
		if d.onFailed != nil {
			d.onFailed(ctx, r)
		}
	}

	d.log.Info("bulk dispatch completed", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// reconcile maps results by address onto the selected recipients. An address
// missing from results is a failure, never an implicit success.
func reconcile(rs []model.Recipient, results []client.BulkResult) {
	byTo := make(map[string]client.BulkResult, len(results))
	for _, r := range results {
		byTo[r.To] = r
	}

	for i := range rs {
		if !rs[i].Selected {
			continue
		}
		res, ok := byTo[rs[i].Phone]
		switch {
		case !ok:
			rs[i].DeliveryStatus = model.Error
			rs[i].ErrorDetail = DetailUnknownResult
		case res.Status == statusSuccess:
			rs[i].DeliveryStatus = model.Success
			rs[i].ErrorDetail = ""
		default:
			rs[i].DeliveryStatus = model.Error
			rs[i].ErrorDetail = res.Error
		}
	}
}

func markSelected(rs []model.Recipient, status model.DeliveryStatus, detail string) {
	for i := range rs {
		if rs[i].Selected {
			rs[i].DeliveryStatus = status
			rs[i].ErrorDetail = detail
		}
	}
}

func batchFailureDetail(err error) string {
	var se *client.StatusError
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		return DetailBatchFailed
	}
	return DetailNetworkError
}
