// Package service ties the studio components together: the recipient book,
// bulk dispatch with its delivery cache, and generation history.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/LeventeLantos/royal-studio/internal/cache"
	"github.com/LeventeLantos/royal-studio/internal/dispatch"
	"github.com/LeventeLantos/royal-studio/internal/generation"
	"github.com/LeventeLantos/royal-studio/internal/imagestore"
	"github.com/LeventeLantos/royal-studio/internal/model"
	"github.com/LeventeLantos/royal-studio/internal/recipient"
	"github.com/LeventeLantos/royal-studio/internal/repo"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrHistoryDisabled = errors.New("generation history is not configured")
	ErrCacheDisabled   = errors.New("delivery cache is not configured")
)

type SMSClient interface {
	SendSMS(ctx context.Context, to, message string) error
}

type ImageStore interface {
	Put(ctx context.Context, key string, img *model.Image) (string, error)
}

// Deps are the collaborators of a Studio. Deliveries, History and Images
// are optional.
type Deps struct {
	Book       *recipient.Book
	Dispatcher *dispatch.Dispatcher
	SMS        SMSClient
	Deliveries cache.DeliveryCache
	History    repo.HistoryRepository
	Images     ImageStore
	Retention  time.Duration
	Clock      clock.PassiveClock
	Logger     *slog.Logger
}

type Studio struct {
	book       *recipient.Book
	dispatcher *dispatch.Dispatcher
	sms        SMSClient
	deliveries cache.DeliveryCache
	history    repo.HistoryRepository
	images     ImageStore
	retention  time.Duration
	clock      clock.PassiveClock
	log        *slog.Logger
	newID      func() string
}

func NewStudio(d Deps) *Studio {
	s := &Studio{
		book:       d.Book,
		dispatcher: d.Dispatcher,
		sms:        d.SMS,
		deliveries: d.Deliveries,
		history:    d.History,
		images:     d.Images,
		retention:  d.Retention,
		clock:      d.Clock,
		log:        d.Logger,
		newID:      uuid.NewString,
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	s.dispatcher.WithHooks(s.onSending, s.onDelivered, s.onFailed)
	return s
}

func (s *Studio) Book() *recipient.Book {
	return s.book
}

// BulkSend dispatches message to the selected recipients of the book and
// writes the reconciled delivery state back into it.
func (s *Studio) BulkSend(ctx context.Context, message string) (dispatch.Result, error) {
	res, err := s.dispatcher.Dispatch(ctx, message, s.book.Snapshot())
	if err != nil {
		return res, err
	}
	if res.Attempted {
		s.book.Apply(res.Recipients)
	}
	return res, nil
}

// SendSMS sends one message to a single phone number.
func (s *Studio) SendSMS(ctx context.Context, to, message string) error {
	phone, err := recipient.NormalizePhone(to)
	if err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}

	err = s.sms.SendSMS(ctx, phone, message)

	d := cache.Delivery{Phone: phone, Status: model.Success, At: s.clock.Now()}
	if err != nil {
		d.Status = model.Error
		d.ErrorDetail = err.Error()
	}
	s.remember(ctx, d)

	if err != nil {
		return fmt.Errorf("send sms to %s: %w", phone, err)
	}
	return nil
}

// LastDelivery returns the cached outcome of the last message sent to phone.
func (s *Studio) LastDelivery(ctx context.Context, phone string) (cache.Delivery, error) {
	if s.deliveries == nil {
		return cache.Delivery{}, ErrCacheDisabled
	}
	normalized, err := recipient.NormalizePhone(phone)
	if err != nil {
		return cache.Delivery{}, err
	}
	return s.deliveries.LastDelivery(ctx, normalized)
}

// RecordGeneration stores a succeeded generation in the history, uploading
// the image first when object storage is configured. Failures are logged.
func (s *Studio) RecordGeneration(ctx context.Context, st generation.State) {
	if s.history == nil || st.Phase != generation.PhaseSucceeded || st.Image == nil {
		return
	}

	rec := model.GenerationRecord{
		ID:         s.newID(),
		Prompt:     st.Prompt,
		Width:      st.Image.Width,
		Height:     st.Image.Height,
		Seed:       st.Image.Seed,
		Complexity: st.Complexity,
		Attempts:   st.Attempt + 1,
		CreatedAt:  s.clock.Now(),
	}

	if s.images != nil {
		url, err := s.images.Put(ctx, imagestore.ObjectKey(rec.ID, st.Image.ContentType), st.Image)
		if err != nil {
			s.log.Warn("image upload failed", "generation_id", rec.ID, "err", err)
		} else {
			rec.ImageURL = url
		}
	}

	if err := s.history.Insert(ctx, rec); err != nil {
		s.log.Error("generation history insert failed", "generation_id", rec.ID, "err", err)
		return
	}
	s.log.Info("generation recorded", "generation_id", rec.ID, "attempts", rec.Attempts)
}

func (s *Studio) History(ctx context.Context, limit, offset int) ([]model.GenerationRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, limit, offset)
}

// PruneHistory deletes history older than the retention window. It is the
// janitor scheduler's tick function.
func (s *Studio) PruneHistory(ctx context.Context) {
	if s.history == nil || s.retention <= 0 {
		return
	}

	cutoff := s.clock.Now().Add(-s.retention)
	n, err := s.history.PruneBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("history prune failed", "err", err)
		return
	}
	s.log.Info("history pruned", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
}

func (s *Studio) onSending(_ context.Context, rs []model.Recipient) {
	s.book.Apply(rs)
}

func (s *Studio) onDelivered(ctx context.Context, r model.Recipient) {
	s.remember(ctx, cache.Delivery{Phone: r.Phone, Status: r.DeliveryStatus, At: s.clock.Now()})
}

func (s *Studio) onFailed(ctx context.Context, r model.Recipient) {
	s.remember(ctx, cache.Delivery{Phone: r.Phone, Status: r.DeliveryStatus, ErrorDetail: r.ErrorDetail, At: s.clock.Now()})
}

func (s *Studio) remember(ctx context.Context, d cache.Delivery) {
	if s.deliveries == nil {
		return
	}
	if err := s.deliveries.StoreDelivery(ctx, d); err != nil {
		s.log.Warn("delivery cache write failed", "phone", d.Phone, "err", err)
	}
}
