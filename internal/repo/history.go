package repo

import (
	"context"
	"time"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

type HistoryRepository interface {
	Insert(ctx context.Context, rec model.GenerationRecord) error
	List(ctx context.Context, limit, offset int) ([]model.GenerationRecord, error)
	// PruneBefore deletes records created before cutoff and returns how many.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
