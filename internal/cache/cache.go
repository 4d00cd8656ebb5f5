package cache

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

var ErrNotFound = errors.New("delivery not cached")

// Delivery is the last known outcome of a message sent to one phone.
type Delivery struct {
	Phone       string               `json:"phone"`
	Status      model.DeliveryStatus `json:"status"`
	ErrorDetail string               `json:"errorDetail,omitempty"`
	At          time.Time            `json:"at"`
}

type DeliveryCache interface {
	StoreDelivery(ctx context.Context, d Delivery) error
	LastDelivery(ctx context.Context, phone string) (Delivery, error)
}
