package recipient

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

var ErrNotFound = errors.New("recipient not found")

// Book is the in-memory list of SMS recipients backing the bulk panel.
// It is safe for concurrent use.
type Book struct {
	mu    sync.RWMutex
	items []model.Recipient
	newID func() string
}

func NewBook() *Book {
	return &Book{newID: uuid.NewString}
}

// Add normalizes phone and appends a new selected, idle recipient.
func (b *Book) Add(name, phone string) (model.Recipient, error) {
	p, err := NormalizePhone(phone)
	if err != nil {
		return model.Recipient{}, err
	}

	r := model.Recipient{
		ID:             b.newID(),
		Name:           strings.TrimSpace(name),
		Phone:          p,
		Selected:       true,
		DeliveryStatus: model.Idle,
	}
	if r.Name == "" {
		r.Name = p
	}

	b.mu.Lock()
	b.items = append(b.items, r)
	b.mu.Unlock()
	return r, nil
}

// ImportError describes one rejected import line.
type ImportError struct {
	Line   int    `json:"line"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// Import adds one recipient per non-empty line. Lines are "name,phone" or a
// bare phone. Rejected lines are reported and never stored.
func (b *Book) Import(text string) ([]model.Recipient, []ImportError) {
	var (
		added    []model.Recipient
		rejected []ImportError
	)

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, phone := "", line
		if idx := strings.LastIndex(line, ","); idx >= 0 {
			name, phone = line[:idx], line[idx+1:]
		}

		r, err := b.Add(name, phone)
		if err != nil {
			rejected = append(rejected, ImportError{Line: i + 1, Input: line, Reason: err.Error()})
			continue
		}
		added = append(added, r)
	}
	return added, rejected
}

func (b *Book) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, r := range b.items {
		if r.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (b *Book) SetSelected(id string, selected bool) (model.Recipient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].Selected = selected
			return b.items[i], nil
		}
	}
	return model.Recipient{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (b *Book) SelectAll(selected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		b.items[i].Selected = selected
	}
}

// Snapshot returns a copy of the current list.
func (b *Book) Snapshot() []model.Recipient {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.CloneRecipients(b.items)
}

// Apply copies delivery state from updated onto the entries with matching
// IDs. Entries removed in the meantime are skipped; selection flags are left
// as the user last set them.
func (b *Book) Apply(updated []model.Recipient) {
	byID := make(map[string]model.Recipient, len(updated))
	for _, r := range updated {
		byID[r.ID] = r
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if u, ok := byID[b.items[i].ID]; ok {
			b.items[i].DeliveryStatus = u.DeliveryStatus
			b.items[i].ErrorDetail = u.ErrorDetail
		}
	}
}
