package model

type DeliveryStatus string

const (
	Idle    DeliveryStatus = "idle"
	Sending DeliveryStatus = "sending"
	Success DeliveryStatus = "success"
	Error   DeliveryStatus = "error"
)

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case Idle, Sending, Success, Error:
		return true
	}
	return false
}

// Recipient is one addressable SMS target. Phone is always normalized
// ("+" followed by digits); see recipient.NormalizePhone.
type Recipient struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Phone          string         `json:"phone"`
	Selected       bool           `json:"selected"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	ErrorDetail    string         `json:"errorDetail,omitempty"`
}

// SelectedPhones returns the phones of the selected recipients in order.
func SelectedPhones(rs []Recipient) []string {
	var out []string
	for _, r := range rs {
		if r.Selected {
			out = append(out, r.Phone)
		}
	}
	return out
}

// CloneRecipients returns a shallow copy so callers can mutate entries freely.
func CloneRecipients(rs []Recipient) []Recipient {
	if rs == nil {
		return nil
	}
	out := make([]Recipient, len(rs))
	copy(out, rs)
	return out
}
