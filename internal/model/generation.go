package model

import "time"

type Complexity string

const (
	Low    Complexity = "low"
	Medium Complexity = "medium"
	High   Complexity = "high"
)

// Progress is a locally simulated, advisory progress snapshot.
type Progress struct {
	Stage            string  `json:"stage"`
	Percent          float64 `json:"percent"`
	EstimatedSeconds int     `json:"estimatedSeconds"`
}

// Image is the payload of a successful generation.
type Image struct {
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
	Seed        int    `json:"seed"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// GenerationRecord is one persisted history entry.
type GenerationRecord struct {
	ID         string     `json:"id"`
	Prompt     string     `json:"prompt"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Seed       int        `json:"seed"`
	Complexity Complexity `json:"complexity"`
	Attempts   int        `json:"attempts"`
	ImageURL   string     `json:"imageUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
