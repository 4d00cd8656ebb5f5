package generation

import (
	"strings"
	"time"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

var highSignal = []string{
	"photorealistic", "hyperrealistic", "8k", "4k", "ultra detailed", "intricate",
	"cinematic", "professional photography", "studio lighting", "ray tracing",
	"volumetric", "atmospheric", "dramatic lighting", "bokeh", "depth of field",
}

var mediumSignal = []string{
	"detailed", "realistic", "beautiful", "artistic", "stylized", "rendered",
	"digital art", "concept art", "illustration", "painting", "portrait",
}

// Classify derives the complexity class of a prompt from keyword hits and
// length. Each keyword counts at most once.
func Classify(prompt string) model.Complexity {
	lower := strings.ToLower(prompt)
	high := countHits(lower, highSignal)
	medium := countHits(lower, mediumSignal)
	n := len([]rune(prompt))

	switch {
	case high >= 2 || n > 200:
		return model.High
	case high >= 1 || medium >= 2 || n > 100:
		return model.Medium
	default:
		return model.Low
	}
}

// Budget is the client-side timeout for one attempt of the given class.
func Budget(c model.Complexity) time.Duration {
	switch c {
	case model.High:
		return 240 * time.Second
	case model.Medium:
		return 180 * time.Second
	default:
		return 120 * time.Second
	}
}

func countHits(s string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(s, k) {
			n++
		}
	}
	return n
}
