package generation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	mediumPadded := "portrait of an old fisherman " + strings.Repeat("x", 160-len("portrait of an old fisherman "))

	tests := []struct {
		name   string
		prompt string
		want   model.Complexity
	}{
		{name: "short plain prompt", prompt: "a cat", want: model.Low},
		{name: "one medium keyword", prompt: "a detailed cat", want: model.Low},
		{name: "two medium keywords", prompt: "a detailed portrait", want: model.Medium},
		{name: "one high keyword", prompt: "a cinematic cat", want: model.Medium},
		{name: "two high keywords", prompt: "photorealistic cat with bokeh", want: model.High},
		{name: "keyword case insensitive", prompt: "PHOTOREALISTIC cat, Bokeh", want: model.High},
		{name: "keyword counted once", prompt: "detailed detailed detailed", want: model.Low},
		{name: "160 chars with one medium keyword", prompt: mediumPadded, want: model.Medium},
		{name: "longer than 100", prompt: strings.Repeat("a", 101), want: model.Medium},
		{name: "exactly 100", prompt: strings.Repeat("a", 100), want: model.Low},
		{name: "longer than 200", prompt: strings.Repeat("a", 201), want: model.High},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.prompt))
		})
	}
}

func TestBudget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 120*time.Second, Budget(model.Low))
	assert.Equal(t, 180*time.Second, Budget(model.Medium))
	assert.Equal(t, 240*time.Second, Budget(model.High))
}
