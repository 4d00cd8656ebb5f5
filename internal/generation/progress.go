package generation

import (
	"math"
	"time"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

const (
	progressCap         = 95
	minEstimatedSeconds = 5
)

const (
	StageInitializing = "Initializing AI models..."
	StageProcessing   = "Processing prompt..."
	StageComposition  = "Generating composition..."
	StageRendering    = "Rendering details..."
	StageEffects      = "Applying artistic effects..."
	StageFinalizing   = "Finalizing artwork..."
	StageComplete     = "Complete!"
)

// AdvanceProgress returns the progress after one more tick. prev is nil on
// the first tick. u must be in [0,1); the increment is u times the class'
// maximum step, and the result never exceeds 95%.
func AdvanceProgress(prev *model.Progress, c model.Complexity, budget time.Duration, u float64) model.Progress {
	if prev == nil {
		return model.Progress{
			Stage:            StageInitializing,
			Percent:          5,
			EstimatedSeconds: int(budget / time.Second),
		}
	}
	if prev.Percent >= progressCap {
		return *prev
	}

	next := prev.Percent + u*maxIncrement(c)
	return model.Progress{
		Stage:            stageFor(next, prev.Stage),
		Percent:          math.Min(next, progressCap),
		EstimatedSeconds: max(prev.EstimatedSeconds-3, minEstimatedSeconds),
	}
}

// CompleteProgress is the snapshot shown once a real image arrived.
func CompleteProgress() model.Progress {
	return model.Progress{Stage: StageComplete, Percent: 100}
}

func maxIncrement(c model.Complexity) float64 {
	switch c {
	case model.High:
		return 8
	case model.Medium:
		return 12
	default:
		return 15
	}
}

func stageFor(percent float64, prev string) string {
	switch {
	case percent < 20:
		return StageProcessing
	case percent < 40:
		return StageComposition
	case percent < 60:
		return StageRendering
	case percent < 80:
		return StageEffects
	case percent < 95:
		return StageFinalizing
	default:
		return prev
	}
}
