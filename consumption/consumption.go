// Package consumption is a stand-in for a full temperature-curve household load model: it looks
// up a fixed weekday/hour kW diagram and converts to kWh per quarter. It exists so the scheduler
// core's cons[i] input has a concrete producer to exercise end to end.
package consumption

import (
	"context"
	"time"
)

// WeeklyDiagram is a kW figure per weekday (index 0 = Monday, matching the household consumption
// diagram format this was ported from) and hour of day (0-23).
type WeeklyDiagram [7][24]float64

// weekdayIndex converts Go's time.Weekday (Sunday = 0) into the diagram's Monday-first index.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Estimator produces per-quarter kWh consumption estimates from a WeeklyDiagram.
type Estimator struct{}

// NewEstimator returns an Estimator. It carries no state.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns kWh consumed per quarter in quarters, converting each quarter's diagram cell
// (a kW figure for that weekday and hour) to kWh by the quarter fraction (0.25h).
func (e *Estimator) Estimate(ctx context.Context, quarters []time.Time, diagram WeeklyDiagram) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(quarters))
	for i, q := range quarters {
		kW := diagram[weekdayIndex(q.Weekday())][q.Hour()]
		out[i] = kW * 0.25
	}
	return out, nil
}
