// Package production is a deliberately simplified stand-in for a full solar-geometry/thermal
// model: it derives a clear-sky factor from the sun's altitude and attenuates it by forecast
// cloud cover, scaled by the panel's peak power. It exists so the scheduler core's prod[i] input
// has a concrete producer to exercise end to end; it does not model roof thermal lag, inverter
// clipping, or panel orientation splits.
package production

import (
	"context"
	"math"
	"time"

	"github.com/oskarsson/pvsched/forecast"
	"github.com/sixdouglas/suncalc"
)

// PanelConfig describes the array being estimated for.
type PanelConfig struct {
	Latitude  float64
	Longitude float64
	PeakKW    float64
}

// Estimator produces per-quarter kWh production estimates from octa-reduced forecast records.
type Estimator struct{}

// NewEstimator returns an Estimator. It carries no state: every call is a pure function of its
// arguments.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns kWh produced per quarter in quarters, one estimate per entry. Each quarter
// looks up the forecast.Record whose ValidTime is closest, then derives solar altitude via
// suncalc.GetPosition and a cloud attenuation factor from the octa readings.
func (e *Estimator) Estimate(ctx context.Context, quarters []time.Time, records []forecast.Record, panel PanelConfig) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(quarters))
	for i, q := range quarters {
		out[i] = e.estimateQuarter(q, records, panel)
	}
	return out, nil
}

// estimateQuarter computes one quarter's kWh estimate: 0.25h times the instantaneous kW the
// clear-sky factor and cloud attenuation imply for the panel's peak rating.
func (e *Estimator) estimateQuarter(q time.Time, records []forecast.Record, panel PanelConfig) float64 {
	pos := suncalc.GetPosition(q, panel.Latitude, panel.Longitude)
	clearSkyFactor := math.Sin(pos.Altitude)
	if clearSkyFactor < 0 {
		return 0
	}

	cloudFraction := closestCloudFraction(q, records)
	cloudFactor := 1 - 0.9*cloudFraction
	if cloudFactor < 0 {
		cloudFactor = 0
	}

	kW := panel.PeakKW * clearSkyFactor * cloudFactor
	return kW * 0.25
}

// closestCloudFraction returns the low-cloud-octa fraction (0-1) of the forecast record closest
// in time to q, or 0 (clear sky) when records is empty.
func closestCloudFraction(q time.Time, records []forecast.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	best := records[0]
	bestDiff := absDuration(best.ValidTime.Sub(q))
	for _, r := range records[1:] {
		if d := absDuration(r.ValidTime.Sub(q)); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return float64(best.LowCloudOcta) / 8.0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
