// Package forecast reduces a MET Norway-style weather forecast into the per-hour cloud and
// temperature readings the production estimator needs, converting MET's percentage cloud cover
// into the octa scale the rest of the domain stack uses.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/oskarsson/pvsched/meteo"
)

// Record is one hourly forecast reading reduced from a meteo.ForecastTimeStep.
type Record struct {
	ValidTime     time.Time
	Temperature   float64 // degrees C
	LowCloudOcta  int     // 0-8
	MidCloudOcta  int     // 0-8
	HighCloudOcta int     // 0-8
}

// Provider wraps a meteo.Client and a fixed location.
type Provider struct {
	client   *meteo.Client
	location meteo.Location
}

// NewProvider builds a Provider for the given location. userAgent is passed through to
// meteo.NewClient unchanged; MET Norway requires an identifying User-Agent per its terms of use.
func NewProvider(userAgent string, location meteo.Location) *Provider {
	return &Provider{client: meteo.NewClient(userAgent), location: location}
}

// Get returns every hourly Record in [from, to), in ascending time order.
func (p *Provider) Get(ctx context.Context, from, to time.Time) ([]Record, error) {
	raw, err := p.client.GetComplete(meteo.QueryParams{Location: p.location})
	if err != nil {
		return nil, fmt.Errorf("forecast: fetch complete forecast: %w", err)
	}
	if raw.Properties == nil {
		return nil, fmt.Errorf("forecast: response had no properties")
	}

	records := make([]Record, 0, len(raw.Properties.Timeseries))
	for _, step := range raw.Properties.Timeseries {
		if step.Time.Before(from) || !step.Time.Before(to) {
			continue
		}
		records = append(records, reduce(step))
	}
	return records, nil
}

// reduce converts one ForecastTimeStep's instant details into a Record, treating any missing
// field as zero (clear sky, 0 degrees) rather than failing the whole forecast over one gap.
func reduce(step meteo.ForecastTimeStep) Record {
	r := Record{ValidTime: step.Time}
	if step.Data == nil || step.Data.Instant == nil || step.Data.Instant.Details == nil {
		return r
	}
	d := step.Data.Instant.Details
	if d.AirTemperature != nil {
		r.Temperature = *d.AirTemperature
	}
	r.LowCloudOcta = pctToOcta(d.CloudAreaFractionLow)
	r.MidCloudOcta = pctToOcta(d.CloudAreaFractionMedium)
	r.HighCloudOcta = pctToOcta(d.CloudAreaFractionHigh)
	return r
}

// pctToOcta converts a MET Norway cloud-area-fraction percentage (0-100) into the 0-8 octa scale
// used throughout the domain stack, clamping both ends in case of forecast noise.
func pctToOcta(pct *float64) int {
	if pct == nil {
		return 0
	}
	octa := int(math.Round(*pct / 100 * 8))
	if octa < 0 {
		return 0
	}
	if octa > 8 {
		return 8
	}
	return octa
}
