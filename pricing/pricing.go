// Package pricing turns an ENTSO-E day-ahead publication into the quarter-hourly buy tariff the
// scheduler core consumes, caching the downloaded document across calls.
package pricing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/oskarsson/pvsched/entsoe"
)

// FeeSchedule is the markup applied on top of the raw day-ahead market price to arrive at what
// the household actually pays per kWh.
type FeeSchedule struct {
	GridFee  float64 // currency/kWh
	TradeFee float64 // currency/kWh
	VAT      float64 // fraction, e.g. 0.20 for 20%
}

// DefaultFeeSchedule assumes no grid/trade markup, 20% VAT.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{VAT: 0.20}
}

// Provider downloads and caches the ENTSO-E day-ahead document behind a mutex, independent of
// any other scheduler state.
type Provider struct {
	SecurityToken string
	URLFormat     string
	Location      *time.Location

	mu   sync.RWMutex
	doc  *entsoe.PublicationMarketData
	docD time.Time // UTC midnight of the day doc covers as "today"
}

// NewProvider builds a Provider. location defaults to UTC when nil.
func NewProvider(securityToken, urlFormat string, location *time.Location) *Provider {
	if location == nil {
		location = time.UTC
	}
	return &Provider{SecurityToken: securityToken, URLFormat: urlFormat, Location: location}
}

// Document returns the cached document, if any.
func (p *Provider) Document() *entsoe.PublicationMarketData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc
}

// QuarterHourlyTariffs returns the quarter-hourly buy tariffs covering [start, start+quarters*15m),
// downloading a fresh document when the cached one does not cover start's UTC day.
func (p *Provider) QuarterHourlyTariffs(ctx context.Context, start time.Time, quarters int, fees FeeSchedule) ([]float64, error) {
	dayStart := start.UTC().Truncate(24 * time.Hour)

	doc, err := p.documentFor(ctx, dayStart)
	if err != nil {
		return nil, err
	}
	return QuarterHourlyTariffs(doc, start, quarters, fees)
}

// documentFor returns a document whose published period covers dayStart, downloading one if the
// cache is empty or stale.
func (p *Provider) documentFor(ctx context.Context, dayStart time.Time) (*entsoe.PublicationMarketData, error) {
	p.mu.RLock()
	cached, cachedDay := p.doc, p.docD
	p.mu.RUnlock()

	if cached != nil && cachedDay.Equal(dayStart) {
		return cached, nil
	}

	doc, err := entsoe.DownloadPublicationMarketData(ctx, p.SecurityToken, p.URLFormat, p.Location)
	if err != nil {
		return nil, fmt.Errorf("pricing: download publication market data: %w", err)
	}

	p.mu.Lock()
	p.doc = doc
	p.docD = dayStart
	p.mu.Unlock()

	return doc, nil
}

// QuarterHourlyTariffs extracts every quarter-hourly point from doc that overlaps
// [start, start+quarters*15m) and applies the fee markup, producing the tariff[i] series the core
// consumes. It walks TimeSeries/Period pairs using each Period's native resolution via
// GetTimeRangeForPosition, which already supports PT15M alongside coarser resolutions.
func QuarterHourlyTariffs(doc *entsoe.PublicationMarketData, start time.Time, quarters int, fees FeeSchedule) ([]float64, error) {
	if doc == nil {
		return nil, fmt.Errorf("pricing: nil publication market document")
	}
	windowEnd := start.Add(time.Duration(quarters) * 15 * time.Minute)

	var samples []priceSample

	for _, ts := range doc.TimeSeries {
		for pos := 1; ; pos++ {
			t, _, valid := ts.Period.GetTimeRangeForPosition(pos)
			if !valid {
				break
			}
			if !t.Before(windowEnd) {
				break // positions advance in time, so nothing later in this Period can overlap either
			}
			if t.Before(start) {
				continue
			}
			price, found := ts.Period.GetPriceByTime(t)
			if !found {
				continue
			}
			samples = append(samples, priceSample{t: t, price: price})
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("pricing: no price points overlap %s", start.Format(time.RFC3339))
	}

	// Quarter-hourly expansion: a point at a coarser resolution (e.g. hourly) repeats across the
	// quarters it spans, since GetTimeRangeForPosition only yields one sample per native position.
	tariffs := make([]float64, 0, quarters)
	for q := start; q.Before(windowEnd); q = q.Add(15 * time.Minute) {
		price, ok := lookupAt(samples, q)
		if !ok {
			return nil, fmt.Errorf("pricing: no price point for quarter %s", q.Format(time.RFC3339))
		}
		tariffs = append(tariffs, applyFees(price, fees))
	}

	return tariffs, nil
}

// priceSample is one (time, price) point extracted from a Period at its native resolution.
type priceSample struct {
	t     time.Time
	price float64
}

// lookupAt finds the sample whose interval contains t: the latest sample not after t.
func lookupAt(samples []priceSample, t time.Time) (float64, bool) {
	var best *float64
	var bestT time.Time
	for _, s := range samples {
		if s.t.After(t) {
			continue
		}
		if best == nil || s.t.After(bestT) {
			price := s.price
			best = &price
			bestT = s.t
		}
	}
	if best == nil {
		return 0, false
	}
	return *best, true
}

// applyFees converts a raw EUR/MWh day-ahead price into the VAT-inclusive EUR/kWh buy tariff.
func applyFees(priceAmountPerMWh float64, fees FeeSchedule) float64 {
	eurPerKWh := (priceAmountPerMWh/1000.0 + fees.GridFee + fees.TradeFee) / (1 - fees.VAT)
	return math.Round(eurPerKWh*100) / 100
}
