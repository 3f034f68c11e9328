// Package main demonstrates estimating quarter-hourly PV production for a flat 24-hour horizon.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oskarsson/pvsched/forecast"
	"github.com/oskarsson/pvsched/production"
)

func main() {
	panel := production.PanelConfig{Latitude: 56.9496, Longitude: 24.1052, PeakKW: 6.5}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	quarters := make([]time.Time, 0, 96)
	for i := 0; i < 96; i++ {
		quarters = append(quarters, start.Add(time.Duration(i)*15*time.Minute))
	}

	// No live forecast plugged in here; an empty record set estimates clear-sky production.
	var records []forecast.Record

	estimator := production.NewEstimator()
	kwh, err := estimator.Estimate(context.Background(), quarters, records, panel)
	if err != nil {
		fmt.Println("estimate:", err)
		return
	}

	var total float64
	for i, q := range quarters {
		total += kwh[i]
		if kwh[i] > 0 {
			fmt.Printf("%s: %.3f kWh\n", q.Format("15:04"), kwh[i])
		}
	}
	fmt.Printf("total clear-sky estimate: %.2f kWh\n", total)
}
