// Package main demonstrates fetching an octa-reduced forecast for the next 24 hours.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oskarsson/pvsched/forecast"
	"github.com/oskarsson/pvsched/meteo"
)

func main() {
	location := meteo.Location{
		Latitude:  59.3293,
		Longitude: 18.0686,
		Altitude:  meteo.IntPtr(14),
	}
	if err := meteo.ValidateLocation(location); err != nil {
		log.Fatalf("invalid location: %v", err)
	}

	provider := forecast.NewProvider("pvsched-example/1.0 (ops@example.com)", location)

	now := time.Now().UTC()
	records, err := provider.Get(context.Background(), now, now.Add(24*time.Hour))
	if err != nil {
		log.Fatalf("fetch forecast: %v", err)
	}

	fmt.Printf("%d hourly records for %.4f,%.4f\n", len(records), location.Latitude, location.Longitude)
	for _, r := range records {
		fmt.Printf("%s | %5.1fC | low=%d mid=%d high=%d octa\n",
			r.ValidTime.Format("Mon 15:04"), r.Temperature, r.LowCloudOcta, r.MidCloudOcta, r.HighCloudOcta)
	}
}
