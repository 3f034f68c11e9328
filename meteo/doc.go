// Package meteo is a transport/decoding client for the MET Norway Location Forecast API: JSON
// timeseries of cloud cover, temperature, wind and the rest of the compact/complete/classic
// payload shapes, keyed by a panel's latitude/longitude.
//
// Callers in this repository go through forecast.Provider rather than this package directly; it
// wraps GetComplete, fetching afresh on every call, and converts CloudAreaFraction from a
// percentage into the octa scale the production estimator consumes. Calling meteo directly still
// works the same way the upstream client does:
//
//	client := meteo.NewClient("pvsched/1.0 (ops@example.com)")
//	forecast, err := client.GetCompact(meteo.QueryParams{
//		Location: meteo.Location{Latitude: 59.9139, Longitude: 10.7522},
//	})
//
// GetCompact, GetComplete and GetClassic map 1:1 onto the API's three endpoints; all three return
// the same METJSONForecast shape, differing only in which optional fields the server populates.
//
// https://api.met.no/weatherapi/locationforecast/2.0/documentation
package meteo
