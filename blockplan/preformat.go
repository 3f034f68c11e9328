package blockplan

import "time"

// PreformatData filters tariff, production and consumption samples to the half-open window
// [startTime, endTime) and reduces them to three aligned quarter-hourly kWh/price slices. The
// scheduler takes slices rather than fixed-size arrays so that any horizon up to a full day can
// be scheduled; preformatting is what makes that horizon concrete.
func PreformatData(tariffs []TariffValue, production, consumption []TimeValue, startTime, endTime time.Time) (PreformattedData, error) {
	out := PreformattedData{
		Tariffs: make([]float64, 0, 96),
		Cons:    make([]float64, 0, 96),
		NetProd: make([]float64, 0, 96),
	}

	for _, t := range tariffs {
		if !t.ValidTime.Before(startTime) && t.ValidTime.Before(endTime) {
			out.Tariffs = append(out.Tariffs, t.Buy)
		}
	}

	prod := make([]float64, 0, 96)
	for _, p := range production {
		if !p.ValidTime.Before(startTime) && p.ValidTime.Before(endTime) {
			prod = append(prod, p.Data/1000.0)
		}
	}

	for _, c := range consumption {
		if !c.ValidTime.Before(startTime) && c.ValidTime.Before(endTime) {
			out.Cons = append(out.Cons, c.Data/1000.0)
		}
	}

	if len(prod) != len(out.Cons) {
		return PreformattedData{}, ErrInconsistentInputLength
	}
	for i, p := range prod {
		out.NetProd = append(out.NetProd, p-out.Cons[i])
	}

	if len(out.Tariffs) != len(prod) || len(out.Tariffs) != len(out.Cons) {
		return PreformattedData{}, ErrInconsistentInputLength
	}

	return out, nil
}
