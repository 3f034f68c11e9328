package blockplan

import (
	"math"
	"time"
)

const quartersPerHour = 4

// createResultBlocks converts internal quarter-indexed blocks into dated OutputBlocks. offsetQ
// is how many quarters startTime sits past the most recent UTC midnight; every internal start
// quarter is shifted by that offset before being split back into an hour and a minute, with a
// day added whenever the shifted quarter rolls past the end of the day.
func createResultBlocks(blocks []internalBlock, socKWh float64, startTime time.Time) []OutputBlock {
	dayStart := startTime.Truncate(24 * time.Hour)
	offsetQ := int(startTime.Sub(dayStart).Minutes()) / 15

	result := make([]OutputBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.size == 0 {
			continue
		}
		absStartQ := b.startQ + offsetQ
		absEndQ := absStartQ + b.size - 1

		startHour := absStartQ / quartersPerHour
		startMinute := (absStartQ % quartersPerHour) * 15
		blockStart := dayStart
		if startHour >= 24 {
			startHour -= 24
			blockStart = blockStart.AddDate(0, 0, 1)
		}
		blockStart = time.Date(blockStart.Year(), blockStart.Month(), blockStart.Day(), startHour, startMinute, 0, 0, blockStart.Location())

		endHour := absEndQ / quartersPerHour
		endMinute := (absEndQ % quartersPerHour) * 15
		blockEnd := dayStart
		if endHour >= 24 {
			endHour -= 24
			blockEnd = blockEnd.AddDate(0, 0, 1)
		}
		blockEnd = time.Date(blockEnd.Year(), blockEnd.Month(), blockEnd.Day(), endHour, endMinute, 0, 0, blockEnd.Location())

		result = append(result, OutputBlock{
			BlockID:     blockStart.UTC().Unix(),
			BlockType:   b.blockType,
			StartTime:   blockStart,
			EndTime:     blockEnd,
			StartHour:   startHour,
			StartMinute: startMinute,
			EndHour:     endHour,
			EndMinute:   endMinute,
			Size:        b.size,
			Cost:        b.cost,
			ChargeIn:    b.chargeIn,
			ChargeOut:   b.chargeOut,
			SocIn:       socFromCharge(b.chargeIn, socKWh),
			SocOut:      socFromCharge(b.chargeOut, socKWh),
			SocKWh:      socKWh,
			Status:      StatusWaiting,
		})
	}

	return result
}

// socFromCharge converts a continuous charge level to the integer SoC percent shown to
// operators: 10% is the permanent reserve floor, and the charge-derived delta above it is capped
// at 90 before the floor is added back, so the reported value never exceeds 100.
func socFromCharge(chargeKWh, socKWh float64) int {
	delta := math.Round(chargeKWh / socKWh)
	if delta > maxSocPct {
		delta = maxSocPct
	}
	return 10 + int(delta)
}

func roundToDecimals(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
