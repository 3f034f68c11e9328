package blockplan

import "math"

// seekCharge prices an optional leading Hold followed by an optional Charge block that raises
// the battery from its incoming charge toward socLevel percent. initialStart anchors the hold
// (it may predate start, when a previous use/charge left a gap to fill). Either sub-block is
// omitted from the result when its size would be zero.
func (s *Schedule) seekCharge(initialStart, start, socLevel int, chargeIn float64) blockCollection {
	pmHold := s.updateForPV(Hold, initialStart, start, chargeIn)

	blocks := make([]internalBlock, 0, 2)
	if pmHold.size > 0 {
		blocks = append(blocks, getNoneChargeBlock(pmHold))
	}

	nextStart := start
	nextChargeIn := pmHold.chargeOut
	totalCost := pmHold.cost

	need := (float64(socLevel)*s.socKWh - pmHold.chargeOut) / s.battery.ChargeEfficiency
	if need > 0 {
		cCost, end := s.chargeCostChargeEnd(start, need)
		pmCharge := s.updateForPV(Charge, start, end, 0)

		nextStart += end - start
		totalCost += cCost + pmCharge.cost

		if pmCharge.size > 0 {
			nextChargeIn = float64(socLevel) * s.socKWh
			blocks = append(blocks, getChargeBlock(start, pmCharge.size, pmHold.chargeOut, nextChargeIn, cCost+pmCharge.cost))
		}
	}

	return blockCollection{blocks: blocks, nextStart: nextStart, nextChargeIn: nextChargeIn, totalCost: totalCost}
}

// chargeCostChargeEnd sizes a grid charge of `charge` kWh starting at quarter start into whole
// ChargeStepKWh increments plus (when the residue rounds to at least 0.05 kWh) one final partial
// increment, and prices each increment against the matching quarter's tariff. The quarter count
// is clamped so the charge never runs past the schedule's end.
func (s *Schedule) chargeCostChargeEnd(start int, charge float64) (cost float64, end int) {
	step := s.battery.ChargeStepKWh
	full := int(charge / step)
	rem := charge - float64(full)*step

	instances := make([]float64, 0, full+1)
	for i := 0; i < full; i++ {
		instances = append(instances, step)
	}
	if math.Round(rem*10) != 0 {
		instances = append(instances, rem)
	}

	end = min(start+len(instances), s.scheduleLength)
	for i := start; i < end; i++ {
		cost += instances[i-start] * s.tariffs[i]
	}
	return cost, end
}
