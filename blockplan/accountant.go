package blockplan

// updateForPV prices the interval [start, end) under blockType, given an incoming charge level,
// and returns the resulting period metrics. Charge blocks ignore PV production entirely — the
// hardware draws from the grid only while charging — and are priced purely on household
// consumption. Hold and Use blocks walk the net-production series quarter by quarter via
// addNetProd.
func (s *Schedule) updateForPV(blockType BlockType, start, end int, chargeIn float64) periodMetrics {
	holdLevel := chargeIn
	if blockType == Use {
		holdLevel = 0
	}

	pm := periodMetrics{
		blockType: blockType,
		start:     start,
		size:      end - start,
		chargeIn:  chargeIn,
		chargeOut: chargeIn,
		holdLevel: holdLevel,
	}

	if blockType == Charge {
		var cost float64
		for i := start; i < end; i++ {
			cost += s.tariffs[i] * s.cons[i]
		}
		pm.cost = cost
		return pm
	}

	for i := start; i < end; i++ {
		s.addNetProd(i, s.netProd[i], &pm)
	}
	return pm
}

// addNetProd folds one quarter's net production into a running period metric. The efficiency
// factor is chosen by the direction of flow: a deficit (net_prod < 0) is drawn through the
// battery's discharge efficiency; a surplus is stored through the battery's charge efficiency,
// expressed here as its reciprocal so the comparison against hold_level stays in pre-battery
// (grid-side) kWh. Swapping this placement mis-prices every candidate by a few percent — do not
// "simplify" it.
func (s *Schedule) addNetProd(npIdx int, npItem float64, pm *periodMetrics) {
	var efficiency float64
	if npItem < 0 {
		efficiency = s.battery.DischargeEfficiency
	} else {
		efficiency = 1.0 / s.battery.ChargeEfficiency
	}

	netAdd := pm.chargeOut + npItem/efficiency
	if netAdd < pm.holdLevel {
		pm.cost += s.tariffs[npIdx] * (pm.holdLevel - netAdd) * efficiency
		pm.chargeOut = pm.holdLevel
	} else {
		pm.chargeOut = min(netAdd, s.batKWh)
	}
}

// getNoneChargeBlock turns a Hold or Use period metric into an internal block record.
func getNoneChargeBlock(pm periodMetrics) internalBlock {
	return internalBlock{
		blockType: pm.blockType,
		startQ:    pm.start,
		size:      pm.size,
		cost:      pm.cost,
		chargeIn:  pm.chargeIn,
		chargeOut: pm.chargeOut,
	}
}

// getChargeBlock builds the internal block record for a sized, priced Charge interval.
func getChargeBlock(start, size int, chargeIn, chargeOut, cost float64) internalBlock {
	return internalBlock{
		blockType: Charge,
		startQ:    start,
		size:      size,
		cost:      cost,
		chargeIn:  chargeIn,
		chargeOut: chargeOut,
	}
}
