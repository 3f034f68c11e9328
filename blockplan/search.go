package blockplan

import (
	"runtime"
	"sync"
	"time"
)

// socStepPct is the granularity of the charge-target search: the scheduler only considers
// raising the battery to a multiple of 5 percent (0, 5, ..., 90). A finer grid increases search
// cost multiplicatively without materially improving the schedule found.
const socStepPct = 5

// maxSocPct is the highest charge target the search considers; the remaining 10% is the
// permanent reserve floor folded into soc_in/soc_out by the caller.
const maxSocPct = 90

// Schedule holds the immutable inputs to one scheduling run: the battery model and the three
// aligned quarter-hourly series (tariffs, consumption, net production). It is built once via New
// and then driven through exactly one UpdateScheduling call.
type Schedule struct {
	battery        BatteryModel
	tariffs        []float64
	cons           []float64
	netProd        []float64
	scheduleLength int
	batKWh         float64
	socKWh         float64
	baseCost       float64
}

// New builds a Schedule for a battery at the given state of health (0-100). soh scales both the
// usable capacity ceiling (90% of nameplate, matching the hardware's own reserve) and the
// kWh-per-SoC-percent conversion used throughout the search.
func New(battery BatteryModel, soh int) (*Schedule, error) {
	if err := battery.Validate(); err != nil {
		return nil, err
	}
	batCapacity := battery.BatCapacityKWh * (float64(soh) / 100.0)
	return &Schedule{
		battery: battery,
		batKWh:  batCapacity * 0.9,
		socKWh:  batCapacity / 100.0,
	}, nil
}

// UpdateScheduling runs the search over the given aligned quarter-hourly series and returns the
// cheapest schedule found, or the trivial Use-only baseline if nothing beats it by at least
// BatteryModel.MinSaving. socIn is the incoming battery state of charge as an integer percent
// (0-100); it is clamped to the floor of 10% and the ceiling of 100% before use.
func (s *Schedule) UpdateScheduling(tariffs, cons, netProd []float64, socIn int, startTime time.Time) SchedulerResult {
	if socIn > 100 {
		socIn = 100
	}
	if socIn < 10 {
		socIn = 10
	}
	chargeIn := float64(socIn-10) * s.socKWh

	s.tariffs = tariffs
	s.cons = cons
	s.netProd = netProd
	s.scheduleLength = len(tariffs)

	bc := s.parallelSearch(chargeIn)
	blocks := createResultBlocks(bc.blocks, s.socKWh, startTime)

	result := SchedulerResult{
		BaseCost:  s.baseCost,
		TotalCost: bc.totalCost,
		StartTime: startTime,
		Blocks:    blocks,
	}
	if len(blocks) > 0 {
		result.EndTime = blocks[len(blocks)-1].EndTime.Add(15 * time.Minute)
	} else {
		result.EndTime = startTime
	}
	return result
}

// parallelSearch fans the outer search index (the first charge's start quarter) out across a
// worker pool sized to the available CPUs, seeds every worker with the baseline as its initial
// local best, and reduces the workers' local bests into a single global best. Workers read only
// immutable Schedule state and write to their own local BlockCollection, so no synchronization is
// needed beyond waiting for them to finish.
func (s *Schedule) parallelSearch(chargeIn float64) blockCollection {
	baseRecord := s.createBaseBlockCollection(chargeIn)

	n := s.scheduleLength
	results := make([]blockCollection, n)

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for seekFirstCharge := lo; seekFirstCharge < hi; seekFirstCharge++ {
				results[seekFirstCharge] = s.seekBest(chargeIn, seekFirstCharge, baseRecord.clone())
			}
		}(lo, hi)
	}
	wg.Wait()

	best := baseRecord
	for _, bc := range results {
		if bc.totalCost < best.totalCost {
			best = bc
		} else if bc.totalCost == best.totalCost && len(bc.blocks) < len(best.blocks) {
			best = bc
		}
	}

	if best.totalCost < baseRecord.totalCost-s.battery.MinSaving {
		return best
	}
	return baseRecord
}

// seekBest enumerates, for one fixed first-charge start quarter, every combination of charge
// target, use window, and optional second charge/use cycle, pricing each with seekCharge and
// seekUse, and returns whichever beats bestRecord (itself seeded with the baseline).
func (s *Schedule) seekBest(chargeIn float64, seekFirstCharge int, bestRecord blockCollection) blockCollection {
	var quad [4]blockCollection

	for chargeLevelFirst := 0; chargeLevelFirst <= maxSocPct; chargeLevelFirst += socStepPct {
		quad[0] = s.seekCharge(0, seekFirstCharge, chargeLevelFirst, chargeIn)

		for seekFirstUse := quad[0].nextStart; seekFirstUse < s.scheduleLength; seekFirstUse++ {
			for useEndFirst := seekFirstUse; useEndFirst <= s.scheduleLength; useEndFirst++ {
				firstUse, ok := s.seekUse(quad[0].nextStart, seekFirstUse, useEndFirst, quad[0].nextChargeIn)
				if !ok {
					continue
				}
				quad[1] = firstUse

				bestRecord = s.recordBestCollection(quad[:2], bestRecord)

				for seekSecondCharge := quad[1].nextStart; seekSecondCharge < s.scheduleLength; seekSecondCharge++ {
					for chargeLevelSecond := 0; chargeLevelSecond <= maxSocPct; chargeLevelSecond += socStepPct {
						quad[2] = s.seekCharge(quad[1].nextStart, seekSecondCharge, chargeLevelSecond, quad[1].nextChargeIn)

						for seekSecondUse := quad[2].nextStart; seekSecondUse < s.scheduleLength; seekSecondUse++ {
							secondUse, ok := s.seekUse(quad[2].nextStart, seekSecondUse, s.scheduleLength, quad[2].nextChargeIn)
							if !ok {
								continue
							}
							quad[3] = secondUse
							bestRecord = s.recordBestCollection(quad[:4], bestRecord)
						}
					}
				}
			}
		}
	}

	return bestRecord
}

// createBaseBlockCollection builds the trivial baseline schedule: a single Use block spanning
// the whole horizon with the given incoming charge. It also records base_cost, which the final
// promotion check and every caller of BaseCost rely on.
func (s *Schedule) createBaseBlockCollection(chargeIn float64) blockCollection {
	pm := s.updateForPV(Use, 0, s.scheduleLength, chargeIn)
	block := getNoneChargeBlock(pm)
	s.baseCost = roundCents(block.cost)

	return blockCollection{
		blocks:       []internalBlock{block},
		nextStart:    s.scheduleLength,
		nextChargeIn: block.chargeOut,
		totalCost:    s.baseCost,
	}
}

// seekUse prices an optional leading Hold followed by a Use block running [seekStart, seekEnd).
// It returns ok=false when the window is empty (seekStart == seekEnd), matching the search's
// convention of skipping degenerate use windows rather than pricing them as zero-cost no-ops.
func (s *Schedule) seekUse(initialStart, seekStart, seekEnd int, chargeIn float64) (blockCollection, bool) {
	if seekStart == seekEnd {
		return blockCollection{}, false
	}

	pmHold := s.updateForPV(Hold, initialStart, seekStart, chargeIn)
	pmUse := s.updateForPV(Use, seekStart, seekEnd, pmHold.chargeOut)

	blocks := make([]internalBlock, 0, 2)
	if pmHold.size > 0 {
		blocks = append(blocks, getNoneChargeBlock(pmHold))
	}
	if pmUse.size > 0 {
		blocks = append(blocks, getNoneChargeBlock(pmUse))
	}

	return blockCollection{
		blocks:       blocks,
		nextStart:    pmUse.start + pmUse.size,
		nextChargeIn: pmUse.chargeOut,
		totalCost:    pmHold.cost + pmUse.cost,
	}, true
}

// recordBestCollection prices the tail of the schedule (a trailing Hold from quad's last
// next_start to the horizon end, if any), sums the quad's cost with that tail, rounds to cents,
// and returns whichever of quad-as-a-schedule or bestBlocks is cheaper — ties going to whichever
// has fewer blocks, and bestBlocks winning any further tie so iteration order is preserved.
func (s *Schedule) recordBestCollection(quad []blockCollection, bestBlocks blockCollection) blockCollection {
	last := quad[len(quad)-1]

	var totalCost float64
	for _, b := range quad {
		totalCost += b.totalCost
	}
	nextChargeIn := last.nextChargeIn

	var tail *periodMetrics
	numBlocks := 0
	if last.nextStart < s.scheduleLength {
		pmHold := s.updateForPV(Hold, last.nextStart, s.scheduleLength, last.nextChargeIn)
		totalCost += pmHold.cost
		nextChargeIn = pmHold.chargeOut
		tail = &pmHold
		numBlocks = 1
	}

	totalCost = roundCents(totalCost)

	if totalCost < bestBlocks.totalCost {
		return s.collectBlocks(quad, s.scheduleLength, nextChargeIn, totalCost, tail)
	}
	if totalCost == bestBlocks.totalCost {
		for _, b := range quad {
			numBlocks += len(b.blocks)
		}
		if numBlocks < len(bestBlocks.blocks) {
			return s.collectBlocks(quad, s.scheduleLength, nextChargeIn, totalCost, tail)
		}
	}
	return bestBlocks
}

// collectBlocks flattens a quad of sub-collections (plus an optional trailing Hold) into one
// BlockCollection.
func (s *Schedule) collectBlocks(quad []blockCollection, nextStart int, nextChargeIn, totalCost float64, tail *periodMetrics) blockCollection {
	n := 0
	for _, b := range quad {
		n += len(b.blocks)
	}
	blocks := make([]internalBlock, 0, n+1)
	for _, b := range quad {
		blocks = append(blocks, b.blocks...)
	}
	if tail != nil {
		blocks = append(blocks, getNoneChargeBlock(*tail))
	}

	return blockCollection{
		blocks:       blocks,
		nextStart:    nextStart,
		nextChargeIn: nextChargeIn,
		totalCost:    totalCost,
	}
}

func roundCents(v float64) float64 {
	return roundToDecimals(v, 2)
}
