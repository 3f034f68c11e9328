// Package blockplan computes a day-ahead quarter-hourly charge/hold/use schedule for a
// residential PV-plus-battery installation, given a price forecast, a consumption forecast and
// a production forecast.
package blockplan

import (
	"fmt"
	"strings"
	"time"
)

// BlockType identifies what an inverter should do for the duration of a Block.
type BlockType int

const (
	// Charge draws power from the grid to raise the battery toward a target state of charge.
	// PV production is not accounted for during a Charge block.
	Charge BlockType = iota
	// Hold keeps the battery at its current charge, buying from the grid only to cover any
	// shortfall between consumption and PV production.
	Hold
	// Use lets the battery discharge to cover consumption, buying from the grid only once the
	// battery is empty.
	Use
)

func (t BlockType) String() string {
	switch t {
	case Charge:
		return "Charge"
	case Hold:
		return "Hold"
	case Use:
		return "Use"
	default:
		return fmt.Sprintf("BlockType(%d)", int(t))
	}
}

// MarshalJSON renders the block type as its name rather than its ordinal.
func (t BlockType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the name MarshalJSON writes.
func (t *BlockType) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	for _, bt := range []BlockType{Charge, Hold, Use} {
		if bt.String() == name {
			*t = bt
			return nil
		}
	}
	return fmt.Errorf("blockplan: unknown block type %s", data)
}

// Status is the lifecycle state of a Block once it leaves the scheduler.
type Status struct {
	Kind string `json:"kind"`
	Full int    `json:"full,omitempty"`
}

// Block lifecycle states. StatusFull carries the SoC percent reached; construct it with
// NewFullStatus.
var (
	StatusWaiting = Status{Kind: "Waiting"}
	StatusStarted = Status{Kind: "Started"}
	StatusError   = Status{Kind: "Error"}
)

// NewFullStatus returns the Status reported when a charge block finishes early because the
// battery reached its target state of charge.
func NewFullStatus(soc int) Status {
	return Status{Kind: "Full", Full: soc}
}

// BatteryModel is the immutable battery and market configuration a Schedule is built from.
type BatteryModel struct {
	// BatCapacityKWh is the nominal battery capacity before any state-of-health derating.
	BatCapacityKWh float64
	// ChargeStepKWh is the maximum kWh drawn from the grid per quarter while charging.
	ChargeStepKWh float64
	// ChargeEfficiency and DischargeEfficiency are one-way round-trip factors in (0, 1].
	ChargeEfficiency    float64
	DischargeEfficiency float64
	// MinSaving is the minimum absolute cost improvement over the baseline Use-only schedule
	// required before the scheduler will report a non-trivial schedule.
	MinSaving float64
}

// Validate reports a non-nil error if any battery model field would make scheduling undefined.
func (m BatteryModel) Validate() error {
	if m.BatCapacityKWh <= 0 {
		return fmt.Errorf("blockplan: BatCapacityKWh must be positive, got %v", m.BatCapacityKWh)
	}
	if m.ChargeStepKWh <= 0 {
		return fmt.Errorf("blockplan: ChargeStepKWh must be positive, got %v", m.ChargeStepKWh)
	}
	if m.ChargeEfficiency <= 0 || m.ChargeEfficiency > 1 {
		return fmt.Errorf("blockplan: ChargeEfficiency must be in (0,1], got %v", m.ChargeEfficiency)
	}
	if m.DischargeEfficiency <= 0 || m.DischargeEfficiency > 1 {
		return fmt.Errorf("blockplan: DischargeEfficiency must be in (0,1], got %v", m.DischargeEfficiency)
	}
	return nil
}

// OutputBlock is one scheduled quarter-hour-aligned interval, ready for persistence or display.
type OutputBlock struct {
	BlockID      int64     `json:"block_id"`
	BlockType    BlockType `json:"block_type"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	StartHour    int       `json:"start_hour"`
	StartMinute  int       `json:"start_minute"`
	EndHour      int       `json:"end_hour"`
	EndMinute    int       `json:"end_minute"`
	Size         int       `json:"size"`
	Cost         float64   `json:"cost"`
	ChargeIn     float64   `json:"charge_in"`
	ChargeOut    float64   `json:"charge_out"`
	TrueSocIn    *int      `json:"true_soc_in,omitempty"`
	SocIn        int       `json:"soc_in"`
	SocOut       int       `json:"soc_out"`
	SocKWh       float64   `json:"soc_kwh"`
	Status       Status    `json:"status"`
}

// String renders a Block the way an operator log line would, mirroring the scheduler's own
// fixed-width summary format.
func (b OutputBlock) String() string {
	return fmt.Sprintf("%-6s %02d:%02d -> %02d:%02d: SocIn %3d, SocOut %3d, chargeIn %5.2f, chargeOut %5.2f, cost %5.2f",
		b.BlockType, b.StartHour, b.StartMinute, b.EndHour, b.EndMinute,
		b.SocIn, b.SocOut, b.ChargeIn, b.ChargeOut, b.Cost)
}

// SchedulerResult is the return value of UpdateScheduling: the chosen schedule plus its cost
// compared against the trivial Use-only baseline.
type SchedulerResult struct {
	BaseCost  float64
	TotalCost float64
	StartTime time.Time
	EndTime   time.Time
	Blocks    []OutputBlock
}

// internalBlock is a scheduled interval still expressed in quarter indices rather than wall
// clock times; it only exists for the lifetime of one search.
type internalBlock struct {
	blockType BlockType
	startQ    int
	size      int
	cost      float64
	chargeIn  float64
	chargeOut float64
}

// blockCollection is a (possibly partial) candidate schedule built up by the search.
type blockCollection struct {
	blocks       []internalBlock
	nextStart    int
	nextChargeIn float64
	totalCost    float64
}

func (bc blockCollection) clone() blockCollection {
	blocks := make([]internalBlock, len(bc.blocks))
	copy(blocks, bc.blocks)
	return blockCollection{
		blocks:       blocks,
		nextStart:    bc.nextStart,
		nextChargeIn: bc.nextChargeIn,
		totalCost:    bc.totalCost,
	}
}

// periodMetrics is the result of pricing a single contiguous interval under one block semantics.
type periodMetrics struct {
	blockType BlockType
	start     int
	size      int
	chargeIn  float64
	chargeOut float64
	holdLevel float64
	cost      float64
}

// PreformattedData is the aligned, quarter-hourly input to UpdateScheduling.
type PreformattedData struct {
	Tariffs []float64
	Cons    []float64
	NetProd []float64
}

// TimeValue is a single quarter-hourly sample (production or consumption), in Wh.
type TimeValue struct {
	ValidTime time.Time
	Data      float64
}

// TariffValue is a single quarter-hourly buy price, in currency per kWh.
type TariffValue struct {
	ValidTime time.Time
	Buy       float64
}
