// Package inverter adapts the Sigenergy Modbus plant client into the two operations the
// scheduler's domain stack needs: reading the battery's current state of charge, and optionally
// pushing a schedule hint to the plant's remote-EMS registers.
package inverter

import (
	"context"
	"fmt"

	"github.com/oskarsson/pvsched/blockplan"
	"github.com/oskarsson/pvsched/sigenergy"
)

// Remote EMS modes understood by SetRemoteEMSMode (see sigenergy.SigenModbusClient.SetRemoteEMSMode).
const (
	modeCommandChargingPVFirst = 4
	modeCommandDischargingESS  = 6
)

// Client is a thin, context-agnostic wrapper: the underlying Modbus transport has no native
// cancellation, so ctx is honored only as a precondition check before each call.
type Client struct {
	modbus *sigenergy.SigenModbusClient
}

// NewTCPClient dials the plant over Modbus TCP at the plant slave address, as
// sigenergy.ShowPlantInfo does. It does not enable remote EMS control; PushScheduleHint does that
// on each call.
func NewTCPClient(address string) (*Client, error) {
	modbus, err := sigenergy.NewTCPClient(address, sigenergy.PlantAddress)
	if err != nil {
		return nil, fmt.Errorf("inverter: connect to plant at %s: %w", address, err)
	}
	return &Client{modbus: modbus}, nil
}

// Close releases the underlying Modbus connection.
func (c *Client) Close() error {
	return c.modbus.Close()
}

// ReadStateOfCharge returns the plant's ESS state of charge as an integer percent. This is the
// "Battery cloud client" the scheduler's orchestrator polls before each planning cycle.
func (c *Client) ReadStateOfCharge(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := c.modbus.ReadPlantRunningInfo()
	if err != nil {
		return 0, fmt.Errorf("inverter: read plant running info: %w", err)
	}
	return int(info.ESSSOC + 0.5), nil
}

// PushScheduleHint drives the plant's remote EMS registers to approximate the given block: a
// Charge block commands PV-first charging capped at the battery model's charge step, a Use block
// commands ESS-first discharging, and a Hold block commands charging with a zero limit so the
// plant neither charges nor discharges. This is operational behaviour the core scheduler never
// calls itself — it exists for an orchestrator that wants to act on the schedule it computed.
func (c *Client) PushScheduleHint(ctx context.Context, block blockplan.OutputBlock, chargeStepKW float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.modbus.EnableRemoteEMS(true); err != nil {
		return fmt.Errorf("inverter: enable remote EMS: %w", err)
	}

	mode, limitKW := modeAndLimitForBlock(block.BlockType, chargeStepKW)
	if err := c.modbus.SetRemoteEMSMode(mode); err != nil {
		return fmt.Errorf("inverter: set remote EMS mode %d: %w", mode, err)
	}
	if block.BlockType == blockplan.Use {
		return c.modbus.SetESSMaxDischargingLimit(limitKW)
	}
	return c.modbus.SetESSMaxChargingLimit(limitKW)
}

// modeAndLimitForBlock maps a block's type to the remote-EMS mode and power limit that
// approximates it: Charge commands PV-first charging up to chargeStepKW, Use commands ESS-first
// discharging up to chargeStepKW, and Hold commands charging mode with a zero limit so the plant
// neither charges nor discharges.
func modeAndLimitForBlock(blockType blockplan.BlockType, chargeStepKW float64) (mode uint16, limitKW float64) {
	switch blockType {
	case blockplan.Charge:
		return modeCommandChargingPVFirst, chargeStepKW
	case blockplan.Use:
		return modeCommandDischargingESS, chargeStepKW
	default: // Hold
		return modeCommandChargingPVFirst, 0
	}
}
