package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/oskarsson/pvsched/blockplan"
)

// PostgresStore upserts schedules into a schedule_blocks table, keyed by block start time.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB (via lib/pq).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveSchedule deletes any existing rows at or after the schedule's start time, then inserts the
// new blocks inside a single transaction, upserting on conflicting start_time.
func (s *PostgresStore) SaveSchedule(ctx context.Context, result blockplan.SchedulerResult) error {
	if s.db == nil {
		return fmt.Errorf("persistence: database connection not available")
	}
	if len(result.Blocks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_blocks WHERE start_time >= $1`, result.StartTime); err != nil {
		return fmt.Errorf("persistence: delete existing blocks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedule_blocks (
			block_id, block_type, start_time, end_time,
			size, cost, charge_in, charge_out,
			soc_in, soc_out, soc_kwh, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (start_time) DO UPDATE SET
			block_id = EXCLUDED.block_id,
			block_type = EXCLUDED.block_type,
			end_time = EXCLUDED.end_time,
			size = EXCLUDED.size,
			cost = EXCLUDED.cost,
			charge_in = EXCLUDED.charge_in,
			charge_out = EXCLUDED.charge_out,
			soc_in = EXCLUDED.soc_in,
			soc_out = EXCLUDED.soc_out,
			soc_kwh = EXCLUDED.soc_kwh,
			status = EXCLUDED.status
	`)
	if err != nil {
		return fmt.Errorf("persistence: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range result.Blocks {
		if _, err := stmt.ExecContext(ctx,
			b.BlockID, b.BlockType.String(), b.StartTime, b.EndTime,
			b.Size, b.Cost, b.ChargeIn, b.ChargeOut,
			b.SocIn, b.SocOut, b.SocKWh, b.Status.Kind,
		); err != nil {
			return fmt.Errorf("persistence: insert block at %s: %w", b.StartTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit transaction: %w", err)
	}
	return nil
}

// LoadScheduleFrom loads blocks with start_time >= from, ordered ascending.
func (s *PostgresStore) LoadScheduleFrom(ctx context.Context, from blockplan.OutputBlock) ([]blockplan.OutputBlock, error) {
	if s.db == nil {
		return nil, fmt.Errorf("persistence: database connection not available")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, block_type, start_time, end_time,
			size, cost, charge_in, charge_out,
			soc_in, soc_out, soc_kwh, status
		FROM schedule_blocks
		WHERE start_time >= $1
		ORDER BY start_time ASC
	`, from.StartTime)
	if err != nil {
		return nil, fmt.Errorf("persistence: query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []blockplan.OutputBlock
	for rows.Next() {
		var b blockplan.OutputBlock
		var blockType, status string
		if err := rows.Scan(
			&b.BlockID, &blockType, &b.StartTime, &b.EndTime,
			&b.Size, &b.Cost, &b.ChargeIn, &b.ChargeOut,
			&b.SocIn, &b.SocOut, &b.SocKWh, &status,
		); err != nil {
			return nil, fmt.Errorf("persistence: scan block: %w", err)
		}
		b.BlockType = parseBlockType(blockType)
		b.Status = blockplan.Status{Kind: status}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: iterate blocks: %w", err)
	}
	return blocks, nil
}

func parseBlockType(s string) blockplan.BlockType {
	switch s {
	case "Charge":
		return blockplan.Charge
	case "Use":
		return blockplan.Use
	default:
		return blockplan.Hold
	}
}
