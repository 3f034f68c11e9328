// Package persistence writes a computed schedule to disk as JSON and, optionally, upserts it into
// Postgres using a delete-range-then-upsert transaction.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oskarsson/pvsched/blockplan"
)

// WriteScheduleFile marshals result.Blocks to JSON and writes it to
// <dir>/<YYYYMMDDHHMM>_<YYYYMMDDHHMM>_schedule.json (UTC, start then end), returning the path
// written.
func WriteScheduleFile(dir string, result blockplan.SchedulerResult) (string, error) {
	data, err := json.MarshalIndent(result.Blocks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("persistence: marshal schedule: %w", err)
	}

	name := fmt.Sprintf("%s_%s_schedule.json",
		result.StartTime.UTC().Format("200601021504"),
		result.EndTime.UTC().Format("200601021504"))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("persistence: write %s: %w", path, err)
	}
	return path, nil
}
