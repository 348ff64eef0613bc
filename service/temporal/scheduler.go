package temporal

import (
	"context"
	"strings"
	"time"
)

// Scheduler manages recurring ledger exports. Each address has at most one
// schedule, which triggers ExportLedgerWorkflow on its interval.
type Scheduler interface {
	CreateExportSchedule(ctx context.Context, input ExportLedgerInput, interval time.Duration) error

	// UpsertExportSchedule creates the schedule or replaces its interval and
	// export parameters.
	UpsertExportSchedule(ctx context.Context, input ExportLedgerInput, interval time.Duration) error

	DeleteExportSchedule(ctx context.Context, address string) error
}

// scheduleID returns the Temporal schedule ID for an address.
func scheduleID(address string) string {
	return "export-ledger-" + strings.ToLower(address)
}

// workflowID returns the ID of a one-off export.
func workflowID(address string, at time.Time) string {
	return "export-ledger-" + strings.ToLower(address) + "-" + at.UTC().Format("20060102T150405Z")
}
