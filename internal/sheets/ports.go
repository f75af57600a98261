package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

// Row is one mirrored ledger entry.
type Row struct {
	EntryID  int64
	OwnerID  int64
	Date     time.Time
	Title    string
	Category string
	Amount   decimal.Decimal
	Status   core.EntryStatus
}

func RowFromEntry(e core.Entry) Row {
	return Row{
		EntryID:  e.ID,
		OwnerID:  e.OwnerID,
		Date:     e.OccurredAt,
		Title:    e.Title,
		Category: e.Category,
		Amount:   e.Amount,
		Status:   e.Status(),
	}
}

// Ports for outbound adapters.
type (
	// EntryMirror keeps a spreadsheet copy of ledger entries. It is a
	// best-effort projection; the ledger store stays authoritative.
	EntryMirror interface {
		AppendEntry(ctx context.Context, r Row) (rowRef string, err error)
		// UpdateEntry rewrites the row for r.EntryID, appending it if missing.
		UpdateEntry(ctx context.Context, r Row) error
		RemoveEntry(ctx context.Context, entryID int64) error
	}
)
