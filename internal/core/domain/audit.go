package domain

import "time"

// AuditEntry is one append-only record of a normalized event, independent of
// the current-state snapshot.
type AuditEntry struct {
	ID             string         `json:"id"               db:"id"`
	EventType      string         `json:"event_type"       db:"event_type"`
	StreamID       string         `json:"stream_id"        db:"stream_id"`
	TxHash         string         `json:"tx_hash"          db:"tx_hash"`
	Ledger         uint32         `json:"ledger"           db:"ledger"`
	LedgerClosedAt string         `json:"ledger_closed_at" db:"ledger_closed_at"`
	Sender         string         `json:"sender,omitempty"   db:"sender"`
	Receiver       string         `json:"receiver,omitempty" db:"receiver"`
	Amount         string         `json:"amount,omitempty"   db:"amount"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"       db:"created_at"`
}
