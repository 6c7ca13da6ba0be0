package domain

import "time"

// StreamStatus is the lifecycle status of an indexed stream.
type StreamStatus string

const (
	StreamStatusActive    StreamStatus = "ACTIVE"
	StreamStatusPaused    StreamStatus = "PAUSED"
	StreamStatusCompleted StreamStatus = "COMPLETED"
	StreamStatusCanceled  StreamStatus = "CANCELED"
)

// StreamRecord is the latest-state snapshot for one stream, keyed by StreamID.
// Amounts are unsigned big integers carried as decimal strings; the reducer
// is the only writer.
type StreamRecord struct {
	StreamID            string       `json:"stream_id"             db:"stream_id"`
	TxHashCreated       string       `json:"tx_hash_created"       db:"tx_hash_created"`
	Sender              string       `json:"sender"                db:"sender"`
	Receiver            string       `json:"receiver"              db:"receiver"`
	OriginalTotalAmount string       `json:"original_total_amount" db:"original_total_amount"`
	StreamedAmount      string       `json:"streamed_amount"       db:"streamed_amount"`
	Status              StreamStatus `json:"status"                db:"status"`
	CreatedAt           string       `json:"created_at"            db:"created_at"`
	ClosedAt            *string      `json:"closed_at"             db:"closed_at"`
	UpdatedAt           time.Time    `json:"updated_at"            db:"updated_at"`
	LastLedger          uint32       `json:"last_ledger"           db:"last_ledger"`
}

// Clone returns a deep copy so callers can mutate without aliasing the store.
func (r *StreamRecord) Clone() *StreamRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ClosedAt != nil {
		closed := *r.ClosedAt
		c.ClosedAt = &closed
	}
	return &c
}
