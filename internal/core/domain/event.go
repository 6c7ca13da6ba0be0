package domain

import "encoding/json"

// Event type tags extracted from a contract event's first topic.
const (
	EventTypeStreamCreated   = "stream_created"
	EventTypeStreamWithdrawn = "stream_withdrawn"
	EventTypeStreamCancelled = "stream_cancelled"
)

// RawEvent is one event envelope as returned by the ledger event source,
// before any parsing.
type RawEvent struct {
	ID                       string          `json:"id"`
	Type                     string          `json:"type"`
	Ledger                   uint32          `json:"ledger"`
	LedgerClosedAt           string          `json:"ledgerClosedAt"`
	ContractID               string          `json:"contractId"`
	Topic                    []string        `json:"topic"`
	Value                    json.RawMessage `json:"value"`
	TxHash                   string          `json:"txHash"`
	InSuccessfulContractCall bool            `json:"inSuccessfulContractCall"`
}

// ParsedEvent is the normalized form of a raw envelope. Unparseable raw
// events produce no ParsedEvent.
type ParsedEvent struct {
	ID             string
	Type           string
	Ledger         uint32
	LedgerClosedAt string
	ContractID     string
	Topics         []string
	Value          any
	TxHash         string
	Successful     bool
}
