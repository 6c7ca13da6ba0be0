// Package events normalizes raw contract event envelopes from the ledger
// event source and decodes their payloads into typed stream event data.
package events

import (
	"encoding/json"
	"strings"

	"github.com/stellarstream/watcher/internal/core/domain"
)

// Parse maps one raw envelope into a normalized ParsedEvent. It never
// panics; any shape mismatch returns (nil, false) and the caller is expected
// to log and skip.
func Parse(raw *domain.RawEvent) (*domain.ParsedEvent, bool) {
	if raw == nil || raw.ID == "" || raw.TxHash == "" {
		return nil, false
	}

	var value any
	if len(raw.Value) > 0 {
		if err := json.Unmarshal(raw.Value, &value); err != nil {
			return nil, false
		}
	}

	topics := make([]string, len(raw.Topic))
	copy(topics, raw.Topic)

	return &domain.ParsedEvent{
		ID:             raw.ID,
		Type:           raw.Type,
		Ledger:         raw.Ledger,
		LedgerClosedAt: raw.LedgerClosedAt,
		ContractID:     raw.ContractID,
		Topics:         topics,
		Value:          value,
		TxHash:         raw.TxHash,
		Successful:     raw.InSuccessfulContractCall,
	}, true
}

// ExtractEventType inspects the ordered topic list and returns a canonical
// tag. Unknown discriminants are preserved as "unknown_<raw>" so they stay
// observable even though no handler exists for them.
func ExtractEventType(topics []string) string {
	if len(topics) == 0 {
		return "unknown_empty"
	}

	switch topics[0] {
	case domain.EventTypeStreamCreated,
		domain.EventTypeStreamWithdrawn,
		domain.EventTypeStreamCancelled:
		return topics[0]
	}

	raw := strings.TrimSpace(topics[0])
	if raw == "" {
		raw = "empty"
	}
	return "unknown_" + raw
}
