package domain

import "time"

// WebhookTarget is a registered outbound notification endpoint.
type WebhookTarget struct {
	ID        string    `json:"id"         db:"id"`
	URL       string    `json:"url"        db:"url"`
	IsActive  bool      `json:"is_active"  db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WebhookPayload is the body POSTed to every active target for one event.
type WebhookPayload struct {
	EventType string `json:"eventType"`
	StreamID  string `json:"streamId"`
	TxHash    string `json:"txHash"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Amount    string `json:"amount"`
	Timestamp string `json:"timestamp"`
}
