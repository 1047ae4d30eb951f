package model

import "time"

// ChargeEvent is emitted to the billing topic when a crawler's payment
// declaration is accepted and the request is forwarded to the origin.
type ChargeEvent struct {
	RequestID  string    `json:"request_id"`
	Crawler    string    `json:"crawler"`
	Path       string    `json:"path"`
	Price      string    `json:"price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditEvent is emitted to the audit topic for denied requests (402/403).
type AuditEvent struct {
	ServiceName string    `json:"service_name"`
	RequestID   string    `json:"request_id"`
	Crawler     string    `json:"crawler"`
	Path        string    `json:"path"`
	Outcome     string    `json:"outcome"`
	Price       string    `json:"price,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
