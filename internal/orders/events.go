package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderConfirmed     = "OrderConfirmed"
	EventLedgerMirrorFailed = "LedgerMirrorFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "woodchain-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type LinePayload struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderPlacedPayload struct {
	OrderID      int64         `json:"order_id"`
	UserID       int64         `json:"user_id"`
	SupplierID   int64         `json:"supplier_id"`
	DeliveryDate string        `json:"delivery_date"` // 2006-01-02
	TotalPrice   string        `json:"total_price"`
	Lines        []LinePayload `json:"lines"`
	LedgerSynced bool          `json:"ledger_synced"`
}

type OrderConfirmedPayload struct {
	OrderID      int64  `json:"order_id"`
	SupplierID   int64  `json:"supplier_id"`
	Status       Status `json:"status"`
	LedgerSynced bool   `json:"ledger_synced"`
}

type LedgerMirrorFailedPayload struct {
	FailureID int64           `json:"failure_id"`
	OrderID   int64           `json:"order_id"`
	Operation MirrorOperation `json:"operation"`
	Reason    string          `json:"reason"`
}
