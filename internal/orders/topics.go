package orders

// Events are keyed by order_id, supaya semua event 1 order maintain urutan.
const (
	TopicOrderPlaced        = "woodchain.order.placed"
	TopicOrderConfirmed     = "woodchain.order.confirmed"
	TopicLedgerMirrorFailed = "woodchain.ledger.mirror.failed"
)
