package redisx

import "time"

const (
	// Idempotency place order: idem:order:place:{user_id}:{Idempotency-Key} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%d:%s"

	// Cache status order: order_status:{order_id} -> {"order_id": ..., "status": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Session token -> JSON actor
	KeySession = "session:%s"

	// Ledger address binding cache: ledger_addr:{user_id} -> 0x...
	KeyLedgerAddr = "ledger_addr:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLLedgerAddr  = time.Hour
)
