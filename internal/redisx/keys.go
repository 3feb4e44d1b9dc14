package redisx

import "time"

const (
	// Versioned-record cache copy: verrec:{key}
	KeyVersionedRecord = "verrec:%s"

	// Tombstone left behind by an invalidation: verrec:tomb:{key}
	KeyVersionedTombstone = "verrec:tomb:%s"

	// Reservation expiry hint: reservation:{id} -> order_id
	KeyReservationHint = "reservation:%s"

	// Per-order payment lock lease: paylock:{order_id} -> holder token
	KeyPaymentLock = "paylock:%s"
)

var (
	TTLVersionedCache = 10 * time.Minute
	TTLTombstone      = 30 * time.Second
)
