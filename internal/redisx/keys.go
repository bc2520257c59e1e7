package redisx

import "time"

const (
	// Session token: session:{token} -> {"user_id":..,"issued_at":..}
	KeySession = "session:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Reconciliation sweep lock: lock:audit:sweep:{yyyy-mm-dd}
	KeyAuditSweepLock = "lock:audit:sweep:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLSweepLock   = time.Minute
)
