package orders

import "strconv"

const (
	TopicOrderCommitted = "order.committed"
	TopicAuditMismatch  = "order.audit.mismatch"
)

// Partition key = order id so every event of one order stays ordered.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
