package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentConfirmed   = "payment.confirmed"
)

// Partition key = order id so every event of one order stays in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
