package events

// Topic constants for domain events emitted by the payments service.
const (
	TopicOrderPaid                = "order.paid"
	TopicPaymentSettlementSkipped = "payment.settlement_skipped"
	TopicPaymentSignatureRejected = "payment.signature_rejected"
)

// DefaultTopics returns the canonical list of topics forwarded to the worker.
func DefaultTopics() []string {
	return []string{
		TopicOrderPaid,
		TopicPaymentSettlementSkipped,
		TopicPaymentSignatureRejected,
	}
}
