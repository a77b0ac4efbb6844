package enums

// QueueName identifies one of the durable pipeline queues.
type QueueName string

const (
	QueueEnrichment  QueueName = "enrichment"
	QueueMatchmaking QueueName = "matchmaking"
	QueueWebhook     QueueName = "webhook"
)

func (q QueueName) String() string { return string(q) }
