package enums

// WebhookEventType identifies an outbound event subscribers can register for.
type WebhookEventType string

const (
	EventCrmActivity          WebhookEventType = "crm.activity"
	EventEnrichmentCompleted  WebhookEventType = "enrichment.completed"
	EventMatchmakingCompleted WebhookEventType = "matchmaking.completed"
)

// DeliveryStatus is the terminal outcome of one delivery attempt chain.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ReplayMode distinguishes operator-initiated single replays from bulk sweeps.
type ReplayMode string

const (
	ReplaySingle ReplayMode = "single"
	ReplayBulk   ReplayMode = "bulk"
)
