package enums

// CrmActivityType labels rows in the append-only CRM activity log.
type CrmActivityType string

const (
	ActivityEnrichmentCompleted  CrmActivityType = "enrichment.completed"
	ActivityMatchmakingCompleted CrmActivityType = "matchmaking.completed"
)
