package enums

// JobOrigin records who created a matchmaking job. It is provenance metadata,
// not a property-source filter; the filter evaluator must never match it
// against ScrapedProperty.Source.
type JobOrigin string

const (
	OriginAuto  JobOrigin = "auto"
	OriginAdmin JobOrigin = "admin"
)

// IsJobOrigin reports whether a raw filter "source" value is actually a
// provenance marker from the legacy filter encoding.
func IsJobOrigin(value string) bool {
	return value == string(OriginAuto) || value == string(OriginAdmin)
}
