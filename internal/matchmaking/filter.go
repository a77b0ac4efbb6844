package matchmaking

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
)

// Filter is the stored buyer-criteria a matchmaking job evaluates against
// the property set. Origin is provenance metadata and is never compared
// against a property's source; Source matches ScrapedProperty.Source only.
type Filter struct {
	PropertyID *uuid.UUID `json:"propertyId,omitempty"`
	MinScore   *int       `json:"minScore,omitempty"`
	Source     string     `json:"source,omitempty"`
	Origin     string     `json:"origin,omitempty"`
}

// ParseFilter decodes a stored filter document. Legacy filters encoded job
// provenance in the source field; those values are lifted into Origin so
// they never leak into the property-source comparison.
func ParseFilter(raw json.RawMessage) (Filter, error) {
	var filter Filter
	if len(raw) == 0 {
		return filter, nil
	}
	if err := json.Unmarshal(raw, &filter); err != nil {
		return Filter{}, fmt.Errorf("decode matchmaking filter: %w", err)
	}
	if enums.IsJobOrigin(filter.Source) {
		if filter.Origin == "" {
			filter.Origin = filter.Source
		}
		filter.Source = ""
	}
	return filter, nil
}

// Encode marshals the filter for storage.
func (f Filter) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode matchmaking filter: %w", err)
	}
	return raw, nil
}
