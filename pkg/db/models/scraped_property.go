package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/michaeladamstrickland/convexa-backend/pkg/db/types"
)

// ScrapedProperty is a raw listing produced by the ingestion pipeline.
// The enrichment worker owns the enrichment fields (tags, score, reasons)
// and writes them at most once; a property already carrying tags or a
// non-nil score is treated as processed.
type ScrapedProperty struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Address         string             `gorm:"column:address;type:text;not null"`
	Source          string             `gorm:"column:source;type:text;not null"`
	Price           decimal.Decimal    `gorm:"column:price;type:numeric(14,2);not null"`
	Sqft            int                `gorm:"column:sqft;not null;default:0"`
	Condition       string             `gorm:"column:condition;type:text"`
	EnrichmentTags  dbtypes.StringList `gorm:"column:enrichment_tags;type:jsonb;not null;default:'[]'"`
	InvestmentScore *int               `gorm:"column:investment_score"`
	Reasons         dbtypes.StringList `gorm:"column:reasons;type:jsonb;not null;default:'[]'"`
	TagReasons      dbtypes.StringList `gorm:"column:tag_reasons;type:jsonb;not null;default:'[]'"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (ScrapedProperty) TableName() string { return "scraped_properties" }

// Enriched reports whether the enrichment worker already processed this row.
func (p ScrapedProperty) Enriched() bool {
	return len(p.EnrichmentTags) > 0 || p.InvestmentScore != nil
}
