package enrichment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tags the scorer can attach to a property.
const (
	TagUndervalued = "undervalued"
	TagFixer       = "fixer"
	TagHighIntent  = "high-intent"
	TagEntryLevel  = "entry-level"
)

const (
	baseScore        = 50
	minScore         = 0
	maxScore         = 100
	autoTriggerScore = 85
	entryLevelPrice  = 100_000
	undervaluedRatio = 100
	discountedRatio  = 150
)

// ScoreResult is the full output of one scoring pass. Reasons explain every
// score contribution, TagReasons explain every attached tag; both read as
// short human sentences for the CRM timeline.
type ScoreResult struct {
	Score      int
	Tags       []string
	Reasons    []string
	TagReasons []string
}

// HasTag reports whether the scorer attached the given tag.
func (r ScoreResult) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Score computes the deterministic investment score for a property. Same
// inputs always produce the same output; there is no randomness and no
// external lookup.
func Score(price decimal.Decimal, sqft int, condition string) ScoreResult {
	result := ScoreResult{
		Score:   baseScore,
		Reasons: []string{fmt.Sprintf("base score %d", baseScore)},
	}

	if sqft > 0 {
		perSqft := price.Div(decimal.NewFromInt(int64(sqft)))
		switch {
		case perSqft.LessThan(decimal.NewFromInt(undervaluedRatio)):
			result.Score += 20
			result.Reasons = append(result.Reasons, fmt.Sprintf("price per sqft %s below %d (+20)", perSqft.StringFixed(2), undervaluedRatio))
			result.Tags = append(result.Tags, TagUndervalued)
			result.TagReasons = append(result.TagReasons, fmt.Sprintf("%s: price per sqft %s below market", TagUndervalued, perSqft.StringFixed(2)))
		case perSqft.LessThan(decimal.NewFromInt(discountedRatio)):
			result.Score += 10
			result.Reasons = append(result.Reasons, fmt.Sprintf("price per sqft %s below %d (+10)", perSqft.StringFixed(2), discountedRatio))
		}
	} else {
		result.Reasons = append(result.Reasons, "square footage missing, price ratio rules skipped")
	}

	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "poor":
		result.Score += 15
		result.Reasons = append(result.Reasons, "condition poor (+15)")
		result.Tags = append(result.Tags, TagFixer, TagHighIntent)
		result.TagReasons = append(result.TagReasons,
			fmt.Sprintf("%s: condition poor suggests rehab opportunity", TagFixer),
			fmt.Sprintf("%s: distressed condition signals motivated seller", TagHighIntent),
		)
	case "fair":
		result.Score += 8
		result.Reasons = append(result.Reasons, "condition fair (+8)")
	case "good":
		result.Score += 3
		result.Reasons = append(result.Reasons, "condition good (+3)")
	}

	if price.LessThan(decimal.NewFromInt(entryLevelPrice)) {
		result.Score += 10
		result.Reasons = append(result.Reasons, fmt.Sprintf("price below %d (+10)", entryLevelPrice))
		result.Tags = append(result.Tags, TagEntryLevel)
		result.TagReasons = append(result.TagReasons, fmt.Sprintf("%s: priced for entry-level investors", TagEntryLevel))
	}

	if result.Score > maxScore {
		result.Score = maxScore
	}
	if result.Score < minScore {
		result.Score = minScore
	}
	return result
}

// AutoTrigger reports whether a scoring result should spawn an automatic
// matchmaking job.
func (r ScoreResult) AutoTrigger() bool {
	return r.Score >= autoTriggerScore || r.HasTag(TagHighIntent)
}
