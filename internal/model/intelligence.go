package model

import "time"

// ItemType distinguishes how an intelligence item was produced.
type ItemType string

const (
	ItemTypePatternMatch    ItemType = "pattern_match"
	ItemTypeSchemaExtracted ItemType = "schema_extracted"
)

// CategoryStatus is the derived quality/status of a category bucket.
type CategoryStatus string

const (
	StatusPending    CategoryStatus = "PENDING"
	StatusProcessing CategoryStatus = "PROCESSING"
	StatusPartial    CategoryStatus = "PARTIAL"
	StatusCompleted  CategoryStatus = "COMPLETED"
	StatusFailed     CategoryStatus = "FAILED"
)

// rank orders statuses from worst to best for monotonicity checks.
func (s CategoryStatus) rank() int {
	switch s {
	case StatusFailed:
		return 1
	case StatusProcessing:
		return 2
	case StatusPartial:
		return 3
	case StatusCompleted:
		return 4
	}
	return 0
}

// AtLeast reports whether s is no worse than other.
func (s CategoryStatus) AtLeast(other CategoryStatus) bool {
	return s.rank() >= other.rank()
}

// DeriveStatus computes the category status from item count and confidence.
func DeriveStatus(itemCount int, confidence float64) CategoryStatus {
	switch {
	case itemCount == 0:
		return StatusPending
	case confidence > 0.8 && itemCount > 5:
		return StatusCompleted
	case confidence > 0.6 && itemCount > 3:
		return StatusPartial
	case confidence > 0.4 && itemCount > 1:
		return StatusProcessing
	default:
		return StatusFailed
	}
}

// IntelligenceItem is one extracted fact. The ID is assigned by the
// persistence layer, never by the pipeline.
type IntelligenceItem struct {
	ID          string         `json:"id,omitempty"`
	Type        ItemType       `json:"type"`
	Content     map[string]any `json:"content"`
	SourceURL   string         `json:"source_url"`
	Confidence  float64        `json:"confidence"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExtractedIntelligence aggregates one category's items for an extraction run.
type ExtractedIntelligence struct {
	Category    string             `json:"category"`
	DisplayName string             `json:"display_name,omitempty"`
	Items       []IntelligenceItem `json:"items"`
	Confidence  float64            `json:"confidence"`
	Sources     []string           `json:"sources"`
	Keywords    []string           `json:"keywords,omitempty"`
	ExtractedAt time.Time          `json:"extracted_at"`
	Status      CategoryStatus     `json:"status"`
}
