package validate

import (
	"fmt"
	"time"
)

// Position is a location in a document expressed as a 1-based line and a
// 0-based column measured in UTF-16 code units. This is the coordinate
// system the service reports and the one promised to presentation surfaces.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span in a document expressed as start and end positions.
// The end position is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// ResourceKey is the stable identity of a validation target: a resource
// (file path or URI) plus an optional sub-range selector. Requests with
// equal keys contend for the same in-flight slot.
type ResourceKey struct {
	ResourceID string
	Selector   *Range
}

// FileKey returns the key for whole-file validation of the given resource.
func FileKey(resourceID string) ResourceKey {
	return ResourceKey{ResourceID: resourceID}
}

// SelectionKey returns the key for validating a sub-range of the resource.
func SelectionKey(resourceID string, sel Range) ResourceKey {
	return ResourceKey{ResourceID: resourceID, Selector: &sel}
}

// String returns a stable string form usable as a map/cache key.
func (k ResourceKey) String() string {
	if k.Selector == nil {
		return k.ResourceID
	}
	s := k.Selector
	return fmt.Sprintf("%s#%d:%d-%d:%d",
		k.ResourceID, s.Start.Line, s.Start.Character, s.End.Line, s.End.Character)
}

// Severity classifies a violation.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

// String returns the wire form of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// TextEdit is a single text replacement within a document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// Fix is an atomic set of edits that resolves a violation when applied.
// The core treats fixes as opaque beyond being applicable as a unit; the
// fix-application surface owns the actual document mutation.
type Fix struct {
	Label string     `json:"label"`
	Edits []TextEdit `json:"edits"`
}

// Violation is a single issue reported by the service, normalized into the
// client's coordinate system. PositionAdjusted is set when the reported
// range fell outside the current document and was clamped to the nearest
// valid boundary.
type Violation struct {
	RuleID           string   `json:"ruleId"`
	Severity         Severity `json:"severity"`
	Range            Range    `json:"range"`
	Message          string   `json:"message"`
	Fixes            []Fix    `json:"fixes,omitempty"`
	PositionAdjusted bool     `json:"positionAdjusted,omitempty"`
}

// ValidationRequest identifies one round trip to the service. IDs are
// monotonically increasing per ResourceKey; a request is stale once a higher
// ID has been issued for its key. Requests are immutable after creation.
type ValidationRequest struct {
	ID          uint64
	Key         ResourceKey
	Fingerprint string
	Content     string
	IssuedAt    time.Time
}

// ValidationResult is the committed outcome of a request. Violations are
// kept in the order the service returned them; no re-sorting by severity.
type ValidationResult struct {
	RequestID  uint64
	Key        ResourceKey
	Violations []Violation
	ReceivedAt time.Time
}

// ValidatePayload is the request body for POST /validate.
type ValidatePayload struct {
	ProjectSlug string `json:"projectSlug"`
	ResourceID  string `json:"resourceId"`
	Content     string `json:"content"`
	Range       *Range `json:"range,omitempty"`
}
