package validate

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Translate converts a raw service response into a ValidationResult for the
// given request. currentText is the document text to clamp positions
// against; when the document changed between send and receive, out-of-range
// positions are clamped to the nearest valid boundary and the violation is
// flagged PositionAdjusted rather than dropped.
//
// A payload that cannot be parsed into the expected violation shape yields
// a MalformedResponseError. Violations keep the order the service returned
// them.
func Translate(raw []byte, req *ValidationRequest, currentText string) (*ValidationResult, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &MalformedResponseError{Reason: "response is not valid JSON"}
	}

	root := gjson.ParseBytes(raw)
	violationsField := root.Get("violations")
	if !violationsField.Exists() {
		return nil, &MalformedResponseError{Reason: "missing violations field"}
	}
	if !violationsField.IsArray() {
		return nil, &MalformedResponseError{Reason: "violations is not an array"}
	}

	idx := newLineIndex(currentText)

	var violations []Violation
	var parseErr error
	violationsField.ForEach(func(_, item gjson.Result) bool {
		v, err := translateViolation(item, idx)
		if err != nil {
			parseErr = err
			return false
		}
		violations = append(violations, v)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return &ValidationResult{
		RequestID:  req.ID,
		Key:        req.Key,
		Violations: violations,
		ReceivedAt: time.Now(),
	}, nil
}

func translateViolation(item gjson.Result, idx *lineIndex) (Violation, error) {
	if !item.IsObject() {
		return Violation{}, &MalformedResponseError{Reason: "violation is not an object"}
	}

	message := item.Get("message")
	if !message.Exists() {
		return Violation{}, &MalformedResponseError{Reason: "violation missing message"}
	}

	rangeField := item.Get("range")
	if !rangeField.Exists() {
		return Violation{}, &MalformedResponseError{Reason: "violation missing range"}
	}

	rng, adjusted := idx.clampRange(parseRange(rangeField))

	return Violation{
		RuleID:           item.Get("ruleId").String(),
		Severity:         parseSeverity(item.Get("severity").String()),
		Range:            rng,
		Message:          message.String(),
		Fixes:            parseFixes(item.Get("fixes")),
		PositionAdjusted: adjusted,
	}, nil
}

// parseSeverity maps the wire severity to the normalized one. Unknown
// values degrade to Info so a new server-side severity never breaks older
// clients.
func parseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "error":
		return SeverityError
	case "warning", "warn":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func parsePosition(r gjson.Result) Position {
	return Position{
		Line:      int(r.Get("line").Int()),
		Character: int(r.Get("character").Int()),
	}
}

func parseRange(r gjson.Result) Range {
	return Range{
		Start: parsePosition(r.Get("start")),
		End:   parsePosition(r.Get("end")),
	}
}

// parseFixes reads the optional fixes array. Fix edit ranges are opaque to
// the core and pass through unclamped: clamping an edit could silently
// change what the fix-application surface writes.
func parseFixes(fixes gjson.Result) []Fix {
	if !fixes.IsArray() {
		return nil
	}
	var out []Fix
	fixes.ForEach(func(_, f gjson.Result) bool {
		fix := Fix{Label: f.Get("label").String()}
		f.Get("edits").ForEach(func(_, e gjson.Result) bool {
			fix.Edits = append(fix.Edits, TextEdit{
				Range:   parseRange(e.Get("range")),
				NewText: e.Get("newText").String(),
			})
			return true
		})
		out = append(out, fix)
		return true
	})
	return out
}
