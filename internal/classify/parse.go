package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voicebrain/voicebrain/internal/models"
)

// SchemaError reports a classifier response that violated the output
// contract. Raw carries the offending response for logging; it is never
// coerced into a partial result.
type SchemaError struct {
	Reason string
	Raw    string
}

func (e *SchemaError) Error() string {
	return "classifier output violates schema: " + e.Reason
}

// requiredFields are the keys every classifier response must contain.
// title_suggestion may be null but the key itself must be present.
var requiredFields = []string{
	"entity", "activity", "action_type", "confidence", "summary",
	"people", "prophetic_words", "has_prophetic_content",
	"discoveries", "action_items", "title_suggestion",
}

// ParseClassifierOutput strictly parses a raw model response against the
// output contract. Missing fields and enum values outside their closed sets
// are rejected, never coerced. has_prophetic_content is recomputed from the
// prophetic word list rather than trusted from the model.
func ParseClassifierOutput(raw string, tax models.Taxonomy) (*models.ClassifierOutput, error) {
	cleaned := stripMarkdownFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("not a JSON object: %v", err), Raw: raw}
	}
	for _, key := range requiredFields {
		if _, ok := fields[key]; !ok {
			return nil, &SchemaError{Reason: "missing required field " + key, Raw: raw}
		}
	}

	var out models.ClassifierOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("field has wrong type: %v", err), Raw: raw}
	}

	if !tax.IsValidEntity(out.Entity) {
		return nil, &SchemaError{Reason: fmt.Sprintf("entity %q not in closed set", out.Entity), Raw: raw}
	}
	if !models.IsValidActivity(out.Activity) {
		return nil, &SchemaError{Reason: fmt.Sprintf("activity %q not in closed set", out.Activity), Raw: raw}
	}
	if !models.IsValidActionType(out.ActionType) {
		return nil, &SchemaError{Reason: fmt.Sprintf("action_type %q not in closed set", out.ActionType), Raw: raw}
	}
	for name, score := range map[string]float64{
		"entity":   out.Confidence.Entity,
		"activity": out.Confidence.Activity,
		"action":   out.Confidence.Action,
	} {
		if score < 0 || score > 1 {
			return nil, &SchemaError{Reason: fmt.Sprintf("confidence.%s %v outside [0,1]", name, score), Raw: raw}
		}
	}
	for _, d := range out.Discoveries {
		switch d.Type {
		case models.ContextTypePerson, models.ContextTypeEntity, models.ContextTypeProject:
		default:
			return nil, &SchemaError{Reason: fmt.Sprintf("discovery type %q not allowed", d.Type), Raw: raw}
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, &SchemaError{Reason: "discovery with empty name", Raw: raw}
		}
	}
	for i, item := range out.ActionItems {
		if !models.IsValidTier(item.Tier) {
			return nil, &SchemaError{Reason: fmt.Sprintf("action_items[%d].tier %q not in closed set", i, item.Tier), Raw: raw}
		}
		if !models.IsValidActionType(item.ActionType) {
			return nil, &SchemaError{Reason: fmt.Sprintf("action_items[%d].action_type %q not in closed set", i, item.ActionType), Raw: raw}
		}
		if strings.TrimSpace(item.Title) == "" {
			return nil, &SchemaError{Reason: fmt.Sprintf("action_items[%d] has empty title", i), Raw: raw}
		}
	}

	// Derived, never trusted from the model.
	out.HasPropheticContent = len(out.PropheticWords) > 0

	return &out, nil
}

// stripMarkdownFences removes a surrounding ```json ... ``` block if the
// model wrapped its response despite instructions.
func stripMarkdownFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
