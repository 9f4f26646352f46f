package classify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/voicebrain/voicebrain/internal/models"
)

const validOutput = `{
	"entity": "IHA",
	"activity": "Ministry",
	"action_type": "Deliver",
	"confidence": {"entity": 0.9, "activity": 0.85, "action": 0.8},
	"summary": "Prophetic word for Maria about starting the ministry.",
	"people": [{"name": "Maria", "entity_link": null, "role": null, "is_known": false}],
	"prophetic_words": [{"recipient": "Maria", "content": "she should start the ministry next month", "timestamp_label": null}],
	"has_prophetic_content": true,
	"discoveries": [{"type": "person", "name": "Maria", "inferred_context": "Recipient of a prophetic word about ministry."}],
	"action_items": [{"tier": "red", "action_type": "Deliver", "title": "Deliver prophetic word to Maria", "description": "", "related_entity": "", "related_people": ["Maria"], "delivery_payload": {}}],
	"title_suggestion": "Word for Maria"
}`

func TestParseClassifierOutput_Valid(t *testing.T) {
	out, err := ParseClassifierOutput(validOutput, models.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Entity != "IHA" || out.Activity != models.ActivityMinistry || out.ActionType != models.ActionTypeDeliver {
		t.Errorf("unexpected dimensions: %+v", out)
	}
	if len(out.PropheticWords) != 1 || out.PropheticWords[0].Recipient != "Maria" {
		t.Errorf("prophetic words not parsed: %+v", out.PropheticWords)
	}
	if len(out.ActionItems) != 1 || out.ActionItems[0].Tier != models.TierRed {
		t.Errorf("action items not parsed: %+v", out.ActionItems)
	}
	if out.TitleSuggestion != "Word for Maria" {
		t.Errorf("title suggestion not parsed: %q", out.TitleSuggestion)
	}
}

func TestParseClassifierOutput_StripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validOutput + "\n```"
	out, err := ParseClassifierOutput(fenced, models.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Entity != "IHA" {
		t.Errorf("unexpected entity: %q", out.Entity)
	}
}

func TestParseClassifierOutput_MissingField(t *testing.T) {
	// Remove action_type entirely.
	blob := strings.Replace(validOutput, `"action_type": "Deliver",`, "", 1)
	_, err := ParseClassifierOutput(blob, models.DefaultTaxonomy())
	var se *SchemaError
	if !asSchemaError(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if !strings.Contains(se.Reason, "action_type") {
		t.Errorf("unexpected reason: %q", se.Reason)
	}
}

func TestParseClassifierOutput_UnknownEnum(t *testing.T) {
	cases := []struct{ old, new, wantReason string }{
		{`"activity": "Ministry"`, `"activity": "Nonsense"`, "activity"},
		{`"entity": "IHA"`, `"entity": "Unknown Corp"`, "entity"},
		{`"tier": "red"`, `"tier": "purple"`, "tier"},
	}
	for _, c := range cases {
		blob := strings.Replace(validOutput, c.old, c.new, 1)
		_, err := ParseClassifierOutput(blob, models.DefaultTaxonomy())
		var se *SchemaError
		if !asSchemaError(err, &se) {
			t.Fatalf("%s: expected SchemaError, got %v", c.wantReason, err)
		}
		if !strings.Contains(se.Reason, c.wantReason) {
			t.Errorf("expected reason mentioning %q, got %q", c.wantReason, se.Reason)
		}
	}
}

func TestParseClassifierOutput_ConfidenceOutOfRange(t *testing.T) {
	blob := strings.Replace(validOutput, `"entity": 0.9`, `"entity": 1.5`, 1)
	_, err := ParseClassifierOutput(blob, models.DefaultTaxonomy())
	if err == nil {
		t.Fatal("expected error for confidence outside [0,1]")
	}
}

func TestParseClassifierOutput_NotJSON(t *testing.T) {
	_, err := ParseClassifierOutput("Sure! Here is the classification you asked for.", models.DefaultTaxonomy())
	var se *SchemaError
	if !asSchemaError(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Raw == "" {
		t.Error("raw response should be preserved for logging")
	}
}

func TestParseClassifierOutput_RecomputesPropheticFlag(t *testing.T) {
	// Model claims prophetic content but the list is empty.
	blob := strings.Replace(validOutput,
		`"prophetic_words": [{"recipient": "Maria", "content": "she should start the ministry next month", "timestamp_label": null}]`,
		`"prophetic_words": []`, 1)
	out, err := ParseClassifierOutput(blob, models.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.HasPropheticContent {
		t.Error("has_prophetic_content must be derived from the list, not trusted")
	}

	// And the inverse: flag false but list non-empty.
	blob = strings.Replace(validOutput, `"has_prophetic_content": true`, `"has_prophetic_content": false`, 1)
	out, err = ParseClassifierOutput(blob, models.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.HasPropheticContent {
		t.Error("non-empty prophetic_words must set has_prophetic_content")
	}
}

func TestParseClassifierOutput_DiscoveryKeywordRejected(t *testing.T) {
	blob := strings.Replace(validOutput, `"type": "person"`, `"type": "keyword"`, 1)
	if _, err := ParseClassifierOutput(blob, models.DefaultTaxonomy()); err == nil {
		t.Fatal("keyword discoveries are not in the discovery type set")
	}
}

func asSchemaError(err error, target **SchemaError) bool {
	if err == nil {
		return false
	}
	se, ok := err.(*SchemaError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func TestStripMarkdownFences(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                      `{"a":1}`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"```\n{\"a\":1}\n```":            `{"a":1}`,
		"  \n```json\n{\"a\":1}\n```\n ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripMarkdownFences(in); got != want {
			t.Errorf("stripMarkdownFences(%s) = %q, want %q", fmt.Sprintf("%q", in), got, want)
		}
	}
}
